package models

import (
	"time"
)

// DriverStatus is the lifecycle state of a driver.
type DriverStatus string

const (
	DriverActive           DriverStatus = "Active"
	DriverIdle             DriverStatus = "Idle"
	DriverInactive         DriverStatus = "Inactive"
	DriverVacation         DriverStatus = "Vacation"
	DriverProjectChange    DriverStatus = "Project Change"
	DriverLicenseInProcess DriverStatus = "Driving License-in-process"
)

// driverTransitions lists every allowed status change. Leaving Active is only
// done by the reassignment workflow; entering Active only by assignment.
var driverTransitions = map[DriverStatus][]DriverStatus{
	DriverActive:           {DriverIdle, DriverInactive, DriverVacation, DriverProjectChange},
	DriverIdle:             {DriverActive, DriverInactive, DriverVacation, DriverProjectChange, DriverLicenseInProcess},
	DriverInactive:         {DriverActive, DriverIdle, DriverLicenseInProcess},
	DriverVacation:         {DriverActive, DriverIdle, DriverInactive, DriverProjectChange},
	DriverProjectChange:    {DriverActive, DriverIdle, DriverInactive, DriverVacation},
	DriverLicenseInProcess: {DriverIdle, DriverInactive},
}

// IsValidDriverStatus checks if a status is one of the known driver states
func IsValidDriverStatus(s DriverStatus) bool {
	_, ok := driverTransitions[s]
	return ok
}

// CanTransition reports whether a driver may move from one status to another.
func CanTransition(from, to DriverStatus) bool {
	for _, s := range driverTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AssetLine is one quantity of an asset type bound to a driver.
type AssetLine struct {
	AssetID   string `bson:"asset_id" json:"asset_id"`
	Quantity  int    `bson:"quantity" json:"quantity"`
	Condition string `bson:"condition" json:"condition"`
}

// DriverNote is a free-text remark attached to a driver, e.g. the
// justification for an item that was not returned.
type DriverNote struct {
	Text      string    `bson:"text" json:"text"`
	Author    string    `bson:"author" json:"author"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Driver represents a fleet driver and its live bindings.
type Driver struct {
	ID     string       `bson:"_id" json:"id"`
	Name   string       `bson:"name" json:"name"`
	Phone  string       `bson:"phone" json:"phone"`
	Status DriverStatus `bson:"status" json:"status"`

	AssignedClientID     string      `bson:"assigned_client_id,omitempty" json:"assigned_client_id,omitempty"`
	AssignedVehicleID    string      `bson:"assigned_vehicle_id,omitempty" json:"assigned_vehicle_id,omitempty"`
	AssignedVehiclePlate string      `bson:"assigned_vehicle_plate,omitempty" json:"assigned_vehicle_plate,omitempty"`
	AssignedSimID        string      `bson:"assigned_sim_id,omitempty" json:"assigned_sim_id,omitempty"`
	AssignedSimNumber    string      `bson:"assigned_sim_number,omitempty" json:"assigned_sim_number,omitempty"`
	AssignedAssets       []AssetLine `bson:"assigned_assets" json:"assigned_assets"`

	IdleStartDate *time.Time `bson:"idle_start_date,omitempty" json:"idle_start_date,omitempty"`
	LicenseExpiry time.Time  `bson:"license_expiry" json:"license_expiry"`

	BaseSalary  float64 `bson:"base_salary" json:"base_salary"`
	AdvancePaid float64 `bson:"advance_paid" json:"advance_paid"`
	Incentives  float64 `bson:"incentives" json:"incentives"`
	Deductions  float64 `bson:"deductions" json:"deductions"`

	Notes []DriverNote `bson:"notes" json:"notes"`

	Version   int64     `bson:"version" json:"version"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// NetPayable is the salary due after incentives, deductions and advances.
func (d *Driver) NetPayable() float64 {
	return d.BaseSalary + d.Incentives - d.Deductions - d.AdvancePaid
}

// IsBound reports whether the driver currently holds any binding.
func (d *Driver) IsBound() bool {
	return d.AssignedClientID != "" || d.AssignedVehicleID != "" ||
		d.AssignedSimID != "" || len(d.AssignedAssets) > 0
}

// SetStatus moves the driver to a new status and keeps IdleStartDate in
// step: it is stamped on entering Idle and cleared on leaving it.
func (d *Driver) SetStatus(to DriverStatus, now time.Time) {
	if to == DriverIdle {
		if d.Status != DriverIdle || d.IdleStartDate == nil {
			t := now
			d.IdleStartDate = &t
		}
	} else {
		d.IdleStartDate = nil
	}
	d.Status = to
}

// ClearBindings drops every live binding of the driver.
func (d *Driver) ClearBindings() {
	d.AssignedClientID = ""
	d.AssignedVehicleID = ""
	d.AssignedVehiclePlate = ""
	d.AssignedSimID = ""
	d.AssignedSimNumber = ""
	d.AssignedAssets = nil
}

// Clone returns a deep copy of the driver.
func (d Driver) Clone() Driver {
	cp := d
	if d.IdleStartDate != nil {
		t := *d.IdleStartDate
		cp.IdleStartDate = &t
	}
	cp.AssignedAssets = append([]AssetLine(nil), d.AssignedAssets...)
	cp.Notes = append([]DriverNote(nil), d.Notes...)
	return cp
}

// DriverPatch carries the fields a plain edit form may change. Status and
// bindings are deliberately absent.
type DriverPatch struct {
	Name          *string    `json:"name,omitempty"`
	Phone         *string    `json:"phone,omitempty"`
	LicenseExpiry *time.Time `json:"license_expiry,omitempty"`
	BaseSalary    *float64   `json:"base_salary,omitempty"`
	AdvancePaid   *float64   `json:"advance_paid,omitempty"`
	Incentives    *float64   `json:"incentives,omitempty"`
	Deductions    *float64   `json:"deductions,omitempty"`
}

// Apply merges the patch into the driver.
func (p DriverPatch) Apply(d *Driver) {
	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.Phone != nil {
		d.Phone = *p.Phone
	}
	if p.LicenseExpiry != nil {
		d.LicenseExpiry = *p.LicenseExpiry
	}
	if p.BaseSalary != nil {
		d.BaseSalary = *p.BaseSalary
	}
	if p.AdvancePaid != nil {
		d.AdvancePaid = *p.AdvancePaid
	}
	if p.Incentives != nil {
		d.Incentives = *p.Incentives
	}
	if p.Deductions != nil {
		d.Deductions = *p.Deductions
	}
}
