package models

import (
	"time"
)

// VehicleStatus is the availability state of a vehicle.
type VehicleStatus string

const (
	VehicleAvailable    VehicleStatus = "Available"
	VehicleAssigned     VehicleStatus = "Assigned"
	VehicleMaintenance  VehicleStatus = "Maintenance"
	VehicleOutOfService VehicleStatus = "Out-of-service"
)

// IsValidVehicleStatus checks if a vehicle status is known
func IsValidVehicleStatus(s VehicleStatus) bool {
	switch s {
	case VehicleAvailable, VehicleAssigned, VehicleMaintenance, VehicleOutOfService:
		return true
	default:
		return false
	}
}

// Vehicle represents a fleet vehicle. The ID is the chassis number.
type Vehicle struct {
	ID                 string        `bson:"_id" json:"id"`
	Plate              string        `bson:"plate" json:"plate"`
	Make               string        `bson:"make" json:"make"`
	Model              string        `bson:"model" json:"model"`
	Status             VehicleStatus `bson:"status" json:"status"`
	AssignedDriverID   string        `bson:"assigned_driver_id,omitempty" json:"assigned_driver_id,omitempty"`
	InsuranceExpiry    time.Time     `bson:"insurance_expiry" json:"insurance_expiry"`
	RegistrationExpiry time.Time     `bson:"registration_expiry" json:"registration_expiry"`
	MissingNote        string        `bson:"missing_note,omitempty" json:"missing_note,omitempty"`
	MissingSince       *time.Time    `bson:"missing_since,omitempty" json:"missing_since,omitempty"`
	Version            int64         `bson:"version" json:"version"`
	CreatedAt          time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `bson:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy of the vehicle.
func (v Vehicle) Clone() Vehicle {
	cp := v
	if v.MissingSince != nil {
		t := *v.MissingSince
		cp.MissingSince = &t
	}
	return cp
}

// VehiclePatch carries the descriptive vehicle fields.
type VehiclePatch struct {
	Plate              *string    `json:"plate,omitempty"`
	Make               *string    `json:"make,omitempty"`
	Model              *string    `json:"model,omitempty"`
	InsuranceExpiry    *time.Time `json:"insurance_expiry,omitempty"`
	RegistrationExpiry *time.Time `json:"registration_expiry,omitempty"`
}

// Apply merges the patch into the vehicle.
func (p VehiclePatch) Apply(v *Vehicle) {
	if p.Plate != nil {
		v.Plate = *p.Plate
	}
	if p.Make != nil {
		v.Make = *p.Make
	}
	if p.Model != nil {
		v.Model = *p.Model
	}
	if p.InsuranceExpiry != nil {
		v.InsuranceExpiry = *p.InsuranceExpiry
	}
	if p.RegistrationExpiry != nil {
		v.RegistrationExpiry = *p.RegistrationExpiry
	}
}
