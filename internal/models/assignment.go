package models

import (
	"time"
)

// PayModel is how a driver is paid under an assignment.
type PayModel string

const (
	PayMonthly     PayModel = "monthly"
	PayPerDelivery PayModel = "per_delivery"
	PayHourly      PayModel = "hourly"
	PayCommission  PayModel = "commission"
)

// IsValidPayModel checks if a pay model is known
func IsValidPayModel(p PayModel) bool {
	switch p {
	case PayMonthly, PayPerDelivery, PayHourly, PayCommission:
		return true
	default:
		return false
	}
}

// Assignment record statuses.
const (
	AssignmentActive = "Active"
	AssignmentClosed = "Closed"
)

// Disposition is the outcome recorded for a bound item during reassignment.
type Disposition string

const (
	DispositionPending  Disposition = "pending"
	DispositionReturned Disposition = "returned"
	DispositionMissing  Disposition = "missing"
)

// IsTerminal reports whether the disposition is a final outcome.
func (d Disposition) IsTerminal() bool {
	return d == DispositionReturned || d == DispositionMissing
}

// ItemKind names the kind of resource a disposition refers to.
type ItemKind string

const (
	ItemVehicle ItemKind = "vehicle"
	ItemSim     ItemKind = "sim"
	ItemAsset   ItemKind = "asset"
)

// ItemDisposition is the return state of one bound item.
type ItemDisposition struct {
	Kind       ItemKind    `bson:"kind" json:"kind"`
	ResourceID string      `bson:"resource_id" json:"resource_id"`
	State      Disposition `bson:"state" json:"state"`
	Quantity   int         `bson:"quantity,omitempty" json:"quantity,omitempty"`
	Note       string      `bson:"note,omitempty" json:"note,omitempty"`
}

// Assignment is the immutable historical record of one assignment event.
// A reassignment appends a closing record that supersedes it.
type Assignment struct {
	ID            string            `bson:"_id" json:"id"`
	DriverID      string            `bson:"driver_id" json:"driver_id"`
	ClientID      string            `bson:"client_id" json:"client_id"`
	DateOfJoining time.Time         `bson:"date_of_joining" json:"date_of_joining"`
	PayModel      PayModel          `bson:"pay_model" json:"pay_model"`
	VehicleID     string            `bson:"vehicle_id,omitempty" json:"vehicle_id,omitempty"`
	SimID         string            `bson:"sim_id,omitempty" json:"sim_id,omitempty"`
	Assets        []AssetLine       `bson:"assets" json:"assets"`
	Status        string            `bson:"status" json:"status"`
	SupersedesID  string            `bson:"supersedes_id,omitempty" json:"supersedes_id,omitempty"`
	Reason        string            `bson:"reason,omitempty" json:"reason,omitempty"`
	Dispositions  []ItemDisposition `bson:"dispositions,omitempty" json:"dispositions,omitempty"`
	CreatedBy     string            `bson:"created_by" json:"created_by"`
	CreatedAt     time.Time         `bson:"created_at" json:"created_at"`
}

// Clone returns a deep copy of the record.
func (a Assignment) Clone() Assignment {
	cp := a
	cp.Assets = append([]AssetLine(nil), a.Assets...)
	cp.Dispositions = append([]ItemDisposition(nil), a.Dispositions...)
	return cp
}
