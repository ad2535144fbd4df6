package models

import (
	"time"
)

// SimStatus is the availability state of a SIM card.
type SimStatus string

const (
	SimAvailable SimStatus = "Available"
	SimAssigned  SimStatus = "Assigned"
	SimLost      SimStatus = "Lost"
)

// IsValidSimStatus checks if a SIM status is known
func IsValidSimStatus(s SimStatus) bool {
	return s == SimAvailable || s == SimAssigned || s == SimLost
}

// Sim represents a SIM card handed out to drivers.
type Sim struct {
	ID               string     `bson:"_id" json:"id"`
	Number           string     `bson:"number" json:"number"`
	Carrier          string     `bson:"carrier" json:"carrier"`
	Status           SimStatus  `bson:"status" json:"status"`
	AssignedDriverID string     `bson:"assigned_driver_id,omitempty" json:"assigned_driver_id,omitempty"`
	MissingNote      string     `bson:"missing_note,omitempty" json:"missing_note,omitempty"`
	MissingSince     *time.Time `bson:"missing_since,omitempty" json:"missing_since,omitempty"`
	Version          int64      `bson:"version" json:"version"`
	CreatedAt        time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `bson:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy of the SIM.
func (s Sim) Clone() Sim {
	cp := s
	if s.MissingSince != nil {
		t := *s.MissingSince
		cp.MissingSince = &t
	}
	return cp
}

// SimPatch carries the descriptive SIM fields.
type SimPatch struct {
	Number  *string `json:"number,omitempty"`
	Carrier *string `json:"carrier,omitempty"`
}

// Apply merges the patch into the SIM.
func (p SimPatch) Apply(s *Sim) {
	if p.Number != nil {
		s.Number = *p.Number
	}
	if p.Carrier != nil {
		s.Carrier = *p.Carrier
	}
}
