package models

import (
	"time"
)

// AssetAssignment is an outstanding quantity of an asset held by a driver.
// Lines flagged Missing were not returned on reassignment and stay here
// until they are recovered or written off.
type AssetAssignment struct {
	DriverID   string    `bson:"driver_id" json:"driver_id"`
	Quantity   int       `bson:"quantity" json:"quantity"`
	Condition  string    `bson:"condition" json:"condition"`
	Missing    bool      `bson:"missing" json:"missing"`
	Note       string    `bson:"note,omitempty" json:"note,omitempty"`
	AssignedAt time.Time `bson:"assigned_at" json:"assigned_at"`
}

// Asset is a countable asset type such as helmets or uniforms.
type Asset struct {
	ID                string            `bson:"_id" json:"id"`
	Name              string            `bson:"name" json:"name"`
	Category          string            `bson:"category" json:"category"`
	TotalQuantity     int               `bson:"total_quantity" json:"total_quantity"`
	AvailableQuantity int               `bson:"available_quantity" json:"available_quantity"`
	Assignments       []AssetAssignment `bson:"assignments" json:"assignments"`
	Version           int64             `bson:"version" json:"version"`
	CreatedAt         time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `bson:"updated_at" json:"updated_at"`
}

// OutstandingQuantity sums every outstanding line, missing ones included.
func (a *Asset) OutstandingQuantity() int {
	n := 0
	for _, l := range a.Assignments {
		n += l.Quantity
	}
	return n
}

// MissingQuantity sums the lines flagged missing.
func (a *Asset) MissingQuantity() int {
	n := 0
	for _, l := range a.Assignments {
		if l.Missing {
			n += l.Quantity
		}
	}
	return n
}

// ActiveLine returns the index of the driver's live (not missing) line, or -1.
func (a *Asset) ActiveLine(driverID string) int {
	for i, l := range a.Assignments {
		if l.DriverID == driverID && !l.Missing {
			return i
		}
	}
	return -1
}

// MissingLine returns the index of the driver's missing line, or -1.
func (a *Asset) MissingLine(driverID string) int {
	for i, l := range a.Assignments {
		if l.DriverID == driverID && l.Missing {
			return i
		}
	}
	return -1
}

// RemoveLine drops the line at index i.
func (a *Asset) RemoveLine(i int) {
	a.Assignments = append(a.Assignments[:i:i], a.Assignments[i+1:]...)
}

// Clone returns a deep copy of the asset.
func (a Asset) Clone() Asset {
	cp := a
	cp.Assignments = append([]AssetAssignment(nil), a.Assignments...)
	return cp
}

// AssetPatch carries the descriptive asset fields. Quantities change only
// through assignment, return and capacity adjustment.
type AssetPatch struct {
	Name     *string `json:"name,omitempty"`
	Category *string `json:"category,omitempty"`
}

// Apply merges the patch into the asset.
func (p AssetPatch) Apply(a *Asset) {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Category != nil {
		a.Category = *p.Category
	}
}
