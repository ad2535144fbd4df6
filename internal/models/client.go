package models

import (
	"time"
)

// Client represents a client or project contract drivers are assigned to.
type Client struct {
	ID                string    `bson:"_id" json:"id"`
	Name              string    `bson:"name" json:"name"`
	ContractStart     time.Time `bson:"contract_start" json:"contract_start"`
	ContractEnd       time.Time `bson:"contract_end" json:"contract_end"`
	Rate              float64   `bson:"rate" json:"rate"`
	SLA               string    `bson:"sla" json:"sla"`
	AssignedDriverIDs []string  `bson:"assigned_driver_ids" json:"assigned_driver_ids"`
	Version           int64     `bson:"version" json:"version"`
	CreatedAt         time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at" json:"updated_at"`
}

// HasDriver reports whether the driver is listed on the client.
func (c *Client) HasDriver(driverID string) bool {
	for _, id := range c.AssignedDriverIDs {
		if id == driverID {
			return true
		}
	}
	return false
}

// AddDriver lists the driver on the client once.
func (c *Client) AddDriver(driverID string) {
	if !c.HasDriver(driverID) {
		c.AssignedDriverIDs = append(c.AssignedDriverIDs, driverID)
	}
}

// RemoveDriver unlists the driver from the client.
func (c *Client) RemoveDriver(driverID string) {
	out := make([]string, 0, len(c.AssignedDriverIDs))
	for _, id := range c.AssignedDriverIDs {
		if id != driverID {
			out = append(out, id)
		}
	}
	c.AssignedDriverIDs = out
}

// Clone returns a deep copy of the client.
func (c Client) Clone() Client {
	cp := c
	cp.AssignedDriverIDs = append([]string(nil), c.AssignedDriverIDs...)
	return cp
}

// ClientPatch carries the editable client fields.
type ClientPatch struct {
	Name          *string    `json:"name,omitempty"`
	ContractStart *time.Time `json:"contract_start,omitempty"`
	ContractEnd   *time.Time `json:"contract_end,omitempty"`
	Rate          *float64   `json:"rate,omitempty"`
	SLA           *string    `json:"sla,omitempty"`
}

// Apply merges the patch into the client.
func (p ClientPatch) Apply(c *Client) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.ContractStart != nil {
		c.ContractStart = *p.ContractStart
	}
	if p.ContractEnd != nil {
		c.ContractEnd = *p.ContractEnd
	}
	if p.Rate != nil {
		c.Rate = *p.Rate
	}
	if p.SLA != nil {
		c.SLA = *p.SLA
	}
}
