package models

import (
	"time"
)

// AuditAction names the kind of mutation an audit entry records.
type AuditAction string

const (
	ActionAssignDriver    AuditAction = "assign_driver"
	ActionReassignDriver  AuditAction = "reassign_driver"
	ActionIdleDecay       AuditAction = "idle_decay"
	ActionSetDriverStatus AuditAction = "set_driver_status"
	ActionSetStatus       AuditAction = "set_status"
	ActionAdjustCapacity  AuditAction = "adjust_capacity"
	ActionResolveMissing  AuditAction = "resolve_missing"
	ActionCreate          AuditAction = "create"
	ActionUpdate          AuditAction = "update"
	ActionDelete          AuditAction = "delete"
)

// Entity types referenced by audit entries.
const (
	EntityDriver  = "driver"
	EntityVehicle = "vehicle"
	EntitySim     = "sim"
	EntityAsset   = "asset"
	EntityClient  = "client"
)

// SystemActor is the actor recorded for mutations no user asked for.
const SystemActor = "system"

// AuditEntry is one append-only record of a mutation.
type AuditEntry struct {
	ID           string      `bson:"_id" json:"id"`
	Seq          int64       `bson:"seq" json:"seq"`
	ActorID      string      `bson:"actor_id" json:"actor_id"`
	Action       AuditAction `bson:"action" json:"action"`
	EntityType   string      `bson:"entity_type" json:"entity_type"`
	EntityID     string      `bson:"entity_id" json:"entity_id"`
	Before       interface{} `bson:"before,omitempty" json:"before,omitempty"`
	After        interface{} `bson:"after,omitempty" json:"after,omitempty"`
	Reason       string      `bson:"reason,omitempty" json:"reason,omitempty"`
	Notes        []string    `bson:"notes,omitempty" json:"notes,omitempty"`
	MissingCount int         `bson:"missing_count,omitempty" json:"missing_count,omitempty"`
	Timestamp    time.Time   `bson:"timestamp" json:"timestamp"`
}

// AuditFilter narrows a read of the audit log. Zero fields match everything.
type AuditFilter struct {
	Action     AuditAction
	ActorID    string
	EntityType string
	EntityID   string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Matches reports whether the entry satisfies the filter.
func (f AuditFilter) Matches(e *AuditEntry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}
