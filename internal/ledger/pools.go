package ledger

import (
	"context"
	"strings"

	"github.com/ukydev/fleet-ledger/internal/models"
)

// CreateDriver inserts a new, unbound driver. Drivers without a status
// start Idle.
func (s *Store) CreateDriver(ctx context.Context, actorID string, d models.Driver) (models.Driver, error) {
	err := s.update(ctx, actorID, func(t *tx) error {
		if strings.TrimSpace(d.ID) == "" {
			return reject(ErrInvalidRequest, "missing_id", "id", "driver id is required")
		}
		if _, ok := t.drivers.peek(d.ID); ok {
			return reject(ErrAlreadyExists, "driver_exists", "id", "driver %q already exists", d.ID)
		}
		if d.IsBound() {
			return reject(ErrInvalidRequest, "bindings_not_allowed", "assigned_client_id",
				"bindings are set by the assignment workflow")
		}
		status := d.Status
		if status == "" {
			status = models.DriverIdle
		}
		if !models.IsValidDriverStatus(status) {
			return reject(ErrInvalidRequest, "invalid_status", "status", "unknown driver status %q", status)
		}
		if status == models.DriverActive {
			return reject(ErrInvalidTransition, "active_requires_assignment", "status",
				"a driver becomes Active only through an assignment")
		}
		d = d.Clone()
		d.Status = ""
		d.IdleStartDate = nil
		d.SetStatus(status, t.now)
		d.Version = 0
		d.CreatedAt = t.now
		t.drivers.put(d.ID, d)
		t.appendAudit(models.AuditEntry{
			Action: models.ActionCreate, EntityType: models.EntityDriver, EntityID: d.ID,
			After: d.Clone(),
		})
		return nil
	})
	if err != nil {
		return models.Driver{}, err
	}
	return s.Driver(d.ID)
}

// UpdateDriver merges a patch of descriptive fields into a driver.
func (s *Store) UpdateDriver(ctx context.Context, actorID, id string, patch models.DriverPatch) (models.Driver, error) {
	err := s.update(ctx, actorID, func(t *tx) error {
		d, ok := t.drivers.edit(id)
		if !ok {
			return notFound(models.EntityDriver, id)
		}
		before := d.Clone()
		patch.Apply(d)
		t.appendAudit(models.AuditEntry{
			Action: models.ActionUpdate, EntityType: models.EntityDriver, EntityID: id,
			Before: before, After: d.Clone(),
		})
		return nil
	})
	if err != nil {
		return models.Driver{}, err
	}
	return s.Driver(id)
}

// DeleteDriver removes an unbound driver.
func (s *Store) DeleteDriver(ctx context.Context, actorID, id string) error {
	return s.update(ctx, actorID, func(t *tx) error {
		d, ok := t.drivers.peek(id)
		if !ok {
			return notFound(models.EntityDriver, id)
		}
		if d.IsBound() || d.Status == models.DriverActive {
			return reject(ErrResourceInUse, "driver_bound", "driver_id",
				"driver %q is assigned to client %q; reassign first", id, d.AssignedClientID)
		}
		before := d.Clone()
		t.drivers.remove(id)
		t.appendAudit(models.AuditEntry{
			Action: models.ActionDelete, EntityType: models.EntityDriver, EntityID: id, Before: before,
		})
		return nil
	})
}

// StatusChangeRequest moves an unbound driver to another status.
type StatusChangeRequest struct {
	ActorID  string              `json:"-"`
	DriverID string              `json:"driver_id"`
	Status   models.DriverStatus `json:"status"`
	Reason   string              `json:"reason"`
}

// SetDriverStatus applies a status change that follows the transition
// table. Active is only reachable through SubmitAssignment and an Active
// driver only leaves it through SubmitReassignment.
func (s *Store) SetDriverStatus(ctx context.Context, req StatusChangeRequest) (models.Driver, error) {
	err := s.update(ctx, req.ActorID, func(t *tx) error {
		d, ok := t.drivers.edit(req.DriverID)
		if !ok {
			return notFound(models.EntityDriver, req.DriverID)
		}
		if !models.IsValidDriverStatus(req.Status) {
			return reject(ErrInvalidRequest, "invalid_status", "status", "unknown driver status %q", req.Status)
		}
		if req.Status == models.DriverActive {
			return reject(ErrInvalidTransition, "active_requires_assignment", "status",
				"a driver becomes Active only through an assignment")
		}
		if d.Status == models.DriverActive {
			return reject(ErrInvalidTransition, "active_requires_reassignment", "status",
				"driver %q is Active; use a reassignment to release it", d.ID)
		}
		if d.Status == req.Status {
			return reject(ErrInvalidTransition, "status_unchanged", "status", "driver is already %s", d.Status)
		}
		if !models.CanTransition(d.Status, req.Status) {
			return reject(ErrInvalidTransition, "transition_not_allowed", "status",
				"cannot move driver from %s to %s", d.Status, req.Status)
		}
		before := d.Clone()
		d.SetStatus(req.Status, t.now)
		t.appendAudit(models.AuditEntry{
			Action: models.ActionSetDriverStatus, EntityType: models.EntityDriver, EntityID: d.ID,
			Before: before, After: d.Clone(), Reason: req.Reason,
		})
		return nil
	})
	if err != nil {
		return models.Driver{}, err
	}
	return s.Driver(req.DriverID)
}

// CreateVehicle inserts a new, unassigned vehicle.
func (s *Store) CreateVehicle(ctx context.Context, actorID string, v models.Vehicle) (models.Vehicle, error) {
	err := s.update(ctx, actorID, func(t *tx) error {
		if strings.TrimSpace(v.ID) == "" {
			return reject(ErrInvalidRequest, "missing_id", "id", "vehicle chassis number is required")
		}
		if _, ok := t.vehicles.peek(v.ID); ok {
			return reject(ErrAlreadyExists, "vehicle_exists", "id", "vehicle %q already exists", v.ID)
		}
		if v.Status == "" {
			v.Status = models.VehicleAvailable
		}
		if v.Status == models.VehicleAssigned || v.AssignedDriverID != "" {
			return reject(ErrInvalidRequest, "assignment_not_allowed", "status",
				"vehicles are assigned by the assignment workflow")
		}
		if !models.IsValidVehicleStatus(v.Status) {
			return reject(ErrInvalidRequest, "invalid_status", "status", "unknown vehicle status %q", v.Status)
		}
		v = v.Clone()
		v.Version = 0
		v.CreatedAt = t.now
		t.vehicles.put(v.ID, v)
		t.appendAudit(models.AuditEntry{
			Action: models.ActionCreate, EntityType: models.EntityVehicle, EntityID: v.ID, After: v.Clone(),
		})
		return nil
	})
	if err != nil {
		return models.Vehicle{}, err
	}
	return s.Vehicle(v.ID)
}

// UpdateVehicle merges a patch of descriptive fields into a vehicle.
func (s *Store) UpdateVehicle(ctx context.Context, actorID, id string, patch models.VehiclePatch) (models.Vehicle, error) {
	err := s.update(ctx, actorID, func(t *tx) error {
		v, ok := t.vehicles.edit(id)
		if !ok {
			return notFound(models.EntityVehicle, id)
		}
		before := v.Clone()
		patch.Apply(v)
		if v.AssignedDriverID != "" && v.Plate != before.Plate {
			// keep the driver's display key in step
			if d, ok := t.drivers.edit(v.AssignedDriverID); ok {
				d.AssignedVehiclePlate = v.Plate
			}
		}
		t.appendAudit(models.AuditEntry{
			Action: models.ActionUpdate, EntityType: models.EntityVehicle, EntityID: id,
			Before: before, After: v.Clone(),
		})
		return nil
	})
	if err != nil {
		return models.Vehicle{}, err
	}
	return s.Vehicle(id)
}

// DeleteVehicle removes a vehicle that is not assigned.
func (s *Store) DeleteVehicle(ctx context.Context, actorID, id string) error {
	return s.update(ctx, actorID, func(t *tx) error {
		v, ok := t.vehicles.peek(id)
		if !ok {
			return notFound(models.EntityVehicle, id)
		}
		if v.AssignedDriverID != "" {
			return reject(ErrResourceInUse, "vehicle_assigned", "vehicle_id",
				"vehicle %q is assigned to driver %q", id, v.AssignedDriverID)
		}
		before := v.Clone()
		t.vehicles.remove(id)
		t.appendAudit(models.AuditEntry{
			Action: models.ActionDelete, EntityType: models.EntityVehicle, EntityID: id, Before: before,
		})
		return nil
	})
}

// SetVehicleStatus moves an unassigned vehicle between Available,
// Maintenance and Out-of-service.
func (s *Store) SetVehicleStatus(ctx context.Context, actorID, id string, status models.VehicleStatus, reason string) (models.Vehicle, error) {
	err := s.update(ctx, actorID, func(t *tx) error {
		v, ok := t.vehicles.edit(id)
		if !ok {
			return notFound(models.EntityVehicle, id)
		}
		if !models.IsValidVehicleStatus(status) {
			return reject(ErrInvalidRequest, "invalid_status", "status", "unknown vehicle status %q", status)
		}
		if status == models.VehicleAssigned || v.Status == models.VehicleAssigned {
			return reject(ErrInvalidTransition, "assignment_managed", "status",
				"Assigned is set and cleared only by the assignment workflows")
		}
		if v.Status == status {
			return reject(ErrInvalidTransition, "status_unchanged", "status", "vehicle is already %s", status)
		}
		before := v.Clone()
		v.Status = status
		if status == models.VehicleAvailable {
			v.MissingNote = ""
			v.MissingSince = nil
		}
		t.appendAudit(models.AuditEntry{
			Action: models.ActionSetStatus, EntityType: models.EntityVehicle, EntityID: id,
			Before: before, After: v.Clone(), Reason: reason,
		})
		return nil
	})
	if err != nil {
		return models.Vehicle{}, err
	}
	return s.Vehicle(id)
}

// CreateSim inserts a new, unassigned SIM card.
func (s *Store) CreateSim(ctx context.Context, actorID string, sim models.Sim) (models.Sim, error) {
	err := s.update(ctx, actorID, func(t *tx) error {
		if strings.TrimSpace(sim.ID) == "" {
			return reject(ErrInvalidRequest, "missing_id", "id", "sim id is required")
		}
		if _, ok := t.sims.peek(sim.ID); ok {
			return reject(ErrAlreadyExists, "sim_exists", "id", "sim %q already exists", sim.ID)
		}
		if sim.Status == "" {
			sim.Status = models.SimAvailable
		}
		if sim.Status == models.SimAssigned || sim.AssignedDriverID != "" {
			return reject(ErrInvalidRequest, "assignment_not_allowed", "status",
				"sims are assigned by the assignment workflow")
		}
		if !models.IsValidSimStatus(sim.Status) {
			return reject(ErrInvalidRequest, "invalid_status", "status", "unknown sim status %q", sim.Status)
		}
		sim = sim.Clone()
		sim.Version = 0
		sim.CreatedAt = t.now
		t.sims.put(sim.ID, sim)
		t.appendAudit(models.AuditEntry{
			Action: models.ActionCreate, EntityType: models.EntitySim, EntityID: sim.ID, After: sim.Clone(),
		})
		return nil
	})
	if err != nil {
		return models.Sim{}, err
	}
	return s.Sim(sim.ID)
}

// UpdateSim merges a patch of descriptive fields into a SIM card.
func (s *Store) UpdateSim(ctx context.Context, actorID, id string, patch models.SimPatch) (models.Sim, error) {
	err := s.update(ctx, actorID, func(t *tx) error {
		sim, ok := t.sims.edit(id)
		if !ok {
			return notFound(models.EntitySim, id)
		}
		before := sim.Clone()
		patch.Apply(sim)
		if sim.AssignedDriverID != "" && sim.Number != before.Number {
			if d, ok := t.drivers.edit(sim.AssignedDriverID); ok {
				d.AssignedSimNumber = sim.Number
			}
		}
		t.appendAudit(models.AuditEntry{
			Action: models.ActionUpdate, EntityType: models.EntitySim, EntityID: id,
			Before: before, After: sim.Clone(),
		})
		return nil
	})
	if err != nil {
		return models.Sim{}, err
	}
	return s.Sim(id)
}

// DeleteSim removes a SIM card that is not assigned.
func (s *Store) DeleteSim(ctx context.Context, actorID, id string) error {
	return s.update(ctx, actorID, func(t *tx) error {
		sim, ok := t.sims.peek(id)
		if !ok {
			return notFound(models.EntitySim, id)
		}
		if sim.AssignedDriverID != "" {
			return reject(ErrResourceInUse, "sim_assigned", "sim_id",
				"sim %q is assigned to driver %q", id, sim.AssignedDriverID)
		}
		before := sim.Clone()
		t.sims.remove(id)
		t.appendAudit(models.AuditEntry{
			Action: models.ActionDelete, EntityType: models.EntitySim, EntityID: id, Before: before,
		})
		return nil
	})
}

// SetSimStatus moves an unassigned SIM between Available and Lost.
func (s *Store) SetSimStatus(ctx context.Context, actorID, id string, status models.SimStatus, reason string) (models.Sim, error) {
	err := s.update(ctx, actorID, func(t *tx) error {
		sim, ok := t.sims.edit(id)
		if !ok {
			return notFound(models.EntitySim, id)
		}
		if !models.IsValidSimStatus(status) {
			return reject(ErrInvalidRequest, "invalid_status", "status", "unknown sim status %q", status)
		}
		if status == models.SimAssigned || sim.Status == models.SimAssigned {
			return reject(ErrInvalidTransition, "assignment_managed", "status",
				"Assigned is set and cleared only by the assignment workflows")
		}
		if sim.Status == status {
			return reject(ErrInvalidTransition, "status_unchanged", "status", "sim is already %s", status)
		}
		before := sim.Clone()
		sim.Status = status
		if status == models.SimAvailable {
			sim.MissingNote = ""
			sim.MissingSince = nil
		}
		t.appendAudit(models.AuditEntry{
			Action: models.ActionSetStatus, EntityType: models.EntitySim, EntityID: id,
			Before: before, After: sim.Clone(), Reason: reason,
		})
		return nil
	})
	if err != nil {
		return models.Sim{}, err
	}
	return s.Sim(id)
}

// CreateAsset inserts a new asset type with its full capacity available.
func (s *Store) CreateAsset(ctx context.Context, actorID string, a models.Asset) (models.Asset, error) {
	err := s.update(ctx, actorID, func(t *tx) error {
		if strings.TrimSpace(a.ID) == "" {
			return reject(ErrInvalidRequest, "missing_id", "id", "asset id is required")
		}
		if _, ok := t.assets.peek(a.ID); ok {
			return reject(ErrAlreadyExists, "asset_exists", "id", "asset %q already exists", a.ID)
		}
		if a.TotalQuantity < 0 {
			return reject(ErrInvalidRequest, "negative_quantity", "total_quantity",
				"total quantity must not be negative")
		}
		if len(a.Assignments) > 0 {
			return reject(ErrInvalidRequest, "assignment_not_allowed", "assignments",
				"assets are assigned by the assignment workflow")
		}
		a = a.Clone()
		a.AvailableQuantity = a.TotalQuantity
		a.Assignments = nil
		a.Version = 0
		a.CreatedAt = t.now
		t.assets.put(a.ID, a)
		t.appendAudit(models.AuditEntry{
			Action: models.ActionCreate, EntityType: models.EntityAsset, EntityID: a.ID, After: a.Clone(),
		})
		return nil
	})
	if err != nil {
		return models.Asset{}, err
	}
	return s.Asset(a.ID)
}

// UpdateAsset merges a patch of descriptive fields into an asset.
func (s *Store) UpdateAsset(ctx context.Context, actorID, id string, patch models.AssetPatch) (models.Asset, error) {
	err := s.update(ctx, actorID, func(t *tx) error {
		a, ok := t.assets.edit(id)
		if !ok {
			return notFound(models.EntityAsset, id)
		}
		before := a.Clone()
		patch.Apply(a)
		t.appendAudit(models.AuditEntry{
			Action: models.ActionUpdate, EntityType: models.EntityAsset, EntityID: id,
			Before: before, After: a.Clone(),
		})
		return nil
	})
	if err != nil {
		return models.Asset{}, err
	}
	return s.Asset(id)
}

// DeleteAsset removes an asset type with no outstanding lines.
func (s *Store) DeleteAsset(ctx context.Context, actorID, id string) error {
	return s.update(ctx, actorID, func(t *tx) error {
		a, ok := t.assets.peek(id)
		if !ok {
			return notFound(models.EntityAsset, id)
		}
		if len(a.Assignments) > 0 {
			return reject(ErrResourceInUse, "asset_outstanding", "asset_id",
				"asset %q has %d units outstanding", id, a.OutstandingQuantity())
		}
		before := a.Clone()
		t.assets.remove(id)
		t.appendAudit(models.AuditEntry{
			Action: models.ActionDelete, EntityType: models.EntityAsset, EntityID: id, Before: before,
		})
		return nil
	})
}

// AdjustAssetCapacity adds delta units to both the total and the available
// quantity. A negative delta can only remove units that are available.
func (s *Store) AdjustAssetCapacity(ctx context.Context, actorID, id string, delta int, reason string) (models.Asset, error) {
	err := s.update(ctx, actorID, func(t *tx) error {
		a, ok := t.assets.edit(id)
		if !ok {
			return notFound(models.EntityAsset, id)
		}
		if delta == 0 {
			return reject(ErrInvalidRequest, "zero_delta", "delta", "capacity change must be non-zero")
		}
		if a.AvailableQuantity+delta < 0 {
			return reject(ErrResourceUnavailable, "insufficient_available", "delta",
				"only %d units of %s are available to remove", a.AvailableQuantity, a.Name)
		}
		before := a.Clone()
		a.TotalQuantity += delta
		a.AvailableQuantity += delta
		t.appendAudit(models.AuditEntry{
			Action: models.ActionAdjustCapacity, EntityType: models.EntityAsset, EntityID: id,
			Before: before, After: a.Clone(), Reason: reason,
		})
		return nil
	})
	if err != nil {
		return models.Asset{}, err
	}
	return s.Asset(id)
}

// CreateClient inserts a new client with no drivers.
func (s *Store) CreateClient(ctx context.Context, actorID string, c models.Client) (models.Client, error) {
	err := s.update(ctx, actorID, func(t *tx) error {
		if strings.TrimSpace(c.ID) == "" {
			return reject(ErrInvalidRequest, "missing_id", "id", "client id is required")
		}
		if _, ok := t.clients.peek(c.ID); ok {
			return reject(ErrAlreadyExists, "client_exists", "id", "client %q already exists", c.ID)
		}
		if len(c.AssignedDriverIDs) > 0 {
			return reject(ErrInvalidRequest, "assignment_not_allowed", "assigned_driver_ids",
				"drivers are bound by the assignment workflow")
		}
		if !c.ContractEnd.IsZero() && c.ContractEnd.Before(c.ContractStart) {
			return reject(ErrInvalidRequest, "invalid_contract_window", "contract_end",
				"contract ends before it starts")
		}
		c = c.Clone()
		c.AssignedDriverIDs = nil
		c.Version = 0
		c.CreatedAt = t.now
		t.clients.put(c.ID, c)
		t.appendAudit(models.AuditEntry{
			Action: models.ActionCreate, EntityType: models.EntityClient, EntityID: c.ID, After: c.Clone(),
		})
		return nil
	})
	if err != nil {
		return models.Client{}, err
	}
	return s.Client(c.ID)
}

// UpdateClient merges a patch into a client.
func (s *Store) UpdateClient(ctx context.Context, actorID, id string, patch models.ClientPatch) (models.Client, error) {
	err := s.update(ctx, actorID, func(t *tx) error {
		c, ok := t.clients.edit(id)
		if !ok {
			return notFound(models.EntityClient, id)
		}
		before := c.Clone()
		patch.Apply(c)
		if !c.ContractEnd.IsZero() && c.ContractEnd.Before(c.ContractStart) {
			return reject(ErrInvalidRequest, "invalid_contract_window", "contract_end",
				"contract ends before it starts")
		}
		t.appendAudit(models.AuditEntry{
			Action: models.ActionUpdate, EntityType: models.EntityClient, EntityID: id,
			Before: before, After: c.Clone(),
		})
		return nil
	})
	if err != nil {
		return models.Client{}, err
	}
	return s.Client(id)
}

// DeleteClient removes a client with no drivers.
func (s *Store) DeleteClient(ctx context.Context, actorID, id string) error {
	return s.update(ctx, actorID, func(t *tx) error {
		c, ok := t.clients.peek(id)
		if !ok {
			return notFound(models.EntityClient, id)
		}
		if len(c.AssignedDriverIDs) > 0 {
			return reject(ErrResourceInUse, "client_has_drivers", "client_id",
				"client %q still has %d drivers", id, len(c.AssignedDriverIDs))
		}
		before := c.Clone()
		t.clients.remove(id)
		t.appendAudit(models.AuditEntry{
			Action: models.ActionDelete, EntityType: models.EntityClient, EntityID: id, Before: before,
		})
		return nil
	})
}
