package ledger

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// ReassignmentRequest releases an Active driver. Every bound item needs a
// terminal disposition before the request is accepted.
type ReassignmentRequest struct {
	ActorID   string                   `json:"-"`
	DriverID  string                   `json:"driver_id"`
	Reason    string                   `json:"reason"`
	NewStatus models.DriverStatus      `json:"new_status"`
	Items     []models.ItemDisposition `json:"items"`

	ExpectedDriverVersion *int64 `json:"expected_driver_version,omitempty"`
}

// ReleaseStatuses are the statuses a reassignment may move a driver to.
var ReleaseStatuses = []models.DriverStatus{
	models.DriverVacation,
	models.DriverProjectChange,
	models.DriverIdle,
	models.DriverInactive,
}

func isReleaseStatus(s models.DriverStatus) bool {
	for _, r := range ReleaseStatuses {
		if r == s {
			return true
		}
	}
	return false
}

type itemKey struct {
	kind models.ItemKind
	id   string
}

// SubmitReassignment returns or flags every item bound to the driver,
// unbinds it from its client and records a closing assignment record.
func (s *Store) SubmitReassignment(ctx context.Context, req ReassignmentRequest) (models.Assignment, error) {
	var rec models.Assignment
	var missing int
	err := s.update(ctx, req.ActorID, func(t *tx) error {
		bound, err := t.validateReassignment(req)
		if err != nil {
			return err
		}
		d, _ := t.drivers.edit(req.DriverID)
		before := d.Clone()

		var notes []string
		closing := models.Assignment{
			DriverID:     d.ID,
			ClientID:     d.AssignedClientID,
			VehicleID:    d.AssignedVehicleID,
			SimID:        d.AssignedSimID,
			Assets:       append([]models.AssetLine(nil), d.AssignedAssets...),
			Status:       models.AssignmentClosed,
			Reason:       req.Reason,
			Dispositions: make([]models.ItemDisposition, 0, len(req.Items)),
		}
		if prev := t.activeAssignment(d.ID); prev != nil {
			closing.SupersedesID = prev.ID
			closing.DateOfJoining = prev.DateOfJoining
			closing.PayModel = prev.PayModel
		}

		for _, item := range req.Items {
			qty := bound[itemKey{item.Kind, item.ResourceID}]
			item.Quantity = qty
			closing.Dispositions = append(closing.Dispositions, item)
			if item.State == models.DispositionMissing {
				missing++
				note := fmt.Sprintf("%s %s not returned: %s", item.Kind, item.ResourceID, item.Note)
				notes = append(notes, note)
				d.Notes = append(d.Notes, models.DriverNote{Text: note, Author: t.actor, CreatedAt: t.now})
			}
			t.releaseItem(d.ID, item)
		}

		if c, ok := t.clients.edit(d.AssignedClientID); ok {
			c.RemoveDriver(d.ID)
		}
		d.ClearBindings()
		d.SetStatus(req.NewStatus, t.now)

		t.addAssignment(closing)
		rec = t.assignments[len(t.assignments)-1].Clone()

		t.appendAudit(models.AuditEntry{
			Action:       models.ActionReassignDriver,
			EntityType:   models.EntityDriver,
			EntityID:     d.ID,
			Before:       before,
			After:        d.Clone(),
			Reason:       req.Reason,
			Notes:        notes,
			MissingCount: missing,
		})
		return nil
	})
	if err != nil {
		s.logger.WithField("driver_id", req.DriverID).WithError(err).Debug("Reassignment rejected")
		return models.Assignment{}, err
	}
	s.logger.WithFields(log.Fields{
		"driver_id":     req.DriverID,
		"new_status":    req.NewStatus,
		"missing_items": missing,
		"assignment_id": rec.ID,
	}).Info("Driver reassigned")
	return rec, nil
}

// validateReassignment checks the request against the driver's bindings and
// returns the bound items keyed by kind and id with their quantities.
func (t *tx) validateReassignment(req ReassignmentRequest) (map[itemKey]int, error) {
	d, ok := t.drivers.peek(req.DriverID)
	if !ok {
		return nil, notFound(models.EntityDriver, req.DriverID)
	}
	if req.ExpectedDriverVersion != nil && *req.ExpectedDriverVersion != d.Version {
		return nil, reject(ErrStaleState, "stale_driver", "expected_driver_version",
			"driver %q is at version %d, not %d", d.ID, d.Version, *req.ExpectedDriverVersion)
	}
	if d.Status != models.DriverActive {
		return nil, reject(ErrInvalidTransition, "driver_not_active", "driver_id",
			"driver %q is %s, only Active drivers can be reassigned", d.ID, d.Status)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, reject(ErrInvalidRequest, "missing_reason", "reason", "a reassignment reason is required")
	}
	if !isReleaseStatus(req.NewStatus) {
		return nil, reject(ErrInvalidTransition, "invalid_new_status", "new_status",
			"a reassigned driver cannot move to %q", req.NewStatus)
	}

	bound := make(map[itemKey]int)
	if d.AssignedVehicleID != "" {
		bound[itemKey{models.ItemVehicle, d.AssignedVehicleID}] = 1
	}
	if d.AssignedSimID != "" {
		bound[itemKey{models.ItemSim, d.AssignedSimID}] = 1
	}
	for _, line := range d.AssignedAssets {
		bound[itemKey{models.ItemAsset, line.AssetID}] = line.Quantity
	}

	seen := make(map[itemKey]bool, len(req.Items))
	for _, item := range req.Items {
		key := itemKey{item.Kind, item.ResourceID}
		qty, ok := bound[key]
		if !ok {
			return nil, reject(ErrInvalidRequest, "item_not_bound", "items",
				"%s %q is not bound to driver %q", item.Kind, item.ResourceID, d.ID)
		}
		if seen[key] {
			return nil, reject(ErrInvalidRequest, "duplicate_item", "items",
				"%s %q has more than one disposition", item.Kind, item.ResourceID)
		}
		seen[key] = true
		if !item.State.IsTerminal() {
			return nil, reject(ErrInvalidRequest, "item_pending", "items",
				"%s %q must be returned or marked missing", item.Kind, item.ResourceID)
		}
		if item.State == models.DispositionMissing && strings.TrimSpace(item.Note) == "" {
			return nil, reject(ErrInvalidRequest, "missing_note_required", "items",
				"%s %q is marked missing without a note", item.Kind, item.ResourceID)
		}
		if item.Quantity != 0 && item.Quantity != qty {
			return nil, reject(ErrInvalidRequest, "quantity_mismatch", "items",
				"asset %q is bound with quantity %d, not %d", item.ResourceID, qty, item.Quantity)
		}
	}
	for key := range bound {
		if !seen[key] {
			return nil, reject(ErrInvalidRequest, "item_unresolved", "items",
				"%s %q has no disposition", key.kind, key.id)
		}
	}
	return bound, nil
}

// releaseItem applies one terminal disposition to the resource pools.
func (t *tx) releaseItem(driverID string, item models.ItemDisposition) {
	missing := item.State == models.DispositionMissing
	switch item.Kind {
	case models.ItemVehicle:
		v, _ := t.vehicles.edit(item.ResourceID)
		v.AssignedDriverID = ""
		if missing {
			since := t.now
			v.Status = models.VehicleOutOfService
			v.MissingNote = item.Note
			v.MissingSince = &since
		} else {
			v.Status = models.VehicleAvailable
		}
	case models.ItemSim:
		sim, _ := t.sims.edit(item.ResourceID)
		sim.AssignedDriverID = ""
		if missing {
			since := t.now
			sim.Status = models.SimLost
			sim.MissingNote = item.Note
			sim.MissingSince = &since
		} else {
			sim.Status = models.SimAvailable
		}
	case models.ItemAsset:
		a, _ := t.assets.edit(item.ResourceID)
		i := a.ActiveLine(driverID)
		if i < 0 {
			return
		}
		if !missing {
			a.AvailableQuantity += a.Assignments[i].Quantity
			a.RemoveLine(i)
			return
		}
		if j := a.MissingLine(driverID); j >= 0 {
			// fold into the earlier missing line so a driver has at most one
			a.Assignments[j].Quantity += a.Assignments[i].Quantity
			a.Assignments[j].Note = strings.TrimSpace(a.Assignments[j].Note + "; " + item.Note)
			a.RemoveLine(i)
			return
		}
		a.Assignments[i].Missing = true
		a.Assignments[i].Note = item.Note
	}
}

// activeAssignment returns the driver's most recent Active record that has
// not been closed yet, or nil.
func (t *tx) activeAssignment(driverID string) *models.Assignment {
	closed := make(map[string]bool)
	all := append(append([]models.Assignment(nil), t.base.assignments...), t.assignments...)
	for i := len(all) - 1; i >= 0; i-- {
		a := all[i]
		if a.DriverID != driverID {
			continue
		}
		if a.Status == models.AssignmentClosed {
			closed[a.SupersedesID] = true
			continue
		}
		if !closed[a.ID] {
			return &a
		}
	}
	return nil
}
