package ledger

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// Resolution is the outcome of following up on a missing item.
type Resolution string

const (
	ResolutionRecovered  Resolution = "recovered"
	ResolutionWrittenOff Resolution = "written_off"
)

// ResolveMissingRequest closes out an item that was marked missing during a
// reassignment. DriverID selects the missing line for assets.
type ResolveMissingRequest struct {
	ActorID    string          `json:"-"`
	Kind       models.ItemKind `json:"kind"`
	ResourceID string          `json:"resource_id"`
	DriverID   string          `json:"driver_id,omitempty"`
	Resolution Resolution      `json:"resolution"`
	Note       string          `json:"note"`
}

// ResolveMissing records that a missing item was recovered or written off.
// Recovered units return to the pool; written-off asset units leave the
// total.
func (s *Store) ResolveMissing(ctx context.Context, req ResolveMissingRequest) error {
	err := s.update(ctx, req.ActorID, func(t *tx) error {
		if req.Resolution != ResolutionRecovered && req.Resolution != ResolutionWrittenOff {
			return reject(ErrInvalidRequest, "invalid_resolution", "resolution",
				"resolution must be recovered or written_off")
		}
		recovered := req.Resolution == ResolutionRecovered
		audit := models.AuditEntry{
			Action: models.ActionResolveMissing,
			Reason: strings.TrimSpace(string(req.Resolution) + " " + req.Note),
		}

		switch req.Kind {
		case models.ItemVehicle:
			v, ok := t.vehicles.edit(req.ResourceID)
			if !ok {
				return notFound(models.EntityVehicle, req.ResourceID)
			}
			if v.MissingNote == "" {
				return reject(ErrInvalidRequest, "not_missing", "resource_id", "vehicle %q is not marked missing", v.ID)
			}
			audit.EntityType, audit.EntityID, audit.Before = models.EntityVehicle, v.ID, v.Clone()
			v.MissingNote = ""
			v.MissingSince = nil
			if recovered {
				v.Status = models.VehicleAvailable
			}
			audit.After = v.Clone()
		case models.ItemSim:
			sim, ok := t.sims.edit(req.ResourceID)
			if !ok {
				return notFound(models.EntitySim, req.ResourceID)
			}
			if sim.MissingNote == "" {
				return reject(ErrInvalidRequest, "not_missing", "resource_id", "sim %q is not marked missing", sim.ID)
			}
			audit.EntityType, audit.EntityID, audit.Before = models.EntitySim, sim.ID, sim.Clone()
			sim.MissingNote = ""
			sim.MissingSince = nil
			if recovered {
				sim.Status = models.SimAvailable
			}
			audit.After = sim.Clone()
		case models.ItemAsset:
			a, ok := t.assets.edit(req.ResourceID)
			if !ok {
				return notFound(models.EntityAsset, req.ResourceID)
			}
			i := a.MissingLine(req.DriverID)
			if i < 0 {
				return reject(ErrInvalidRequest, "not_missing", "driver_id",
					"asset %q has no missing units for driver %q", a.ID, req.DriverID)
			}
			audit.EntityType, audit.EntityID, audit.Before = models.EntityAsset, a.ID, a.Clone()
			qty := a.Assignments[i].Quantity
			a.RemoveLine(i)
			if recovered {
				a.AvailableQuantity += qty
			} else {
				a.TotalQuantity -= qty
			}
			audit.After = a.Clone()
		default:
			return reject(ErrInvalidRequest, "invalid_kind", "kind", "unknown item kind %q", req.Kind)
		}
		t.appendAudit(audit)
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{
		"kind":        req.Kind,
		"resource_id": req.ResourceID,
		"resolution":  req.Resolution,
	}).Info("Missing item resolved")
	return nil
}
