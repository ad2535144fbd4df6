package ledger

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// AssignmentRequest binds an unassigned driver to a client together with
// the resources issued to it.
type AssignmentRequest struct {
	ActorID       string             `json:"-"`
	DriverID      string             `json:"driver_id"`
	ClientID      string             `json:"client_id"`
	DateOfJoining time.Time          `json:"date_of_joining"`
	PayModel      models.PayModel    `json:"pay_model"`
	VehicleID     string             `json:"vehicle_id,omitempty"`
	SimID         string             `json:"sim_id,omitempty"`
	Assets        []models.AssetLine `json:"assets,omitempty"`

	// ExpectedDriverVersion, when set, must match the driver's current
	// version or the request fails with ErrStaleState.
	ExpectedDriverVersion *int64 `json:"expected_driver_version,omitempty"`
}

// SubmitAssignment validates every precondition and then applies the
// assignment as one unit. On any rejection nothing changes.
func (s *Store) SubmitAssignment(ctx context.Context, req AssignmentRequest) (models.Assignment, error) {
	var rec models.Assignment
	err := s.update(ctx, req.ActorID, func(t *tx) error {
		d, err := t.validateAssignment(req)
		if err != nil {
			return err
		}
		before := d.Clone()

		rec = models.Assignment{
			DriverID:      d.ID,
			ClientID:      req.ClientID,
			DateOfJoining: req.DateOfJoining,
			PayModel:      req.PayModel,
			VehicleID:     req.VehicleID,
			SimID:         req.SimID,
			Assets:        append([]models.AssetLine(nil), req.Assets...),
			Status:        models.AssignmentActive,
		}
		t.addAssignment(rec)
		rec = t.assignments[len(t.assignments)-1].Clone()

		d.SetStatus(models.DriverActive, t.now)
		d.AssignedClientID = req.ClientID

		if req.VehicleID != "" {
			v, _ := t.vehicles.edit(req.VehicleID)
			v.Status = models.VehicleAssigned
			v.AssignedDriverID = d.ID
			d.AssignedVehicleID = v.ID
			d.AssignedVehiclePlate = v.Plate
		}
		if req.SimID != "" {
			sim, _ := t.sims.edit(req.SimID)
			sim.Status = models.SimAssigned
			sim.AssignedDriverID = d.ID
			d.AssignedSimID = sim.ID
			d.AssignedSimNumber = sim.Number
		}
		for _, line := range req.Assets {
			a, _ := t.assets.edit(line.AssetID)
			a.AvailableQuantity -= line.Quantity
			a.Assignments = append(a.Assignments, models.AssetAssignment{
				DriverID:   d.ID,
				Quantity:   line.Quantity,
				Condition:  line.Condition,
				AssignedAt: t.now,
			})
			d.AssignedAssets = append(d.AssignedAssets, line)
		}

		c, _ := t.clients.edit(req.ClientID)
		c.AddDriver(d.ID)

		t.appendAudit(models.AuditEntry{
			Action:     models.ActionAssignDriver,
			EntityType: models.EntityDriver,
			EntityID:   d.ID,
			Before:     before,
			After:      d.Clone(),
		})
		return nil
	})
	if err != nil {
		s.logger.WithFields(log.Fields{
			"driver_id": req.DriverID,
			"client_id": req.ClientID,
		}).WithError(err).Debug("Assignment rejected")
		return models.Assignment{}, err
	}
	s.logger.WithFields(log.Fields{
		"driver_id":     req.DriverID,
		"client_id":     req.ClientID,
		"vehicle_id":    req.VehicleID,
		"sim_id":        req.SimID,
		"asset_lines":   len(req.Assets),
		"assignment_id": rec.ID,
	}).Info("Driver assigned")
	return rec, nil
}

// validateAssignment checks the preconditions in order and stages the
// driver for editing only when all of them hold.
func (t *tx) validateAssignment(req AssignmentRequest) (*models.Driver, error) {
	if strings.TrimSpace(req.DriverID) == "" {
		return nil, reject(ErrInvalidRequest, "missing_driver", "driver_id", "driver id is required")
	}
	cur, ok := t.drivers.peek(req.DriverID)
	if !ok {
		return nil, notFound(models.EntityDriver, req.DriverID)
	}
	if req.ExpectedDriverVersion != nil && *req.ExpectedDriverVersion != cur.Version {
		return nil, reject(ErrStaleState, "stale_driver", "expected_driver_version",
			"driver %q is at version %d, not %d", cur.ID, cur.Version, *req.ExpectedDriverVersion)
	}
	if cur.AssignedClientID != "" {
		return nil, reject(ErrResourceUnavailable, "driver_already_assigned", "driver_id",
			"driver %q is already assigned to client %q", cur.ID, cur.AssignedClientID)
	}
	if strings.TrimSpace(req.ClientID) == "" {
		return nil, reject(ErrInvalidRequest, "missing_client", "client_id", "client id is required")
	}
	if _, ok := t.clients.peek(req.ClientID); !ok {
		return nil, notFound(models.EntityClient, req.ClientID)
	}
	if req.DateOfJoining.IsZero() {
		return nil, reject(ErrInvalidRequest, "missing_date_of_joining", "date_of_joining",
			"date of joining is required")
	}
	if req.PayModel == "" {
		return nil, reject(ErrInvalidRequest, "missing_pay_model", "pay_model", "pay model is required")
	}
	if !models.IsValidPayModel(req.PayModel) {
		return nil, reject(ErrInvalidRequest, "invalid_pay_model", "pay_model", "unknown pay model %q", req.PayModel)
	}
	if !models.CanTransition(cur.Status, models.DriverActive) {
		return nil, reject(ErrInvalidTransition, "driver_not_assignable", "driver_id",
			"driver %q cannot become Active from %s", cur.ID, cur.Status)
	}

	if req.VehicleID != "" {
		v, ok := t.vehicles.peek(req.VehicleID)
		if !ok {
			return nil, notFound(models.EntityVehicle, req.VehicleID)
		}
		if v.Status != models.VehicleAvailable {
			return nil, reject(ErrResourceUnavailable, "vehicle_unavailable", "vehicle_id",
				"vehicle %q is %s", v.ID, v.Status)
		}
	}
	if req.SimID != "" {
		sim, ok := t.sims.peek(req.SimID)
		if !ok {
			return nil, notFound(models.EntitySim, req.SimID)
		}
		if sim.Status != models.SimAvailable {
			return nil, reject(ErrResourceUnavailable, "sim_unavailable", "sim_id",
				"sim %q is %s", sim.ID, sim.Status)
		}
	}
	seen := make(map[string]bool, len(req.Assets))
	for _, line := range req.Assets {
		if line.Quantity <= 0 {
			return nil, reject(ErrInvalidRequest, "invalid_quantity", "assets",
				"quantity for asset %q must be positive", line.AssetID)
		}
		if seen[line.AssetID] {
			return nil, reject(ErrInvalidRequest, "duplicate_asset", "assets",
				"asset %q is listed more than once", line.AssetID)
		}
		seen[line.AssetID] = true
		a, ok := t.assets.peek(line.AssetID)
		if !ok {
			return nil, notFound(models.EntityAsset, line.AssetID)
		}
		if line.Quantity > a.AvailableQuantity {
			return nil, reject(ErrResourceUnavailable, "insufficient_quantity", "assets",
				"asset %q has %d available, %d requested", a.ID, a.AvailableQuantity, line.Quantity)
		}
	}

	d, _ := t.drivers.edit(req.DriverID)
	return d, nil
}
