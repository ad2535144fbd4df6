package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ukydev/fleet-ledger/internal/models"
)

// verify checks the invariants of every record staged in the transaction.
// Untouched records were consistent before and cannot have changed.
func (t *tx) verify() error {
	var errs []error
	for _, id := range t.drivers.touched() {
		errs = append(errs, t.checkDriver(id)...)
	}
	for _, id := range t.vehicles.touched() {
		errs = append(errs, t.checkVehicle(id)...)
	}
	for _, id := range t.sims.touched() {
		errs = append(errs, t.checkSim(id)...)
	}
	for _, id := range t.assets.touched() {
		errs = append(errs, t.checkAsset(id)...)
	}
	for _, id := range t.clients.touched() {
		errs = append(errs, t.checkClient(id)...)
	}
	errs = append(errs, t.checkDeletions()...)
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvariantViolation, errors.Join(errs...))
}

// verifyAll checks every record in the state.
func (t *tx) verifyAll() error {
	var errs []error
	for _, id := range t.drivers.ids() {
		errs = append(errs, t.checkDriver(id)...)
	}
	for _, id := range t.vehicles.ids() {
		errs = append(errs, t.checkVehicle(id)...)
	}
	for _, id := range t.sims.ids() {
		errs = append(errs, t.checkSim(id)...)
	}
	for _, id := range t.assets.ids() {
		errs = append(errs, t.checkAsset(id)...)
	}
	for _, id := range t.clients.ids() {
		errs = append(errs, t.checkClient(id)...)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvariantViolation, errors.Join(errs...))
}

// CheckInvariants verifies every pool invariant over the committed state.
func (s *Store) CheckInvariants(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var err error
	s.view(func(t *tx) { err = t.verifyAll() })
	return err
}

func (t *tx) checkDriver(id string) []error {
	d, ok := t.drivers.peek(id)
	if !ok {
		return nil
	}
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("driver %s: "+format, append([]interface{}{id}, args...)...))
	}
	if !models.IsValidDriverStatus(d.Status) {
		fail("unknown status %q", d.Status)
	}
	if (d.IdleStartDate != nil) != (d.Status == models.DriverIdle) {
		fail("idle start date set=%v with status %q", d.IdleStartDate != nil, d.Status)
	}
	if d.Status == models.DriverActive && d.AssignedClientID == "" {
		fail("active without a client")
	}
	if d.Status != models.DriverActive && d.IsBound() {
		fail("bindings held with status %q", d.Status)
	}
	if d.AssignedClientID != "" {
		if c, ok := t.clients.peek(d.AssignedClientID); !ok || !c.HasDriver(id) {
			fail("client %s does not list the driver", d.AssignedClientID)
		}
	}
	if d.AssignedVehicleID != "" {
		v, ok := t.vehicles.peek(d.AssignedVehicleID)
		if !ok || v.Status != models.VehicleAssigned || v.AssignedDriverID != id {
			fail("vehicle %s is not assigned to the driver", d.AssignedVehicleID)
		}
	}
	if d.AssignedSimID != "" {
		s, ok := t.sims.peek(d.AssignedSimID)
		if !ok || s.Status != models.SimAssigned || s.AssignedDriverID != id {
			fail("sim %s is not assigned to the driver", d.AssignedSimID)
		}
	}
	seen := make(map[string]bool, len(d.AssignedAssets))
	for _, line := range d.AssignedAssets {
		if seen[line.AssetID] {
			fail("asset %s bound twice", line.AssetID)
		}
		seen[line.AssetID] = true
		a, ok := t.assets.peek(line.AssetID)
		if !ok {
			fail("asset %s does not exist", line.AssetID)
			continue
		}
		i := a.ActiveLine(id)
		if i < 0 || a.Assignments[i].Quantity != line.Quantity {
			fail("asset %s does not record %d units for the driver", line.AssetID, line.Quantity)
		}
	}
	return errs
}

func (t *tx) checkVehicle(id string) []error {
	v, ok := t.vehicles.peek(id)
	if !ok {
		return nil
	}
	var errs []error
	if !models.IsValidVehicleStatus(v.Status) {
		errs = append(errs, fmt.Errorf("vehicle %s: unknown status %q", id, v.Status))
	}
	if (v.Status == models.VehicleAssigned) != (v.AssignedDriverID != "") {
		errs = append(errs, fmt.Errorf("vehicle %s: status %q with driver %q", id, v.Status, v.AssignedDriverID))
	}
	if v.AssignedDriverID != "" {
		if d, ok := t.drivers.peek(v.AssignedDriverID); !ok || d.AssignedVehicleID != id {
			errs = append(errs, fmt.Errorf("vehicle %s: driver %s does not reference it", id, v.AssignedDriverID))
		}
	}
	return errs
}

func (t *tx) checkSim(id string) []error {
	s, ok := t.sims.peek(id)
	if !ok {
		return nil
	}
	var errs []error
	if !models.IsValidSimStatus(s.Status) {
		errs = append(errs, fmt.Errorf("sim %s: unknown status %q", id, s.Status))
	}
	if (s.Status == models.SimAssigned) != (s.AssignedDriverID != "") {
		errs = append(errs, fmt.Errorf("sim %s: status %q with driver %q", id, s.Status, s.AssignedDriverID))
	}
	if s.AssignedDriverID != "" {
		if d, ok := t.drivers.peek(s.AssignedDriverID); !ok || d.AssignedSimID != id {
			errs = append(errs, fmt.Errorf("sim %s: driver %s does not reference it", id, s.AssignedDriverID))
		}
	}
	return errs
}

func (t *tx) checkAsset(id string) []error {
	a, ok := t.assets.peek(id)
	if !ok {
		return nil
	}
	var errs []error
	if a.AvailableQuantity < 0 || a.AvailableQuantity > a.TotalQuantity {
		errs = append(errs, fmt.Errorf("asset %s: available %d outside [0, %d]", id, a.AvailableQuantity, a.TotalQuantity))
	}
	if out := a.OutstandingQuantity(); a.TotalQuantity-a.AvailableQuantity != out {
		errs = append(errs, fmt.Errorf("asset %s: total %d - available %d != outstanding %d",
			id, a.TotalQuantity, a.AvailableQuantity, out))
	}
	active := make(map[string]bool)
	for _, line := range a.Assignments {
		if line.Quantity <= 0 {
			errs = append(errs, fmt.Errorf("asset %s: non-positive line for driver %s", id, line.DriverID))
		}
		if line.Missing {
			continue
		}
		if active[line.DriverID] {
			errs = append(errs, fmt.Errorf("asset %s: driver %s holds two live lines", id, line.DriverID))
		}
		active[line.DriverID] = true
		d, ok := t.drivers.peek(line.DriverID)
		if !ok || !driverHoldsAsset(d, id, line.Quantity) {
			errs = append(errs, fmt.Errorf("asset %s: driver %s does not hold %d units", id, line.DriverID, line.Quantity))
		}
	}
	return errs
}

func (t *tx) checkClient(id string) []error {
	c, ok := t.clients.peek(id)
	if !ok {
		return nil
	}
	var errs []error
	for _, driverID := range c.AssignedDriverIDs {
		if d, ok := t.drivers.peek(driverID); !ok || d.AssignedClientID != id {
			errs = append(errs, fmt.Errorf("client %s: driver %s is not bound to it", id, driverID))
		}
	}
	return errs
}

// checkDeletions makes sure nothing still points at a removed record.
func (t *tx) checkDeletions() []error {
	var errs []error
	for _, id := range t.drivers.deletedIDs() {
		if prev, ok := t.drivers.base[id]; ok && prev.IsBound() {
			errs = append(errs, fmt.Errorf("driver %s: deleted while bound", id))
		}
	}
	for _, id := range t.vehicles.deletedIDs() {
		if prev, ok := t.vehicles.base[id]; ok && prev.AssignedDriverID != "" {
			errs = append(errs, fmt.Errorf("vehicle %s: deleted while assigned", id))
		}
	}
	for _, id := range t.sims.deletedIDs() {
		if prev, ok := t.sims.base[id]; ok && prev.AssignedDriverID != "" {
			errs = append(errs, fmt.Errorf("sim %s: deleted while assigned", id))
		}
	}
	for _, id := range t.assets.deletedIDs() {
		if prev, ok := t.assets.base[id]; ok && len(prev.Assignments) > 0 {
			errs = append(errs, fmt.Errorf("asset %s: deleted with outstanding lines", id))
		}
	}
	for _, id := range t.clients.deletedIDs() {
		if prev, ok := t.clients.base[id]; ok && len(prev.AssignedDriverIDs) > 0 {
			errs = append(errs, fmt.Errorf("client %s: deleted with drivers", id))
		}
	}
	return errs
}

func driverHoldsAsset(d *models.Driver, assetID string, qty int) bool {
	for _, line := range d.AssignedAssets {
		if line.AssetID == assetID {
			return line.Quantity == qty
		}
	}
	return false
}
