package ledger

import (
	"context"
	"fmt"

	"github.com/ukydev/fleet-ledger/internal/models"
)

// Driver returns a copy of one driver.
func (s *Store) Driver(id string) (models.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.st.drivers[id]
	if !ok {
		return models.Driver{}, notFound(models.EntityDriver, id)
	}
	return d.Clone(), nil
}

// Drivers returns copies of every driver ordered by id.
func (s *Store) Drivers() []models.Driver {
	return listAll(s, func(st *state) map[string]models.Driver { return st.drivers }, models.Driver.Clone)
}

// Vehicle returns a copy of one vehicle.
func (s *Store) Vehicle(id string) (models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.st.vehicles[id]
	if !ok {
		return models.Vehicle{}, notFound(models.EntityVehicle, id)
	}
	return v.Clone(), nil
}

// Vehicles returns copies of every vehicle ordered by id.
func (s *Store) Vehicles() []models.Vehicle {
	return listAll(s, func(st *state) map[string]models.Vehicle { return st.vehicles }, models.Vehicle.Clone)
}

// Sim returns a copy of one SIM card.
func (s *Store) Sim(id string) (models.Sim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sim, ok := s.st.sims[id]
	if !ok {
		return models.Sim{}, notFound(models.EntitySim, id)
	}
	return sim.Clone(), nil
}

// Sims returns copies of every SIM card ordered by id.
func (s *Store) Sims() []models.Sim {
	return listAll(s, func(st *state) map[string]models.Sim { return st.sims }, models.Sim.Clone)
}

// Asset returns a copy of one asset type.
func (s *Store) Asset(id string) (models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.st.assets[id]
	if !ok {
		return models.Asset{}, notFound(models.EntityAsset, id)
	}
	return a.Clone(), nil
}

// Assets returns copies of every asset type ordered by id.
func (s *Store) Assets() []models.Asset {
	return listAll(s, func(st *state) map[string]models.Asset { return st.assets }, models.Asset.Clone)
}

// Client returns a copy of one client.
func (s *Store) Client(id string) (models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.st.clients[id]
	if !ok {
		return models.Client{}, notFound(models.EntityClient, id)
	}
	return c.Clone(), nil
}

// Clients returns copies of every client ordered by id.
func (s *Store) Clients() []models.Client {
	return listAll(s, func(st *state) map[string]models.Client { return st.clients }, models.Client.Clone)
}

func listAll[T any](s *Store, pick func(*state) map[string]T, clone func(T) T) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := pick(&s.st)
	st := newStaged(m, clone)
	out := make([]T, 0, len(m))
	for _, id := range st.ids() {
		out = append(out, clone(m[id]))
	}
	return out
}

// ListAssignments returns assignment records in creation order, optionally
// only those of one driver.
func (s *Store) ListAssignments(driverID string) []models.Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Assignment, 0)
	for _, a := range s.st.assignments {
		if driverID == "" || a.DriverID == driverID {
			out = append(out, a.Clone())
		}
	}
	return out
}

// ListAuditLogs returns audit entries matching the filter in append order.
// A positive Limit keeps only the most recent entries.
func (s *Store) ListAuditLogs(f models.AuditFilter) []models.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AuditEntry, 0)
	for i := range s.st.audit {
		if f.Matches(&s.st.audit[i]) {
			out = append(out, s.st.audit[i])
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Snapshot is a full export of the ledger state.
type Snapshot struct {
	Drivers     []models.Driver     `json:"drivers"`
	Vehicles    []models.Vehicle    `json:"vehicles"`
	Sims        []models.Sim        `json:"sims"`
	Assets      []models.Asset      `json:"assets"`
	Clients     []models.Client     `json:"clients"`
	Assignments []models.Assignment `json:"assignments"`
	Audit       []models.AuditEntry `json:"audit"`
}

// Snapshot exports a consistent copy of the whole state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Assignments: make([]models.Assignment, 0, len(s.st.assignments)),
		Audit:       append([]models.AuditEntry(nil), s.st.audit...),
	}
	t := newTx(&s.st, s.nowFn(), "", s.newID)
	for _, id := range t.drivers.ids() {
		snap.Drivers = append(snap.Drivers, s.st.drivers[id].Clone())
	}
	for _, id := range t.vehicles.ids() {
		snap.Vehicles = append(snap.Vehicles, s.st.vehicles[id].Clone())
	}
	for _, id := range t.sims.ids() {
		snap.Sims = append(snap.Sims, s.st.sims[id].Clone())
	}
	for _, id := range t.assets.ids() {
		snap.Assets = append(snap.Assets, s.st.assets[id].Clone())
	}
	for _, id := range t.clients.ids() {
		snap.Clients = append(snap.Clients, s.st.clients[id].Clone())
	}
	for _, a := range s.st.assignments {
		snap.Assignments = append(snap.Assignments, a.Clone())
	}
	return snap
}

// Import replaces the whole state with a snapshot, typically one loaded from
// the database at start-up. The snapshot must satisfy every invariant.
// Commit hooks are not called.
func (s *Store) Import(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := newState()
	for _, d := range snap.Drivers {
		next.drivers[d.ID] = d.Clone()
	}
	for _, v := range snap.Vehicles {
		next.vehicles[v.ID] = v.Clone()
	}
	for _, sim := range snap.Sims {
		next.sims[sim.ID] = sim.Clone()
	}
	for _, a := range snap.Assets {
		next.assets[a.ID] = a.Clone()
	}
	for _, c := range snap.Clients {
		next.clients[c.ID] = c.Clone()
	}
	for _, a := range snap.Assignments {
		next.assignments = append(next.assignments, a.Clone())
	}
	next.audit = append(next.audit, snap.Audit...)
	for _, e := range next.audit {
		if e.Seq <= next.seq {
			return fmt.Errorf("%w: audit sequence %d out of order", ErrInvariantViolation, e.Seq)
		}
		next.seq = e.Seq
		if e.Timestamp.After(next.lastAudit) {
			next.lastAudit = e.Timestamp
		}
	}

	if err := newTx(&next, s.nowFn(), "", s.newID).verifyAll(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = next
	s.logger.WithField("drivers", len(next.drivers)).Info("Ledger state imported")
	return nil
}
