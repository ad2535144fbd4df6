// Package ledger holds the canonical state of the fleet resource pools and
// the workflows that assign, release and decay them.
//
// All mutations run through Store.update, which stages copies of the
// records an operation touches, checks the cross-record invariants on them
// and then commits the records, assignment records and audit entries
// together. A failed operation leaves the pools untouched.
package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// DefaultIdleDwell is how long a driver may stay Idle before decaying.
const DefaultIdleDwell = 15 * 24 * time.Hour

// CommitHook observes every committed change set, in commit order. Hooks run
// while the store lock is held and must not block.
type CommitHook func(ChangeSet)

// Deletion identifies a removed pool record.
type Deletion struct {
	EntityType string `json:"entity_type"`
	ID         string `json:"id"`
}

// ChangeSet is everything one committed operation wrote.
type ChangeSet struct {
	Drivers     []models.Driver
	Vehicles    []models.Vehicle
	Sims        []models.Sim
	Assets      []models.Asset
	Clients     []models.Client
	Deleted     []Deletion
	Assignments []models.Assignment
	Audit       []models.AuditEntry
}

// Empty reports whether the change set wrote nothing.
func (cs ChangeSet) Empty() bool {
	return len(cs.Drivers)+len(cs.Vehicles)+len(cs.Sims)+len(cs.Assets)+len(cs.Clients)+
		len(cs.Deleted)+len(cs.Assignments)+len(cs.Audit) == 0
}

type state struct {
	drivers     map[string]models.Driver
	vehicles    map[string]models.Vehicle
	sims        map[string]models.Sim
	assets      map[string]models.Asset
	clients     map[string]models.Client
	assignments []models.Assignment
	audit       []models.AuditEntry
	seq         int64
	lastAudit   time.Time
}

func newState() state {
	return state{
		drivers:  make(map[string]models.Driver),
		vehicles: make(map[string]models.Vehicle),
		sims:     make(map[string]models.Sim),
		assets:   make(map[string]models.Asset),
		clients:  make(map[string]models.Client),
	}
}

// Store is the in-memory ledger. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	st        state
	nowFn     func() time.Time
	newID     func() string
	idleDwell time.Duration
	hooks     []CommitHook
	logger    log.FieldLogger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFn = now }
}

// WithIDGenerator replaces the uuid generator used for records and audit entries.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithIdleDwell sets how long a driver stays Idle before the sweep decays it.
func WithIdleDwell(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.idleDwell = d
		}
	}
}

// WithLogger sets the logger used for operation logs.
func WithLogger(l log.FieldLogger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty ledger.
func NewStore(opts ...Option) *Store {
	s := &Store{
		st:        newState(),
		nowFn:     func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		idleDwell: DefaultIdleDwell,
		logger:    log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnCommit registers a hook called after every committed operation.
func (s *Store) OnCommit(h CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// IdleDwell returns the configured Idle dwell period.
func (s *Store) IdleDwell() time.Duration {
	return s.idleDwell
}

// update runs fn as one unit of work. fn's changes are committed only when
// it returns nil and the touched records pass the invariant checks.
func (s *Store) update(ctx context.Context, actor string, fn func(t *tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := newTx(&s.st, s.nowFn(), actor, s.newID)
	if err := fn(t); err != nil {
		return err
	}
	if err := t.verify(); err != nil {
		s.logger.WithError(err).Error("ledger transaction rejected by invariant check")
		return err
	}
	cs := t.commit()
	for _, h := range s.hooks {
		h(cs)
	}
	return nil
}

// view runs fn against the committed state under the read lock.
func (s *Store) view(fn func(t *tx)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(newTx(&s.st, s.nowFn(), "", s.newID))
}

// staged overlays copies of records on a committed map.
type staged[T any] struct {
	base    map[string]T
	clone   func(T) T
	dirty   map[string]*T
	deleted map[string]bool
	order   []string
}

func newStaged[T any](base map[string]T, clone func(T) T) *staged[T] {
	return &staged[T]{
		base:    base,
		clone:   clone,
		dirty:   make(map[string]*T),
		deleted: make(map[string]bool),
	}
}

// peek returns the current record without staging it. The result must not
// be modified.
func (s *staged[T]) peek(id string) (*T, bool) {
	if s.deleted[id] {
		return nil, false
	}
	if p, ok := s.dirty[id]; ok {
		return p, true
	}
	v, ok := s.base[id]
	if !ok {
		return nil, false
	}
	return &v, true
}

// edit stages a copy of the record for modification.
func (s *staged[T]) edit(id string) (*T, bool) {
	if s.deleted[id] {
		return nil, false
	}
	if p, ok := s.dirty[id]; ok {
		return p, true
	}
	v, ok := s.base[id]
	if !ok {
		return nil, false
	}
	cp := s.clone(v)
	s.dirty[id] = &cp
	s.order = append(s.order, id)
	return &cp, true
}

func (s *staged[T]) put(id string, v T) {
	delete(s.deleted, id)
	if _, ok := s.dirty[id]; !ok {
		s.order = append(s.order, id)
	}
	s.dirty[id] = &v
}

func (s *staged[T]) remove(id string) {
	delete(s.dirty, id)
	s.deleted[id] = true
}

// ids lists every id visible through the overlay, sorted.
func (s *staged[T]) ids() []string {
	out := make([]string, 0, len(s.base)+len(s.dirty))
	for id := range s.base {
		if !s.deleted[id] {
			out = append(out, id)
		}
	}
	for id := range s.dirty {
		if _, ok := s.base[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// touched lists the staged ids in the order they were first staged.
func (s *staged[T]) touched() []string {
	out := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if _, ok := s.dirty[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (s *staged[T]) apply(stamp func(*T)) []T {
	var out []T
	for _, id := range s.touched() {
		p := s.dirty[id]
		stamp(p)
		s.base[id] = *p
		out = append(out, s.clone(*p))
	}
	for id := range s.deleted {
		delete(s.base, id)
	}
	return out
}

func (s *staged[T]) deletedIDs() []string {
	out := make([]string, 0, len(s.deleted))
	for id := range s.deleted {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// tx is a unit of work against the store state.
type tx struct {
	base        *state
	now         time.Time
	actor       string
	newID       func() string
	drivers     *staged[models.Driver]
	vehicles    *staged[models.Vehicle]
	sims        *staged[models.Sim]
	assets      *staged[models.Asset]
	clients     *staged[models.Client]
	assignments []models.Assignment
	audit       []models.AuditEntry
}

func newTx(base *state, now time.Time, actor string, newID func() string) *tx {
	return &tx{
		base:     base,
		now:      now,
		actor:    actor,
		newID:    newID,
		drivers:  newStaged(base.drivers, models.Driver.Clone),
		vehicles: newStaged(base.vehicles, models.Vehicle.Clone),
		sims:     newStaged(base.sims, models.Sim.Clone),
		assets:   newStaged(base.assets, models.Asset.Clone),
		clients:  newStaged(base.clients, models.Client.Clone),
	}
}

func (t *tx) addAssignment(a models.Assignment) {
	a.ID = t.newID()
	a.CreatedBy = t.actor
	a.CreatedAt = t.now
	t.assignments = append(t.assignments, a)
}

// appendAudit adds an entry to the log. Sequence numbers are strictly
// increasing and timestamps never go backwards.
func (t *tx) appendAudit(e models.AuditEntry) {
	ts := t.now
	last := t.base.lastAudit
	if n := len(t.audit); n > 0 {
		last = t.audit[n-1].Timestamp
	}
	if ts.Before(last) {
		ts = last
	}
	e.ID = t.newID()
	e.Seq = t.base.seq + int64(len(t.audit)) + 1
	e.Timestamp = ts
	if e.ActorID == "" {
		e.ActorID = t.actor
	}
	t.audit = append(t.audit, e)
}

func (t *tx) commit() ChangeSet {
	now := t.now
	var cs ChangeSet
	cs.Drivers = t.drivers.apply(func(d *models.Driver) { d.Version++; d.UpdatedAt = now })
	cs.Vehicles = t.vehicles.apply(func(v *models.Vehicle) { v.Version++; v.UpdatedAt = now })
	cs.Sims = t.sims.apply(func(s *models.Sim) { s.Version++; s.UpdatedAt = now })
	cs.Assets = t.assets.apply(func(a *models.Asset) { a.Version++; a.UpdatedAt = now })
	cs.Clients = t.clients.apply(func(c *models.Client) { c.Version++; c.UpdatedAt = now })
	for _, pair := range []struct {
		entity string
		ids    []string
	}{
		{models.EntityDriver, t.drivers.deletedIDs()},
		{models.EntityVehicle, t.vehicles.deletedIDs()},
		{models.EntitySim, t.sims.deletedIDs()},
		{models.EntityAsset, t.assets.deletedIDs()},
		{models.EntityClient, t.clients.deletedIDs()},
	} {
		for _, id := range pair.ids {
			cs.Deleted = append(cs.Deleted, Deletion{EntityType: pair.entity, ID: id})
		}
	}

	t.base.assignments = append(t.base.assignments, t.assignments...)
	t.base.audit = append(t.base.audit, t.audit...)
	if n := len(t.audit); n > 0 {
		t.base.seq = t.audit[n-1].Seq
		t.base.lastAudit = t.audit[n-1].Timestamp
	}
	cs.Assignments = append(cs.Assignments, t.assignments...)
	cs.Audit = append(cs.Audit, t.audit...)
	return cs
}
