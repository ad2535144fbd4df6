package ledger

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// IdleDecayTick is the input of one sweep: the instant to evaluate dwell
// times against.
type IdleDecayTick struct {
	Now time.Time `json:"now"`
}

// MaxDecaySkew is how far ahead of the store clock an externally supplied
// sweep instant may be.
const MaxDecaySkew = time.Minute

// ValidateDecayTick rejects a sweep instant later than the store clock plus
// MaxDecaySkew. Externally triggered sweeps call it before running.
func (s *Store) ValidateDecayTick(tick IdleDecayTick) error {
	if tick.Now.IsZero() {
		return nil
	}
	if limit := s.nowFn().Add(MaxDecaySkew); tick.Now.After(limit) {
		return reject(ErrInvalidRequest, "sweep_instant_in_future", "now",
			"sweep instant %s is ahead of the ledger clock", tick.Now.UTC().Format(time.RFC3339))
	}
	return nil
}

// DecayResult lists the drivers one sweep moved to Inactive.
type DecayResult struct {
	Now       time.Time `json:"now"`
	Evaluated int       `json:"evaluated"`
	Decayed   []string  `json:"decayed"`
}

// RunIdleDecaySweep moves every driver that has been Idle for at least the
// dwell period to Inactive. Running it again with the same instant changes
// nothing.
func (s *Store) RunIdleDecaySweep(ctx context.Context, tick IdleDecayTick) (DecayResult, error) {
	now := tick.Now
	if now.IsZero() {
		now = s.nowFn()
	}
	res := DecayResult{Now: now, Decayed: []string{}}
	err := s.update(ctx, models.SystemActor, func(t *tx) error {
		for _, id := range t.drivers.ids() {
			cur, _ := t.drivers.peek(id)
			if cur.Status != models.DriverIdle {
				continue
			}
			res.Evaluated++
			if cur.IdleStartDate == nil || now.Sub(*cur.IdleStartDate) < s.idleDwell {
				continue
			}
			d, _ := t.drivers.edit(id)
			before := d.Clone()
			d.SetStatus(models.DriverInactive, now)
			t.appendAudit(models.AuditEntry{
				ActorID:    models.SystemActor,
				Action:     models.ActionIdleDecay,
				EntityType: models.EntityDriver,
				EntityID:   id,
				Before:     before,
				After:      d.Clone(),
				Reason: fmt.Sprintf("idle for %s as of %s",
					now.Sub(*before.IdleStartDate).Truncate(time.Hour), now.UTC().Format(time.RFC3339)),
			})
			res.Decayed = append(res.Decayed, id)
		}
		return nil
	})
	if err != nil {
		return DecayResult{Now: now}, err
	}
	return res, nil
}

// DecayScheduler runs the idle-decay sweep on a fixed interval.
type DecayScheduler struct {
	Store    *Store
	Interval time.Duration
	Logger   log.FieldLogger
}

// RunOnce performs a single sweep and logs its outcome.
func (j DecayScheduler) RunOnce(ctx context.Context) (DecayResult, error) {
	logger := j.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	res, err := j.Store.RunIdleDecaySweep(ctx, IdleDecayTick{Now: j.Store.nowFn()})
	if err != nil {
		logger.WithError(err).Error("Idle decay sweep failed")
		return res, err
	}
	logger.WithFields(log.Fields{
		"evaluated": res.Evaluated,
		"decayed":   len(res.Decayed),
	}).Info("Idle decay sweep completed")
	return res, nil
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (j DecayScheduler) Run(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	_, _ = j.RunOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = j.RunOnce(ctx)
		}
	}
}
