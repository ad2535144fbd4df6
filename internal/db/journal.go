package db

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/ledger"
)

// ChangeWriter persists one committed change set.
type ChangeWriter interface {
	Apply(ctx context.Context, cs ledger.ChangeSet) error
}

// Journal queues committed change sets and writes them in commit order on a
// single goroutine. Record is registered as a ledger commit hook.
//
// A change set that fails to write is retried until it succeeds; later sets
// wait behind it so the database always holds a prefix of the commit
// history. Once ctx is cancelled a failing set gets maxAttempts more tries,
// after which the journal halts and writes nothing further.
type Journal struct {
	writer       ChangeWriter
	queue        chan ledger.ChangeSet
	writeTimeout time.Duration
	maxAttempts  int
	backoff      time.Duration
	maxBackoff   time.Duration
	logger       log.FieldLogger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	failed atomic.Int64

	errMu   sync.Mutex
	lastErr error
	halted  bool
}

// NewJournal creates a journal with room for buffer pending change sets.
func NewJournal(writer ChangeWriter, buffer int) *Journal {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Journal{
		writer:       writer,
		queue:        make(chan ledger.ChangeSet, buffer),
		writeTimeout: 10 * time.Second,
		maxAttempts:  3,
		backoff:      200 * time.Millisecond,
		maxBackoff:   30 * time.Second,
		logger:       log.WithField("component", "journal"),
		done:         make(chan struct{}),
	}
}

// Record enqueues a change set. It only blocks when the buffer is full.
func (j *Journal) Record(cs ledger.ChangeSet) {
	if cs.Empty() {
		return
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.logger.Warn("Change set recorded after journal close, dropping")
		return
	}
	j.queue <- cs
}

// Run drains the queue until Close is called and every pending change set
// has been written or the journal has halted.
func (j *Journal) Run(ctx context.Context) {
	defer close(j.done)
	for cs := range j.queue {
		if j.isHalted() {
			j.failed.Add(1)
			continue
		}
		if err := j.write(ctx, cs); err != nil {
			j.failed.Add(1)
			j.errMu.Lock()
			j.halted = true
			j.errMu.Unlock()
			j.logger.WithFields(log.Fields{"audit_id": firstAuditID(cs), "error": err}).
				Error("Journal halted, later change sets will not be written")
		}
	}
}

func (j *Journal) write(ctx context.Context, cs ledger.ChangeSet) error {
	delay := j.backoff
	for attempt := 1; ; attempt++ {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.writeTimeout)
		err := j.writer.Apply(wctx, cs)
		cancel()
		j.setErr(err)
		if err == nil {
			return nil
		}
		j.logger.WithFields(log.Fields{"attempt": attempt, "error": err}).Warn("Journal write failed")

		if ctx.Err() != nil {
			if attempt >= j.maxAttempts {
				return err
			}
			time.Sleep(delay)
		} else {
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				// shutting down: count tries from here
				attempt = 0
			}
		}
		delay *= 2
		if delay > j.maxBackoff {
			delay = j.maxBackoff
		}
	}
}

func (j *Journal) setErr(err error) {
	j.errMu.Lock()
	j.lastErr = err
	j.errMu.Unlock()
}

func (j *Journal) isHalted() bool {
	j.errMu.Lock()
	defer j.errMu.Unlock()
	return j.halted
}

func firstAuditID(cs ledger.ChangeSet) string {
	if len(cs.Audit) > 0 {
		return cs.Audit[0].ID
	}
	return ""
}

// Failed returns how many change sets were not written.
func (j *Journal) Failed() int64 {
	return j.failed.Load()
}

// Healthy returns an error while writes are failing or after the journal
// has halted.
func (j *Journal) Healthy() error {
	j.errMu.Lock()
	defer j.errMu.Unlock()
	if j.halted {
		return fmt.Errorf("journal halted: %d change sets not written: %w", j.failed.Load(), j.lastErr)
	}
	if j.lastErr != nil {
		return fmt.Errorf("journal write failing: %w", j.lastErr)
	}
	return nil
}

// Close stops accepting change sets and waits for Run to flush the queue.
func (j *Journal) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		<-j.done
		return
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()
	<-j.done
}
