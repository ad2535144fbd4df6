package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-ledger/internal/models"
)

func TestAuditLog_SequenceAndClock(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	_, err := s.SubmitAssignment(ctx, fullAssignment("D1"))
	require.NoError(t, err)
	clock.Set(t0.Add(-time.Hour)) // clock stepped backwards
	_, err = s.SubmitReassignment(ctx, returnAll("D1", models.DriverIdle))
	require.NoError(t, err)

	logs := s.ListAuditLogs(models.AuditFilter{})
	require.NotEmpty(t, logs)
	for i := 1; i < len(logs); i++ {
		assert.Equal(t, logs[i-1].Seq+1, logs[i].Seq)
		assert.False(t, logs[i].Timestamp.Before(logs[i-1].Timestamp))
	}
	last := logs[len(logs)-1]
	assert.Equal(t, models.ActionReassignDriver, last.Action)
	assert.Equal(t, t0, last.Timestamp)
}

func TestListAuditLogs_Filter(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	clock.Advance(time.Hour)
	_, err := s.SubmitAssignment(ctx, fullAssignment("D1"))
	require.NoError(t, err)

	byActor := s.ListAuditLogs(models.AuditFilter{ActorID: "ops-1"})
	require.Len(t, byActor, 1)
	assert.Equal(t, models.ActionAssignDriver, byActor[0].Action)

	creates := s.ListAuditLogs(models.AuditFilter{Action: models.ActionCreate})
	assert.Len(t, creates, 6)

	vehicles := s.ListAuditLogs(models.AuditFilter{EntityType: models.EntityVehicle})
	assert.Len(t, vehicles, 1)

	recent := s.ListAuditLogs(models.AuditFilter{Since: t0.Add(time.Minute)})
	assert.Len(t, recent, 1)

	limited := s.ListAuditLogs(models.AuditFilter{Limit: 2})
	require.Len(t, limited, 2)
	assert.Equal(t, models.ActionAssignDriver, limited[1].Action)
}

func TestOnCommit_ReceivesChangeSets(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	var sets []ChangeSet
	s.OnCommit(func(cs ChangeSet) { sets = append(sets, cs) })

	_, err := s.SubmitAssignment(ctx, fullAssignment("D1"))
	require.NoError(t, err)
	_, err = s.SubmitAssignment(ctx, fullAssignment("D1"))
	require.Error(t, err)
	require.NoError(t, s.DeleteDriver(ctx, "admin", "D2"))

	require.Len(t, sets, 2)
	cs := sets[0]
	assert.Len(t, cs.Drivers, 1)
	assert.Len(t, cs.Vehicles, 1)
	assert.Len(t, cs.Sims, 1)
	assert.Len(t, cs.Assets, 1)
	assert.Len(t, cs.Clients, 1)
	assert.Len(t, cs.Assignments, 1)
	require.Len(t, cs.Audit, 1)
	assert.Equal(t, models.ActionAssignDriver, cs.Audit[0].Action)
	assert.Equal(t, int64(2), cs.Drivers[0].Version)

	assert.Equal(t, []Deletion{{EntityType: models.EntityDriver, ID: "D2"}}, sets[1].Deleted)
}

func TestSnapshotImport_RoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.SubmitAssignment(ctx, fullAssignment("D1"))
	require.NoError(t, err)
	snap := s.Snapshot()

	restored := NewStore(WithLogger(quietLogger()))
	require.NoError(t, restored.Import(ctx, snap))
	assert.Equal(t, snap, restored.Snapshot())

	_, err = restored.SubmitReassignment(ctx, returnAll("D1", models.DriverIdle))
	require.NoError(t, err)
	logs := restored.ListAuditLogs(models.AuditFilter{})
	assert.Equal(t, snap.Audit[len(snap.Audit)-1].Seq+1, logs[len(logs)-1].Seq)
}

func TestImport_RejectsInconsistentState(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.SubmitAssignment(ctx, fullAssignment("D1"))
	require.NoError(t, err)
	snap := s.Snapshot()

	for i := range snap.Vehicles {
		snap.Vehicles[i].Status = models.VehicleAvailable
		snap.Vehicles[i].AssignedDriverID = ""
	}
	restored := NewStore(WithLogger(quietLogger()))
	err = restored.Import(ctx, snap)
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.Empty(t, restored.Drivers())
}

func TestUpdate_CancelledContext(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SubmitAssignment(ctx, fullAssignment("D1"))
	assert.ErrorIs(t, err, context.Canceled)
	d, _ := s.Driver("D1")
	assert.Equal(t, models.DriverIdle, d.Status)
}

func TestReads_ReturnCopies(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.SubmitAssignment(ctx, fullAssignment("D1"))
	require.NoError(t, err)

	d, _ := s.Driver("D1")
	d.AssignedAssets[0].Quantity = 99
	a := s.Assets()
	a[0].Assignments[0].Quantity = 99

	assert.NoError(t, s.CheckInvariants(ctx))
	assert.Len(t, s.Drivers(), 2)
	assert.Len(t, s.Vehicles(), 1)
	assert.Len(t, s.Sims(), 1)
	assert.Len(t, s.Clients(), 1)
}
