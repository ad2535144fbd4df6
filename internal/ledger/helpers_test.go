package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-ledger/internal/models"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%04d", n)
	}
}

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetLevel(log.PanicLevel)
	return l
}

// newTestStore returns a store seeded with one client, two Idle drivers,
// a vehicle, a SIM and ten helmets.
func newTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	clock := &testClock{now: t0}
	s := NewStore(
		WithClock(clock.Now),
		WithIDGenerator(sequentialIDs()),
		WithLogger(quietLogger()),
	)
	ctx := context.Background()

	_, err := s.CreateClient(ctx, "admin", models.Client{ID: "C1", Name: "Acme Deliveries", Rate: 12.5})
	require.NoError(t, err)
	for _, id := range []string{"D1", "D2"} {
		_, err = s.CreateDriver(ctx, "admin", models.Driver{ID: id, Name: "Driver " + id, BaseSalary: 3000})
		require.NoError(t, err)
	}
	_, err = s.CreateVehicle(ctx, "admin", models.Vehicle{ID: "V1", Plate: "DXB-1001", Make: "Honda", Model: "Unicorn"})
	require.NoError(t, err)
	_, err = s.CreateSim(ctx, "admin", models.Sim{ID: "S1", Number: "+971500000001", Carrier: "du"})
	require.NoError(t, err)
	_, err = s.CreateAsset(ctx, "admin", models.Asset{ID: "A1", Name: "Helmet", Category: "safety", TotalQuantity: 10})
	require.NoError(t, err)
	return s, clock
}

func fullAssignment(driverID string) AssignmentRequest {
	return AssignmentRequest{
		ActorID:       "ops-1",
		DriverID:      driverID,
		ClientID:      "C1",
		DateOfJoining: t0,
		PayModel:      models.PayMonthly,
		VehicleID:     "V1",
		SimID:         "S1",
		Assets:        []models.AssetLine{{AssetID: "A1", Quantity: 3, Condition: "new"}},
	}
}

func returnAll(driverID string, status models.DriverStatus) ReassignmentRequest {
	return ReassignmentRequest{
		ActorID:   "ops-1",
		DriverID:  driverID,
		Reason:    "contract ended",
		NewStatus: status,
		Items: []models.ItemDisposition{
			{Kind: models.ItemVehicle, ResourceID: "V1", State: models.DispositionReturned},
			{Kind: models.ItemSim, ResourceID: "S1", State: models.DispositionReturned},
			{Kind: models.ItemAsset, ResourceID: "A1", State: models.DispositionReturned},
		},
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var rej *RejectionError
	require.True(t, errors.As(err, &rej), "expected *RejectionError, got %T: %v", err, err)
	require.Equal(t, code, rej.Code)
}
