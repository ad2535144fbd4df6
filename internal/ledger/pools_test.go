package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-ledger/internal/models"
)

func TestCreateDriver_Normalises(t *testing.T) {
	s, _ := newTestStore(t)
	d, err := s.Driver("D1")
	require.NoError(t, err)
	assert.Equal(t, models.DriverIdle, d.Status)
	require.NotNil(t, d.IdleStartDate)
	assert.Equal(t, t0, *d.IdleStartDate)
	assert.Equal(t, int64(1), d.Version)
	assert.Equal(t, t0, d.CreatedAt)

	ctx := context.Background()
	v, err := s.CreateDriver(ctx, "admin", models.Driver{ID: "D3", Status: models.DriverVacation})
	require.NoError(t, err)
	assert.Equal(t, models.DriverVacation, v.Status)
	assert.Nil(t, v.IdleStartDate)
}

func TestCreateDriver_Rejections(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateDriver(ctx, "admin", models.Driver{ID: "D1"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = s.CreateDriver(ctx, "admin", models.Driver{ID: ""})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = s.CreateDriver(ctx, "admin", models.Driver{ID: "D3", Status: models.DriverActive})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.CreateDriver(ctx, "admin", models.Driver{ID: "D3", AssignedVehicleID: "V1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = s.CreateDriver(ctx, "admin", models.Driver{ID: "D3", Status: "On Leave"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestUpdateDriver(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	salary := 4200.0
	d, err := s.UpdateDriver(ctx, "admin", "D1", models.DriverPatch{Name: strPtr("Ahmed"), BaseSalary: &salary})
	require.NoError(t, err)
	assert.Equal(t, "Ahmed", d.Name)
	assert.Equal(t, 4200.0, d.BaseSalary)
	assert.Equal(t, models.DriverIdle, d.Status)
	assert.Equal(t, int64(2), d.Version)

	_, err = s.UpdateDriver(ctx, "admin", "ghost", models.DriverPatch{Name: strPtr("x")})
	assert.ErrorIs(t, err, ErrNotFound)

	logs := s.ListAuditLogs(models.AuditFilter{Action: models.ActionUpdate, EntityID: "D1"})
	require.Len(t, logs, 1)
	assert.Equal(t, "Driver D1", logs[0].Before.(models.Driver).Name)
	assert.Equal(t, "Ahmed", logs[0].After.(models.Driver).Name)
}

func TestDelete_RefusedWhileBound(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.SubmitAssignment(ctx, fullAssignment("D1"))
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteDriver(ctx, "admin", "D1"), ErrResourceInUse)
	assert.ErrorIs(t, s.DeleteVehicle(ctx, "admin", "V1"), ErrResourceInUse)
	assert.ErrorIs(t, s.DeleteSim(ctx, "admin", "S1"), ErrResourceInUse)
	assert.ErrorIs(t, s.DeleteAsset(ctx, "admin", "A1"), ErrResourceInUse)
	assert.ErrorIs(t, s.DeleteClient(ctx, "admin", "C1"), ErrResourceInUse)

	assert.NoError(t, s.DeleteDriver(ctx, "admin", "D2"))
	_, err = s.Driver("D2")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteDriver(ctx, "admin", "D2"), ErrNotFound)

	logs := s.ListAuditLogs(models.AuditFilter{Action: models.ActionDelete})
	require.Len(t, logs, 1)
	assert.Equal(t, "D2", logs[0].EntityID)
}

func TestSetDriverStatus(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	clock.Advance(time.Hour)
	d, err := s.SetDriverStatus(ctx, StatusChangeRequest{ActorID: "admin", DriverID: "D1", Status: models.DriverProjectChange, Reason: "moving to Dubai"})
	require.NoError(t, err)
	assert.Equal(t, models.DriverProjectChange, d.Status)
	assert.Nil(t, d.IdleStartDate)

	clock.Advance(time.Hour)
	d, err = s.SetDriverStatus(ctx, StatusChangeRequest{ActorID: "admin", DriverID: "D1", Status: models.DriverIdle})
	require.NoError(t, err)
	require.NotNil(t, d.IdleStartDate)
	assert.Equal(t, t0.Add(2*time.Hour), *d.IdleStartDate)

	_, err = s.SetDriverStatus(ctx, StatusChangeRequest{ActorID: "admin", DriverID: "D1", Status: models.DriverActive})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	requireCode(t, err, "active_requires_assignment")

	_, err = s.SetDriverStatus(ctx, StatusChangeRequest{ActorID: "admin", DriverID: "D1", Status: models.DriverIdle})
	requireCode(t, err, "status_unchanged")

	_, err = s.SetDriverStatus(ctx, StatusChangeRequest{ActorID: "admin", DriverID: "D1", Status: models.DriverLicenseInProcess})
	require.NoError(t, err)
	_, err = s.SetDriverStatus(ctx, StatusChangeRequest{ActorID: "admin", DriverID: "D1", Status: models.DriverVacation})
	requireCode(t, err, "transition_not_allowed")

	_, err = s.SubmitAssignment(ctx, fullAssignment("D2"))
	require.NoError(t, err)
	_, err = s.SetDriverStatus(ctx, StatusChangeRequest{ActorID: "admin", DriverID: "D2", Status: models.DriverInactive})
	requireCode(t, err, "active_requires_reassignment")

	logs := s.ListAuditLogs(models.AuditFilter{Action: models.ActionSetDriverStatus})
	require.Len(t, logs, 3)
	assert.Equal(t, "moving to Dubai", logs[0].Reason)
}

func TestSetVehicleStatus(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	v, err := s.SetVehicleStatus(ctx, "admin", "V1", models.VehicleMaintenance, "oil change")
	require.NoError(t, err)
	assert.Equal(t, models.VehicleMaintenance, v.Status)

	_, err = s.SetVehicleStatus(ctx, "admin", "V1", models.VehicleAssigned, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.SetVehicleStatus(ctx, "admin", "V1", models.VehicleAvailable, "")
	require.NoError(t, err)
	_, err = s.SubmitAssignment(ctx, fullAssignment("D1"))
	require.NoError(t, err)
	_, err = s.SetVehicleStatus(ctx, "admin", "V1", models.VehicleMaintenance, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, s.CheckInvariants(ctx))
}

func TestSetSimStatus(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	sim, err := s.SetSimStatus(ctx, "admin", "S1", models.SimLost, "dropped")
	require.NoError(t, err)
	assert.Equal(t, models.SimLost, sim.Status)

	_, err = s.SetSimStatus(ctx, "admin", "S1", models.SimAssigned, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.SetSimStatus(ctx, "admin", "S9", models.SimAvailable, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdjustAssetCapacity(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.SubmitAssignment(ctx, fullAssignment("D1"))
	require.NoError(t, err)

	a, err := s.AdjustAssetCapacity(ctx, "admin", "A1", 5, "restock")
	require.NoError(t, err)
	assert.Equal(t, 15, a.TotalQuantity)
	assert.Equal(t, 12, a.AvailableQuantity)

	_, err = s.AdjustAssetCapacity(ctx, "admin", "A1", -13, "audit")
	assert.ErrorIs(t, err, ErrResourceUnavailable)

	a, err = s.AdjustAssetCapacity(ctx, "admin", "A1", -12, "audit")
	require.NoError(t, err)
	assert.Equal(t, 3, a.TotalQuantity)
	assert.Equal(t, 0, a.AvailableQuantity)

	_, err = s.AdjustAssetCapacity(ctx, "admin", "A1", 0, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.NoError(t, s.CheckInvariants(ctx))
}

func TestCreateAsset_StartsFullyAvailable(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateAsset(ctx, "admin", models.Asset{ID: "A2", Name: "Uniform", TotalQuantity: 40, AvailableQuantity: 3})
	require.NoError(t, err)
	assert.Equal(t, 40, a.AvailableQuantity)

	_, err = s.CreateAsset(ctx, "admin", models.Asset{ID: "A3", TotalQuantity: -1})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestVehicleAndSimUpdates_RefreshDriverDisplayKeys(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.SubmitAssignment(ctx, fullAssignment("D1"))
	require.NoError(t, err)

	_, err = s.UpdateVehicle(ctx, "admin", "V1", models.VehiclePatch{Plate: strPtr("DXB-2002")})
	require.NoError(t, err)
	_, err = s.UpdateSim(ctx, "admin", "S1", models.SimPatch{Number: strPtr("+971500000009")})
	require.NoError(t, err)

	d, _ := s.Driver("D1")
	assert.Equal(t, "DXB-2002", d.AssignedVehiclePlate)
	assert.Equal(t, "+971500000009", d.AssignedSimNumber)
}

func TestClientContractWindow(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateClient(ctx, "admin", models.Client{ID: "C2", ContractStart: t0, ContractEnd: t0.AddDate(0, -1, 0)})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	end := t0.AddDate(1, 0, 0)
	c, err := s.UpdateClient(ctx, "admin", "C1", models.ClientPatch{ContractStart: &t0, ContractEnd: &end})
	require.NoError(t, err)
	assert.Equal(t, end, c.ContractEnd)
}
