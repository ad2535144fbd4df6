package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to DriverStatus
		expected bool
	}{
		{DriverIdle, DriverActive, true},
		{DriverInactive, DriverActive, true},
		{DriverVacation, DriverActive, true},
		{DriverProjectChange, DriverActive, true},
		{DriverLicenseInProcess, DriverActive, false},
		{DriverLicenseInProcess, DriverIdle, true},
		{DriverActive, DriverLicenseInProcess, false},
		{DriverActive, DriverIdle, true},
		{DriverInactive, DriverVacation, false},
		{"Unknown", DriverIdle, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, CanTransition(tt.from, tt.to))
		})
	}
}

func TestIsValidDriverStatus(t *testing.T) {
	assert.True(t, IsValidDriverStatus(DriverProjectChange))
	assert.True(t, IsValidDriverStatus(DriverLicenseInProcess))
	assert.False(t, IsValidDriverStatus("active"))
	assert.False(t, IsValidDriverStatus(""))
}

func TestDriver_SetStatusKeepsIdleStamp(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := &Driver{Status: DriverVacation}

	d.SetStatus(DriverIdle, start)
	require.NotNil(t, d.IdleStartDate)
	assert.Equal(t, start, *d.IdleStartDate)

	// Re-entering Idle while already Idle keeps the original stamp.
	d.SetStatus(DriverIdle, start.Add(time.Hour))
	assert.Equal(t, start, *d.IdleStartDate)

	d.SetStatus(DriverActive, start.Add(2*time.Hour))
	assert.Nil(t, d.IdleStartDate)
	assert.Equal(t, DriverActive, d.Status)
}

func TestDriver_NetPayable(t *testing.T) {
	d := &Driver{BaseSalary: 3000, Incentives: 250, Deductions: 100, AdvancePaid: 500}
	assert.Equal(t, 2650.0, d.NetPayable())
}

func TestDriver_CloneIsDeep(t *testing.T) {
	now := time.Now()
	d := Driver{
		IdleStartDate:  &now,
		AssignedAssets: []AssetLine{{AssetID: "A1", Quantity: 2}},
		Notes:          []DriverNote{{Text: "ok"}},
	}
	cp := d.Clone()
	cp.AssignedAssets[0].Quantity = 5
	cp.Notes[0].Text = "changed"
	*cp.IdleStartDate = now.Add(time.Hour)

	assert.Equal(t, 2, d.AssignedAssets[0].Quantity)
	assert.Equal(t, "ok", d.Notes[0].Text)
	assert.Equal(t, now, *d.IdleStartDate)
}

func TestDriverPatch_Apply(t *testing.T) {
	d := &Driver{Name: "Old", Status: DriverIdle, BaseSalary: 100}
	name := "New"
	salary := 200.0
	DriverPatch{Name: &name, BaseSalary: &salary}.Apply(d)

	assert.Equal(t, "New", d.Name)
	assert.Equal(t, 200.0, d.BaseSalary)
	assert.Equal(t, DriverIdle, d.Status)
}

func TestAsset_Lines(t *testing.T) {
	a := &Asset{
		TotalQuantity:     10,
		AvailableQuantity: 5,
		Assignments: []AssetAssignment{
			{DriverID: "D1", Quantity: 2},
			{DriverID: "D1", Quantity: 1, Missing: true},
			{DriverID: "D2", Quantity: 2},
		},
	}
	assert.Equal(t, 5, a.OutstandingQuantity())
	assert.Equal(t, 1, a.MissingQuantity())
	assert.Equal(t, 0, a.ActiveLine("D1"))
	assert.Equal(t, 1, a.MissingLine("D1"))
	assert.Equal(t, -1, a.MissingLine("D2"))
	assert.Equal(t, -1, a.ActiveLine("D3"))

	cp := a.Clone()
	cp.RemoveLine(0)
	assert.Len(t, cp.Assignments, 2)
	assert.Len(t, a.Assignments, 3)
	assert.Equal(t, "D1", a.Assignments[0].DriverID)
}

func TestClient_Drivers(t *testing.T) {
	c := &Client{}
	c.AddDriver("D1")
	c.AddDriver("D1")
	c.AddDriver("D2")
	assert.Equal(t, []string{"D1", "D2"}, c.AssignedDriverIDs)
	c.RemoveDriver("D1")
	assert.Equal(t, []string{"D2"}, c.AssignedDriverIDs)
	assert.False(t, c.HasDriver("D1"))
}

func TestAuditFilter_Matches(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := &AuditEntry{Action: ActionIdleDecay, ActorID: SystemActor, EntityType: EntityDriver, EntityID: "D1", Timestamp: ts}

	assert.True(t, AuditFilter{}.Matches(e))
	assert.True(t, AuditFilter{Action: ActionIdleDecay, ActorID: SystemActor}.Matches(e))
	assert.False(t, AuditFilter{EntityID: "D2"}.Matches(e))
	assert.False(t, AuditFilter{Since: ts.Add(time.Second)}.Matches(e))
	assert.False(t, AuditFilter{Until: ts.Add(-time.Second)}.Matches(e))
	assert.True(t, AuditFilter{Since: ts, Until: ts}.Matches(e))
}

func TestIsValidPayModel(t *testing.T) {
	assert.True(t, IsValidPayModel(PayCommission))
	assert.False(t, IsValidPayModel("weekly"))
	assert.True(t, DispositionMissing.IsTerminal())
	assert.False(t, DispositionPending.IsTerminal())
}
