package grants

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"equity-portal/grant-ledger-backend/pkg/workflows"
)

func testGrant(start time.Time) *OptionGrant {
	return &OptionGrant{
		ID:             1,
		TotalOptions:   10000,
		StrikePrice:    4,
		VestingStart:   start,
		CliffSeconds:   365 * 24 * 3600,
		VestingSeconds: 1460 * 24 * 3600,
		WindowSeconds:  90 * 24 * 3600,
	}
}

func terminate(g *OptionGrant, at time.Time) {
	g.Terminated = true
	g.TerminatedAt = &at
}

func TestVestingFreezesAtTermination(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := testGrant(start)

	termAt := start.Add(730 * day)
	terminate(g, termAt)

	// 30 days later the vested amount is still pinned at the termination instant.
	later := termAt.Add(30 * day)
	assert.Equal(t, uint64(5000), VestedNow(g, later))
	assert.Equal(t, termAt, EffectiveTime(g, later))

	// An active grant keeps vesting.
	active := testGrant(start)
	assert.Equal(t, uint64(7500), VestedNow(active, start.Add(1095*day)))
}

func TestExercisableNowAfterTermination(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := testGrant(start)
	terminate(g, start.Add(730*day))
	g.ExercisedOptions = 1200

	assert.Equal(t, uint64(3800), ExercisableNow(g, start.Add(760*day)))
}

func TestIsExpired(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	g := testGrant(start)
	assert.False(t, IsExpired(g, start.Add(10000*day)), "active grants never expire")

	termAt := start.Add(730 * day)
	terminate(g, termAt)
	assert.False(t, IsExpired(g, termAt.Add(90*day)), "deadline instant is still inside the window")
	assert.True(t, IsExpired(g, termAt.Add(90*day).Add(time.Second)))
}

func TestIsBurnable(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(800 * day)

	t.Run("fully exercised", func(t *testing.T) {
		g := testGrant(start)
		g.ExercisedOptions = g.TotalOptions
		assert.True(t, IsBurnable(g, now))
	})

	t.Run("active partially exercised", func(t *testing.T) {
		g := testGrant(start)
		g.ExercisedOptions = 100
		assert.False(t, IsBurnable(g, now))
	})

	t.Run("expired with leftover vested balance", func(t *testing.T) {
		g := testGrant(start)
		terminate(g, start.Add(400*day))
		assert.True(t, IsBurnable(g, start.Add(600*day)))
	})

	t.Run("terminated with frozen vested fully exercised", func(t *testing.T) {
		g := testGrant(start)
		terminate(g, start.Add(730*day))
		g.ExercisedOptions = 5000
		assert.True(t, IsBurnable(g, start.Add(740*day)))
	})

	t.Run("terminated with exercisable remainder", func(t *testing.T) {
		g := testGrant(start)
		terminate(g, start.Add(730*day))
		g.ExercisedOptions = 4999
		assert.False(t, IsBurnable(g, start.Add(740*day)))
	})
}

func TestStatusOf(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(400 * day)

	g := testGrant(start)
	assert.Equal(t, StatusVesting, StatusOf(g, now))

	g.ExercisedOptions = 1
	assert.Equal(t, StatusPartiallyExercised, StatusOf(g, now))

	g.ExercisedOptions = g.TotalOptions
	assert.Equal(t, StatusFullyExercised, StatusOf(g, now))

	g = testGrant(start)
	terminate(g, now)
	assert.Equal(t, StatusTerminated, StatusOf(g, now.Add(day)))
	assert.Equal(t, StatusExpired, StatusOf(g, now.Add(91*day)))
}

func TestGrantStateMachineTransitions(t *testing.T) {
	sm := workflows.NewGrantStateMachine()

	assert.NoError(t, sm.Validate("VESTING", "PARTIALLY_EXERCISED"))
	assert.NoError(t, sm.Validate("PARTIALLY_EXERCISED", "FULLY_EXERCISED"))
	assert.NoError(t, sm.Validate("VESTING", "TERMINATED"))
	assert.NoError(t, sm.Validate("TERMINATED", "EXPIRED"))

	assert.Error(t, sm.Validate("FULLY_EXERCISED", "VESTING"))
	assert.Error(t, sm.Validate("EXPIRED", "TERMINATED"))
	assert.Error(t, sm.Validate("TERMINATED", "VESTING"))
}
