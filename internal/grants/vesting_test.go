package grants

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const day = 24 * time.Hour

func TestVestedAtLinearSchedule(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	total := uint64(10000)
	cliff := int64(365 * 24 * 3600)
	duration := int64(1460 * 24 * 3600)

	cases := []struct {
		name   string
		at     time.Time
		vested uint64
	}{
		{"before start", start.Add(-time.Hour), 0},
		{"day before cliff", start.Add(364 * day), 0},
		{"at cliff", start.Add(365 * day), 2500},
		{"halfway", start.Add(730 * day), 5000},
		{"three quarters", start.Add(1095 * day), 7500},
		{"at duration", start.Add(1460 * day), 10000},
		{"past duration", start.Add(2000 * day), 10000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.vested, VestedAt(total, start, cliff, duration, tc.at))
		})
	}
}

func TestVestedAtFloorsFractions(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// 7 options over 3 seconds with no cliff: 7*1/3 = 2.33 floors to 2.
	assert.Equal(t, uint64(2), VestedAt(7, start, 0, 3, start.Add(time.Second)))
	assert.Equal(t, uint64(4), VestedAt(7, start, 0, 3, start.Add(2*time.Second)))
	assert.Equal(t, uint64(7), VestedAt(7, start, 0, 3, start.Add(3*time.Second)))
}

func TestVestedAtMonotonic(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	total := uint64(999)
	cliff := int64(100)
	duration := int64(100000)

	prev := uint64(0)
	for s := int64(0); s <= duration+100; s += 997 {
		v := VestedAt(total, start, cliff, duration, start.Add(time.Duration(s)*time.Second))
		assert.GreaterOrEqual(t, v, prev, "vesting must never decrease")
		assert.LessOrEqual(t, v, total)
		prev = v
	}
	assert.Equal(t, total, prev)
}

func TestVestedAtLargeTotalNoOverflow(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	total := uint64(math.MaxUint64)
	duration := int64(4 * 365 * 24 * 3600)

	// total*elapsed overflows uint64 by far; the big.Int path must stay exact.
	half := VestedAt(total, start, 0, duration, start.Add(time.Duration(duration/2)*time.Second))
	assert.Equal(t, total/2, half)
}

func TestExercisable(t *testing.T) {
	assert.Equal(t, uint64(0), Exercisable(0, 0))
	assert.Equal(t, uint64(5), Exercisable(10, 5))
	assert.Equal(t, uint64(0), Exercisable(5, 5))
	assert.Equal(t, uint64(0), Exercisable(4, 5))
}

func TestExerciseCostExactAtMax(t *testing.T) {
	max := uint64(math.MaxUint64)
	cost := ExerciseCost(max, max)

	expected := new(big.Int).SetUint64(max)
	expected.Mul(expected, expected)
	assert.Equal(t, 0, cost.Cmp(expected))
	assert.Equal(t, "340282366920938463426481119284349108225", cost.String())
}
