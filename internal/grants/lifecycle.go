package grants

import (
	"time"
)

// GrantStatus is the derived lifecycle state of a grant. It is never stored;
// it is recomputed from the record and the current time.
type GrantStatus string

const (
	StatusVesting            GrantStatus = "VESTING"
	StatusPartiallyExercised GrantStatus = "PARTIALLY_EXERCISED"
	StatusFullyExercised     GrantStatus = "FULLY_EXERCISED"
	StatusTerminated         GrantStatus = "TERMINATED"
	StatusExpired            GrantStatus = "EXPIRED"
)

// EffectiveTime returns the timestamp vesting math must use: the current
// time while the grant is active, frozen at the termination timestamp once
// terminated. This is the single point that freezes vesting.
func EffectiveTime(g *OptionGrant, now time.Time) time.Time {
	if g.Terminated && g.TerminatedAt != nil {
		return *g.TerminatedAt
	}
	return now
}

// VestedNow computes the vested amount at the effective time. Exercise and
// burn eligibility both go through this one path so their arithmetic can
// never disagree.
func VestedNow(g *OptionGrant, now time.Time) uint64 {
	return VestedAt(g.TotalOptions, g.VestingStart, g.CliffSeconds, g.VestingSeconds, EffectiveTime(g, now))
}

// ExercisableNow computes the currently exercisable amount.
func ExercisableNow(g *OptionGrant, now time.Time) uint64 {
	return Exercisable(VestedNow(g, now), g.ExercisedOptions)
}

// IsExpired reports whether the post-termination exercise window has closed.
// A grant that was never terminated does not expire.
func IsExpired(g *OptionGrant, now time.Time) bool {
	if !g.Terminated || g.TerminatedAt == nil {
		return false
	}
	deadline := g.TerminatedAt.Add(time.Duration(g.WindowSeconds) * time.Second)
	return now.After(deadline)
}

// IsBurnable reports whether the grant record may be destroyed: fully
// exercised, expired, or terminated with every option that vested before
// termination already exercised.
func IsBurnable(g *OptionGrant, now time.Time) bool {
	if g.ExercisedOptions == g.TotalOptions {
		return true
	}
	if IsExpired(g, now) {
		return true
	}
	if g.Terminated && g.TerminatedAt != nil {
		return g.ExercisedOptions >= VestedNow(g, now)
	}
	return false
}

// StatusOf derives the logical lifecycle state at the given instant.
func StatusOf(g *OptionGrant, now time.Time) GrantStatus {
	if IsExpired(g, now) {
		return StatusExpired
	}
	if g.Terminated {
		return StatusTerminated
	}
	switch {
	case g.ExercisedOptions == g.TotalOptions:
		return StatusFullyExercised
	case g.ExercisedOptions > 0:
		return StatusPartiallyExercised
	default:
		return StatusVesting
	}
}
