package schedule

import (
	"fmt"
	"math/rand"
)

// Unbounded disables one side of Bounds
const Unbounded = -1

// Bounds is the clamping policy shared by all strategies, in minutes
type Bounds struct {
	Lowest  int
	Highest int

	// Spread lowers values clamped to Highest by a random offset of up to
	// Highest/2, so resources capped at the ceiling do not all poll together.
	Spread bool
}

// NewBounds creates bounds without spreading
func NewBounds(lowest, highest int) Bounds {
	return Bounds{Lowest: lowest, Highest: highest}
}

// Validate checks the bounds configuration
func (b Bounds) Validate() error {
	if b.Lowest < Unbounded {
		return fmt.Errorf("lowest interval must be -1 or non-negative, got %d", b.Lowest)
	}
	if b.Highest < Unbounded {
		return fmt.Errorf("highest interval must be -1 or non-negative, got %d", b.Highest)
	}
	if b.Lowest != Unbounded && b.Highest != Unbounded && b.Lowest > b.Highest {
		return fmt.Errorf("lowest interval %d exceeds highest interval %d", b.Lowest, b.Highest)
	}
	return nil
}

// Allowed clamps a computed interval into the configured bounds
func (b Bounds) Allowed(v int) int {
	return b.allowed(v, rand.Intn)
}

func (b Bounds) allowed(v int, intn func(int) int) int {
	if b.Highest != Unbounded && v > b.Highest {
		if !b.Spread || b.Highest < 2 {
			return b.Highest
		}
		spread := b.Highest - intn(b.Highest/2+1)
		if b.Lowest != Unbounded && spread < b.Lowest {
			return b.Lowest
		}
		return spread
	}
	if b.Lowest != Unbounded && v < b.Lowest {
		return b.Lowest
	}
	return v
}

// Contains reports whether v satisfies every enabled bound
func (b Bounds) Contains(v int) bool {
	if b.Lowest != Unbounded && v < b.Lowest {
		return false
	}
	if b.Highest != Unbounded && v > b.Highest {
		return false
	}
	return true
}

// HighestOr returns Highest, or fallback when the upper bound is disabled
func (b Bounds) HighestOr(fallback int) int {
	if b.Highest == Unbounded {
		return fallback
	}
	return b.Highest
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%d,%d]", b.Lowest, b.Highest)
}
