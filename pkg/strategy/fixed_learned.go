package strategy

import (
	"fmt"
	"time"

	"github.com/shaneisley/cadence/pkg/schedule"
	"go.uber.org/zap"
)

// LearnedMode selects how FixedLearned derives its interval from the first window
type LearnedMode int

const (
	// LearnedWindow divides the window's time span by itemCount-1
	LearnedWindow LearnedMode = iota
	// LearnedPoll divides the span from the oldest item to the poll time by itemCount
	LearnedPoll
)

func (m LearnedMode) String() string {
	if m == LearnedPoll {
		return "poll"
	}
	return "window"
}

// ParseLearnedMode parses "window" or "poll"
func ParseLearnedMode(s string) (LearnedMode, error) {
	switch s {
	case "window", "":
		return LearnedWindow, nil
	case "poll":
		return LearnedPoll, nil
	default:
		return LearnedWindow, fmt.Errorf("unknown learned mode %q", s)
	}
}

// FixedLearned learns a constant interval on the first poll and keeps it
type FixedLearned struct {
	base
	mode LearnedMode
}

// NewFixedLearned creates a strategy that freezes the interval learned at the first poll
func NewFixedLearned(bounds schedule.Bounds, mode LearnedMode, opts ...Option) (*FixedLearned, error) {
	if mode != LearnedWindow && mode != LearnedPoll {
		return nil, fmt.Errorf("unknown learned mode %d", mode)
	}
	b, err := newBase("fixed_learned", bounds, opts)
	if err != nil {
		return nil, err
	}
	return &FixedLearned{base: b, mode: mode}, nil
}

// Update learns the interval when no check has been performed yet; afterwards the
// learned interval is left untouched
func (f *FixedLearned) Update(state *schedule.State, stats *schedule.Statistics, training bool) {
	f.ignoreTraining(state, training)
	if state.Checks > 0 {
		return
	}

	interval := f.learn(state)
	state.UpdateInterval = f.allowed(interval)
	f.logger.Debug("learned fixed interval",
		zap.String("resource", state.ID),
		zap.Int("interval", state.UpdateInterval),
		zap.Stringer("mode", f.mode))
}

func (f *FixedLearned) learn(state *schedule.State) int {
	times := state.Timestamps()
	n := len(times)

	switch f.mode {
	case LearnedPoll:
		if n < 1 || state.LastPollTime.IsZero() {
			return DefaultCheckTime
		}
		span := state.LastPollTime.Sub(times[0])
		if span <= 0 {
			return DefaultCheckTime
		}
		return toMinutes(span / time.Duration(n))
	default:
		if n < 2 {
			return DefaultCheckTime
		}
		span := times[n-1].Sub(times[0])
		if span <= 0 {
			return DefaultCheckTime
		}
		return toMinutes(span / time.Duration(n-1))
	}
}

// Name returns "fixed_learned_<mode>"
func (f *FixedLearned) Name() string {
	return "fixed_learned_" + f.mode.String()
}

// HasExplicitTrainingMode is false
func (f *FixedLearned) HasExplicitTrainingMode() bool {
	return false
}
