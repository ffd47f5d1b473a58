package strategy

import "github.com/shaneisley/cadence/pkg/schedule"

// LRU2 expects the next item after the same gap as between the last two items
type LRU2 struct {
	base
}

// NewLRU2 creates an LRU-2 strategy
func NewLRU2(bounds schedule.Bounds, opts ...Option) (*LRU2, error) {
	b, err := newBase("lru2", bounds, opts)
	if err != nil {
		return nil, err
	}
	return &LRU2{base: b}, nil
}

// Update sets newest - second newest item time
func (l *LRU2) Update(state *schedule.State, stats *schedule.Statistics, training bool) {
	l.ignoreTraining(state, training)

	interval := DefaultCheckTime
	if !state.LastItemTime.IsZero() && !state.SecondLastItemTime.IsZero() {
		if span := state.LastItemTime.Sub(state.SecondLastItemTime); span > 0 {
			interval = toMinutes(span)
		}
	}
	state.UpdateInterval = l.allowed(interval)
}

// Name returns "lru2"
func (l *LRU2) Name() string {
	return "lru2"
}

// HasExplicitTrainingMode is false
func (l *LRU2) HasExplicitTrainingMode() bool {
	return false
}
