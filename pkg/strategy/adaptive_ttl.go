package strategy

import "github.com/shaneisley/cadence/pkg/schedule"

// DefaultWeightM is the usual AdaptiveTTL weight
const DefaultWeightM = 0.2

// AdaptiveTTL waits a fraction of the time that passed since the newest item
type AdaptiveTTL struct {
	base
	weightM float64
}

// NewAdaptiveTTL creates an adaptive TTL strategy; weightM must be positive
func NewAdaptiveTTL(bounds schedule.Bounds, weightM float64, opts ...Option) (*AdaptiveTTL, error) {
	if weightM <= 0 {
		return nil, &ParamError{Param: "weight_m", Value: weightM, Message: "must be greater than 0"}
	}
	b, err := newBase("adaptive_ttl", bounds, opts)
	if err != nil {
		return nil, err
	}
	return &AdaptiveTTL{base: b, weightM: weightM}, nil
}

// Update sets weightM * (last poll - newest item)
func (a *AdaptiveTTL) Update(state *schedule.State, stats *schedule.Statistics, training bool) {
	a.ignoreTraining(state, training)
	state.UpdateInterval = a.allowed(a.interval(state, stats))
}

func (a *AdaptiveTTL) interval(state *schedule.State, stats *schedule.Statistics) int {
	newest := state.LastItemTime
	if newest.IsZero() && stats != nil {
		newest = stats.NewestPost
	}
	if newest.IsZero() || state.LastPollTime.IsZero() {
		return DefaultCheckTime
	}

	span := state.LastPollTime.Sub(newest)
	if span <= 0 {
		return DefaultCheckTime
	}
	return floatMinutes(a.weightM * span.Minutes())
}

// Name returns "adaptive_ttl_<weightM>"
func (a *AdaptiveTTL) Name() string {
	return "adaptive_ttl_" + formatFloat(a.weightM)
}

// HasExplicitTrainingMode is false
func (a *AdaptiveTTL) HasExplicitTrainingMode() bool {
	return false
}
