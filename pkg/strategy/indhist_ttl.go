package strategy

import (
	"fmt"
	"time"

	"github.com/shaneisley/cadence/pkg/schedule"
	"go.uber.org/zap"
)

// Delegate names reported by IndHistTTL
const (
	DelegateIndHist     = "indhist"
	DelegateAdaptiveTTL = "adaptive_ttl"
)

// Delegator is implemented by strategies that pick one of several inner
// strategies per poll
type Delegator interface {
	// Delegate returns the inner strategy that produced the last interval
	Delegate(state *schedule.State) string
}

// IndHistTTL uses IndHist unless the recent arrivals exceed the prediction by
// more than tBurst, in which case AdaptiveTTL takes over
type IndHistTTL struct {
	base
	indHist     *IndHist
	adaptiveTTL *AdaptiveTTL
	tBurst      float64
	windowHours int
}

// NewIndHistTTL creates the burst aware hourly histogram strategy
func NewIndHistTTL(bounds schedule.Bounds, theta, weightM, tBurst float64, windowHours int, rates RateSource, opts ...Option) (*IndHistTTL, error) {
	if tBurst <= 0 {
		return nil, &ParamError{Param: "t_burst", Value: tBurst, Message: "must be greater than 0"}
	}
	if windowHours <= 0 {
		return nil, &ParamError{Param: "time_window_hours", Value: windowHours, Message: "must be greater than 0"}
	}
	b, err := newBase("indhist_ttl", bounds, opts)
	if err != nil {
		return nil, err
	}
	indHist, err := NewIndHist(bounds, theta, rates, opts...)
	if err != nil {
		return nil, err
	}
	adaptiveTTL, err := NewAdaptiveTTL(bounds, weightM, opts...)
	if err != nil {
		return nil, err
	}
	return &IndHistTTL{
		base:        b,
		indHist:     indHist,
		adaptiveTTL: adaptiveTTL,
		tBurst:      tBurst,
		windowHours: windowHours,
	}, nil
}

// Update delegates to AdaptiveTTL during bursts and to IndHist otherwise
func (h *IndHistTTL) Update(state *schedule.State, stats *schedule.Statistics, training bool) {
	if training {
		h.indHist.Update(state, stats, true)
		return
	}
	if state.LastPollTime.IsZero() {
		h.logger.Warn("no last poll time, using default interval", zap.String("resource", state.ID))
		state.UpdateInterval = h.allowed(DefaultCheckTime)
		return
	}

	predicted := h.predictedInWindow(state)
	actual := h.recordWindow(state)

	if isBurst(actual, predicted, h.tBurst) {
		state.Models.Burst.LastDelegate = DelegateAdaptiveTTL
		h.adaptiveTTL.Update(state, stats, false)
	} else {
		state.Models.Burst.LastDelegate = DelegateIndHist
		h.indHist.Update(state, stats, false)
	}
	h.logger.Debug("delegate selected",
		zap.String("resource", state.ID),
		zap.String("delegate", state.Models.Burst.LastDelegate),
		zap.Int("actual", actual),
		zap.Float64("predicted", predicted))
}

func isBurst(actual int, predicted, tBurst float64) bool {
	if actual > 0 && predicted == 0 {
		return true
	}
	return predicted > 0 && float64(actual)/predicted > tBurst
}

// recordWindow adds the new items to the rolling window, prunes it and returns
// the number of items it holds
func (h *IndHistTTL) recordWindow(state *schedule.State) int {
	burst := state.Models.Burst
	if burst == nil {
		burst = &schedule.BurstWindow{}
		state.Models.Burst = burst
	}
	for _, item := range state.NewItems() {
		published := item.Published
		if published.IsZero() {
			published = state.LastPollTime
		}
		burst.Timestamps = append(burst.Timestamps, published)
	}

	windowStart := state.LastPollTime.Add(-time.Duration(h.windowHours) * time.Hour)
	kept := burst.Timestamps[:0]
	for _, t := range burst.Timestamps {
		if !t.Before(windowStart) {
			kept = append(kept, t)
		}
	}
	burst.Timestamps = kept
	return len(kept)
}

// predictedInWindow walks backwards from the poll time and sums the expected
// items of the window
func (h *IndHistTTL) predictedInWindow(state *schedule.State) float64 {
	rates := h.indHist.load(state)
	if rates == nil {
		return 0
	}

	windowMinutes := h.windowHours * 60
	slot := schedule.HourSlot(state.LastPollTime)
	history := state.LastPollTime.Minute()
	if history > windowMinutes {
		history = windowMinutes
	}
	predicted := rates[slot] * float64(history) / 60
	slot = (slot + 23) % 24

	daily := rates.Daily()
	for history+schedule.MinutesPerDay < windowMinutes {
		history += schedule.MinutesPerDay
		predicted += daily
	}
	for history+60 < windowMinutes {
		history += 60
		predicted += rates[slot]
		slot = (slot + 23) % 24
	}
	predicted += float64(windowMinutes-history) * rates[slot] / 60
	return predicted
}

// Delegate returns the inner strategy used at the last poll
func (h *IndHistTTL) Delegate(state *schedule.State) string {
	if state.Models.Burst == nil {
		return ""
	}
	return state.Models.Burst.LastDelegate
}

// Name returns "indhisttl_<theta>_<weightM>_<tBurst>_<windowHours>"
func (h *IndHistTTL) Name() string {
	return fmt.Sprintf("indhisttl_%s_%s_%s_%d",
		formatFloat(h.indHist.theta), formatFloat(h.adaptiveTTL.weightM), formatFloat(h.tBurst), h.windowHours)
}

// HasExplicitTrainingMode is true
func (h *IndHistTTL) HasExplicitTrainingMode() bool {
	return true
}
