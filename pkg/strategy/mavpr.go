package strategy

import (
	"time"

	"github.com/shaneisley/cadence/pkg/schedule"
	"go.uber.org/zap"
)

// Sides of the MavPr competition
const (
	DelegateMovingAverage = "mav"
	DelegatePostRate      = "post_rate"
)

// MavPr runs a moving average and a post rate histogram side by side and
// applies the interval of whichever predicted the last arrival better
type MavPr struct {
	base
	mav      *MovingAverage
	postRate *PostRate
}

// NewMavPr creates the competing moving average / post rate strategy
func NewMavPr(bounds schedule.Bounds, opts ...Option) (*MavPr, error) {
	b, err := newBase("mavpr", bounds, opts)
	if err != nil {
		return nil, err
	}
	mav, err := NewMovingAverage(bounds, opts...)
	if err != nil {
		return nil, err
	}
	postRate, err := NewPostRate(bounds, opts...)
	if err != nil {
		return nil, err
	}
	return &MavPr{base: b, mav: mav, postRate: postRate}, nil
}

// Update scores the previous predictions, runs both sides and applies the
// interval of the active one
func (m *MavPr) Update(state *schedule.State, stats *schedule.Statistics, training bool) {
	m.ignoreTraining(state, training)
	stats = statsOrCompute(state, stats)

	comp := state.Models.Competition
	if comp == nil {
		comp = &schedule.Competition{Active: DelegateMovingAverage}
		state.Models.Competition = comp
	}
	m.score(state, comp)

	m.mav.Update(state, stats, false)
	mavInterval := state.UpdateInterval
	m.postRate.Update(state, stats, false)
	postRateInterval := state.UpdateInterval

	comp.Predictions = [2]int{mavInterval, postRateInterval}
	comp.PredictedAt = state.LastPollTime

	if comp.Active == DelegatePostRate {
		state.UpdateInterval = postRateInterval
	} else {
		state.UpdateInterval = mavInterval
	}
}

// score compares the last predictions with the first arrival after them
func (m *MavPr) score(state *schedule.State, comp *schedule.Competition) {
	if comp.PredictedAt.IsZero() || !state.HasNewItems() {
		return
	}

	var first time.Time
	for _, item := range state.NewItems() {
		if item.Published.Before(comp.PredictedAt) {
			continue
		}
		if first.IsZero() || item.Published.Before(first) {
			first = item.Published
		}
	}
	if first.IsZero() {
		return
	}

	actual := toMinutes(first.Sub(comp.PredictedAt))
	mavError := abs(comp.Predictions[0] - actual)
	postRateError := abs(comp.Predictions[1] - actual)

	switch {
	case mavError < postRateError:
		comp.Active = DelegateMovingAverage
	case postRateError < mavError:
		comp.Active = DelegatePostRate
	}
	m.logger.Debug("competition scored",
		zap.String("resource", state.ID),
		zap.Int("actual", actual),
		zap.Int("mav_error", mavError),
		zap.Int("post_rate_error", postRateError),
		zap.String("active", comp.Active))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Delegate returns the side whose interval was applied
func (m *MavPr) Delegate(state *schedule.State) string {
	if state.Models.Competition == nil {
		return ""
	}
	return state.Models.Competition.Active
}

// Name returns "mavpr"
func (m *MavPr) Name() string {
	return "mavpr"
}

// HasExplicitTrainingMode is false
func (m *MavPr) HasExplicitTrainingMode() bool {
	return false
}
