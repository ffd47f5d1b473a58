package strategy

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shaneisley/cadence/pkg/schedule"
	"go.uber.org/zap"
)

// TrainingSentinel is the interval set during training. It moves the next poll
// beyond any training period and is deliberately not clamped.
const TrainingSentinel = 10 * 365 * schedule.MinutesPerDay

// RateSource supplies externally trained hourly rate models
type RateSource interface {
	HourlyRates(resourceID string) (*schedule.HourlyRates, error)
}

// ErrNoRates is returned by a RateSource that has no model for a resource
var ErrNoRates = errors.New("no hourly rates trained")

// IndHist predicts arrivals from 24 independently trained hourly rates
type IndHist struct {
	base
	theta float64
	rates RateSource
}

// NewIndHist creates an hourly histogram strategy. rates may be nil when models
// are provided through state.Models only.
func NewIndHist(bounds schedule.Bounds, theta float64, rates RateSource, opts ...Option) (*IndHist, error) {
	if theta < 0 || math.IsNaN(theta) {
		return nil, &ParamError{Param: "theta", Value: theta, Message: "must not be negative"}
	}
	b, err := newBase("indhist", bounds, opts)
	if err != nil {
		return nil, err
	}
	return &IndHist{base: b, theta: theta, rates: rates}, nil
}

// Update loads the model in training mode, otherwise walks the hourly rates
// until theta items are expected
func (h *IndHist) Update(state *schedule.State, stats *schedule.Statistics, training bool) {
	if training {
		h.load(state)
		state.UpdateInterval = TrainingSentinel
		return
	}
	state.UpdateInterval = h.allowed(h.predict(state))
}

// load copies the trained model into the state if it is not there yet
func (h *IndHist) load(state *schedule.State) *schedule.HourlyRates {
	if state.Models.HourlyRates != nil || h.rates == nil {
		return state.Models.HourlyRates
	}
	rates, err := h.rates.HourlyRates(state.ID)
	if err != nil {
		if !errors.Is(err, ErrNoRates) {
			h.logger.Warn("failed to load hourly rates", zap.String("resource", state.ID), zap.Error(err))
		}
		return nil
	}
	if rates != nil {
		copied := *rates
		state.Models.HourlyRates = &copied
	}
	return state.Models.HourlyRates
}

func (h *IndHist) predict(state *schedule.State) int {
	rates := h.load(state)
	if rates.IsZero() {
		h.logger.Warn("no hourly rate model, using default interval", zap.String("resource", state.ID))
		return DefaultCheckTime
	}
	if state.LastPollTime.IsZero() {
		return DefaultCheckTime
	}
	return h.walk(rates, state.LastPollTime)
}

// walk returns the minutes after pollTime until theta items are expected
func (h *IndHist) walk(rates *schedule.HourlyRates, pollTime time.Time) int {
	if h.theta == 0 {
		return 0
	}

	slot := schedule.HourSlot(pollTime)
	remaining := 60 - pollTime.Minute()
	expected := rates[slot] * float64(remaining) / 60
	if expected >= h.theta {
		return partialHour(h.theta, rates[slot])
	}

	elapsed := remaining
	slot = (slot + 1) % 24

	daily := rates.Daily()
	for expected+daily < h.theta {
		elapsed += schedule.MinutesPerDay
		expected += daily
		if h.pastHighest(elapsed) {
			return elapsed
		}
	}

	for i := 0; i < 48 && expected+rates[slot] < h.theta; i++ {
		elapsed += 60
		expected += rates[slot]
		slot = (slot + 1) % 24
		if h.pastHighest(elapsed) {
			return elapsed
		}
	}

	if rates[slot] <= 0 {
		return elapsed
	}
	return elapsed + partialHour(h.theta-expected, rates[slot])
}

func (h *IndHist) pastHighest(elapsed int) bool {
	return h.bounds.Highest != schedule.Unbounded && elapsed >= h.bounds.Highest
}

// partialHour returns the minutes needed to expect need items at rate per hour
func partialHour(need, rate float64) int {
	minutes := int(math.Ceil(need/rate*60 - 1e-9))
	if minutes < 0 {
		return 0
	}
	return minutes
}

// Name returns "indhist_<theta>"
func (h *IndHist) Name() string {
	return "indhist_" + formatFloat(h.theta)
}

// HasExplicitTrainingMode is true
func (h *IndHist) HasExplicitTrainingMode() bool {
	return true
}

// TrainHourlyRates builds an hourly rate model from the item timestamps
// published in [from, to)
func TrainHourlyRates(timestamps []time.Time, from, to time.Time) (*schedule.HourlyRates, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("training period %s - %s is empty", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	days := to.Sub(from).Hours() / 24

	var rates schedule.HourlyRates
	for _, t := range timestamps {
		if t.Before(from) || !t.Before(to) {
			continue
		}
		rates[schedule.HourSlot(t)]++
	}
	for i := range rates {
		rates[i] /= days
	}
	return &rates, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
