package strategy

import (
	"math"

	"github.com/shaneisley/cadence/pkg/schedule"
	"go.uber.org/zap"
)

const (
	// lihzAlpha weights the day probability against the aggregate one
	lihzAlpha   = 0.9
	lihzMaxDays = 365
)

// LIHZ schedules whole days ahead using per weekday update probabilities
type LIHZ struct {
	base
	theta float64
}

// NewLIHZ creates a day of week strategy
func NewLIHZ(bounds schedule.Bounds, theta float64, opts ...Option) (*LIHZ, error) {
	if theta < 0 || math.IsNaN(theta) {
		return nil, &ParamError{Param: "theta", Value: theta, Message: "must not be negative"}
	}
	b, err := newBase("lihz", bounds, opts)
	if err != nil {
		return nil, err
	}
	return &LIHZ{base: b, theta: theta}, nil
}

// Update counts the poll in the day of week table and walks forward day by day
// until theta updates are expected
func (l *LIHZ) Update(state *schedule.State, stats *schedule.Statistics, training bool) {
	if state.LastPollTime.IsZero() {
		state.UpdateInterval = l.allowed(DefaultCheckTime)
		return
	}

	table := state.Models.DayOfWeek
	if table == nil {
		table = &schedule.DayOfWeekTable{}
		state.Models.DayOfWeek = table
	}

	day := int(state.LastPollTime.Weekday())
	empty := table[schedule.AggregateRow][schedule.UpdatesColumn] == 0
	if state.HasNewItems() {
		table[day][schedule.UpdatesColumn]++
		table[schedule.AggregateRow][schedule.UpdatesColumn]++
	}

	if training {
		table[day][schedule.ObservedColumn]++
		table[schedule.AggregateRow][schedule.ObservedColumn]++
		state.UpdateInterval = schedule.MinutesPerDay
		return
	}

	// emptiness is judged before this poll's items are counted
	if empty {
		yesterday := (day + 6) % 7
		table[yesterday][schedule.ObservedColumn]++
		table[schedule.AggregateRow][schedule.ObservedColumn]++
		l.logger.Warn("empty day of week model, using default interval", zap.String("resource", state.ID))
		state.UpdateInterval = l.allowed(DefaultCheckTime)
		return
	}

	state.UpdateInterval = l.allowed(l.walk(table, day) * schedule.MinutesPerDay)
}

// walk returns the number of days to wait. Every day passed counts as a poll
// observed on that weekday.
func (l *LIHZ) walk(table *schedule.DayOfWeekTable, day int) int {
	var sum float64
	days := 0
	for days < lihzMaxDays {
		if days > 0 && l.bounds.Highest != schedule.Unbounded && (days+1)*schedule.MinutesPerDay > l.bounds.Highest {
			break
		}
		days++
		d := (day + days) % 7
		table[d][schedule.ObservedColumn]++
		table[schedule.AggregateRow][schedule.ObservedColumn]++

		sum += lihzAlpha*table.Probability(d) + (1-lihzAlpha)*table.Probability(schedule.AggregateRow)
		if sum >= l.theta {
			break
		}
	}
	return days
}

// Name returns "lihz_<theta>"
func (l *LIHZ) Name() string {
	return "lihz_" + formatFloat(l.theta)
}

// HasExplicitTrainingMode is true
func (l *LIHZ) HasExplicitTrainingMode() bool {
	return true
}
