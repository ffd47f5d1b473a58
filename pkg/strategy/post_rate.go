package strategy

import (
	"sort"
	"time"

	"github.com/shaneisley/cadence/pkg/schedule"
	"go.uber.org/zap"
)

// Safety ceilings of the forward walk, in minutes
const (
	postRateMinCap = 31 * schedule.MinutesPerDay
	postRateMaxCap = 186 * schedule.MinutesPerDay
)

// PostRate learns the probability of a post for every minute of the day and
// walks forward until the expected number of posts is reached
type PostRate struct {
	base
}

// NewPostRate creates a minute histogram strategy
func NewPostRate(bounds schedule.Bounds, opts ...Option) (*PostRate, error) {
	b, err := newBase("post_rate", bounds, opts)
	if err != nil {
		return nil, err
	}
	return &PostRate{base: b}, nil
}

// Update feeds the window into the histogram and schedules the next poll.
// Until the histogram covers a full day the moving average is used instead.
func (p *PostRate) Update(state *schedule.State, stats *schedule.Statistics, training bool) {
	p.ignoreTraining(state, training)
	state.UpdateInterval = p.allowed(p.interval(state, stats))
}

func (p *PostRate) interval(state *schedule.State, stats *schedule.Statistics) int {
	hist := state.Models.Histogram
	if hist == nil {
		hist = &schedule.MinuteHistogram{}
		state.Models.Histogram = hist
	}
	observe(hist, publishedBy(state.Timestamps(), state.LastPollTime))

	if !hist.FullDaySeen() || state.LastPollTime.IsZero() {
		p.logger.Debug("histogram covers less than a day, using moving average", zap.String("resource", state.ID))
		est := movingAverage(state, statsOrCompute(state, stats), p.bounds)
		return est.pick(state.UpdateMode)
	}

	if state.UpdateMode == schedule.MaxDelay {
		target := float64(state.ItemCount())
		if target < 1 {
			target = 1
		}
		return walkHistogram(hist, state.LastPollTime, target, postRateMaxCap)
	}
	return walkHistogram(hist, state.LastPollTime, 1, postRateMinCap)
}

// observe records polling chances and posts for every timestamp newer than the
// newest one seen so far
func observe(hist *schedule.MinuteHistogram, times []time.Time) {
	if len(times) == 0 {
		return
	}
	newest := times[len(times)-1]

	var from time.Time
	if hist.LastSeen.IsZero() {
		hist.FirstSeen = times[0]
		from = times[0].Truncate(time.Minute)
	} else {
		if !newest.After(hist.LastSeen) {
			return
		}
		from = hist.LastSeen.Truncate(time.Minute).Add(time.Minute)
	}

	addChances(hist, from, newest.Truncate(time.Minute))
	for _, t := range times {
		if hist.LastSeen.IsZero() || t.After(hist.LastSeen) {
			hist.Slots[schedule.MinuteOfDay(t)].Posts++
		}
	}
	hist.LastSeen = newest
}

// publishedBy drops sorted timestamps that lie after pollTime
func publishedBy(times []time.Time, pollTime time.Time) []time.Time {
	if pollTime.IsZero() {
		return times
	}
	n := sort.Search(len(times), func(i int) bool { return times[i].After(pollTime) })
	return times[:n]
}

// addChances gives every minute in [from, to] one chance
func addChances(hist *schedule.MinuteHistogram, from, to time.Time) {
	if to.Before(from) {
		return
	}
	minutes := int(to.Sub(from)/time.Minute) + 1
	if days := minutes / schedule.MinutesPerDay; days > 0 {
		for i := range hist.Slots {
			hist.Slots[i].Chances += int64(days)
		}
		from = from.Add(time.Duration(days*schedule.MinutesPerDay) * time.Minute)
		minutes -= days * schedule.MinutesPerDay
	}
	for i := 0; i < minutes; i++ {
		hist.Slots[schedule.MinuteOfDay(from.Add(time.Duration(i)*time.Minute))].Chances++
	}
}

// walkHistogram counts the minutes after pollTime until the summed post
// probability reaches target, giving up at limit
func walkHistogram(hist *schedule.MinuteHistogram, pollTime time.Time, target float64, limit int) int {
	var daily float64
	for _, slot := range hist.Slots {
		daily += slot.Probability()
	}
	if daily <= 0 {
		return limit
	}

	start := pollTime.Truncate(time.Minute)
	elapsed := 0
	var sum float64
	if whole := int(target/daily) - 1; whole > 0 {
		elapsed = whole * schedule.MinutesPerDay
		sum = float64(whole) * daily
	}
	for elapsed < limit {
		elapsed++
		sum += hist.Slots[schedule.MinuteOfDay(start.Add(time.Duration(elapsed)*time.Minute))].Probability()
		if sum >= target-1e-9 {
			return elapsed
		}
	}
	return limit
}

// Name returns "post_rate"
func (p *PostRate) Name() string {
	return "post_rate"
}

// HasExplicitTrainingMode is false
func (p *PostRate) HasExplicitTrainingMode() bool {
	return false
}
