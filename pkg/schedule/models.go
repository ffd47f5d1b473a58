package schedule

import "time"

// HourlyRates holds expected arrivals per hour. Slot h covers the hour that ends
// at h:00, so slot 0 is 23:00-24:00 and slot 10 is 09:00-10:00.
type HourlyRates [24]float64

// HourSlot returns the HourlyRates slot containing t
func HourSlot(t time.Time) int {
	return (t.Hour() + 1) % 24
}

// Daily returns the expected arrivals over a whole day
func (r *HourlyRates) Daily() float64 {
	var sum float64
	for _, rate := range r {
		sum += rate
	}
	return sum
}

// IsZero reports whether no arrivals are expected at all
func (r *HourlyRates) IsZero() bool {
	return r == nil || r.Daily() == 0
}

// Day of week table rows and columns
const (
	AggregateRow   = 7
	UpdatesColumn  = 0
	ObservedColumn = 1
)

// DayOfWeekTable counts updates and observed polls per weekday. Rows 0-6 are
// Sunday..Saturday, row 7 aggregates all days.
type DayOfWeekTable [8][2]int64

// Probability returns updates/observed for a row, 0 when the row was never observed
func (t *DayOfWeekTable) Probability(row int) float64 {
	if t[row][ObservedColumn] == 0 {
		return 0
	}
	return float64(t[row][UpdatesColumn]) / float64(t[row][ObservedColumn])
}

// MinutesPerDay is the number of slots in a MinuteHistogram
const MinutesPerDay = 1440

// MinuteSlot counts posts and polling chances for one minute of the day
type MinuteSlot struct {
	Posts   int64 `json:"p"`
	Chances int64 `json:"c"`
}

// Probability returns posts/chances, 0 for slots without chances
func (s MinuteSlot) Probability() float64 {
	if s.Chances == 0 {
		return 0
	}
	return float64(s.Posts) / float64(s.Chances)
}

// MinuteHistogram is the post distribution over the minutes of a day
type MinuteHistogram struct {
	Slots     [MinutesPerDay]MinuteSlot `json:"slots"`
	FirstSeen time.Time                 `json:"first_seen"`
	LastSeen  time.Time                 `json:"last_seen"`
}

// MinuteOfDay returns the histogram slot of t
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// FullDaySeen reports whether the histogram covers at least one day
func (h *MinuteHistogram) FullDaySeen() bool {
	if h.FirstSeen.IsZero() || h.LastSeen.IsZero() {
		return false
	}
	return h.LastSeen.Sub(h.FirstSeen) >= 24*time.Hour
}

// BurstWindow keeps the item timestamps of a rolling time window
type BurstWindow struct {
	Timestamps   []time.Time `json:"timestamps"`
	LastDelegate string      `json:"last_delegate"`
}

// Competition remembers the last predictions of two competing strategies
type Competition struct {
	Active      string    `json:"active"`
	Predictions [2]int    `json:"predictions"`
	PredictedAt time.Time `json:"predicted_at"`
}

// Models holds every per-resource model. Each strategy family owns exactly one
// field; strategies never touch fields of other families.
type Models struct {
	HourlyRates *HourlyRates     `json:"hourly_rates,omitempty"`
	DayOfWeek   *DayOfWeekTable  `json:"day_of_week,omitempty"`
	Histogram   *MinuteHistogram `json:"histogram,omitempty"`
	Burst       *BurstWindow     `json:"burst,omitempty"`
	Competition *Competition     `json:"competition,omitempty"`
}

// IsEmpty reports whether no model has been created yet
func (m *Models) IsEmpty() bool {
	return m.HourlyRates == nil && m.DayOfWeek == nil && m.Histogram == nil &&
		m.Burst == nil && m.Competition == nil
}

// Clone returns a deep copy
func (m Models) Clone() Models {
	var out Models
	if m.HourlyRates != nil {
		rates := *m.HourlyRates
		out.HourlyRates = &rates
	}
	if m.DayOfWeek != nil {
		table := *m.DayOfWeek
		out.DayOfWeek = &table
	}
	if m.Histogram != nil {
		hist := *m.Histogram
		out.Histogram = &hist
	}
	if m.Burst != nil {
		burst := BurstWindow{LastDelegate: m.Burst.LastDelegate}
		burst.Timestamps = append([]time.Time(nil), m.Burst.Timestamps...)
		out.Burst = &burst
	}
	if m.Competition != nil {
		comp := *m.Competition
		out.Competition = &comp
	}
	return out
}
