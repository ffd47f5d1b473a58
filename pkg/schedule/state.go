package schedule

import (
	"fmt"
	"sort"
	"time"
)

// UpdateMode selects what a strategy optimizes for
type UpdateMode int

const (
	// MinDelay polls as soon as a new item could plausibly exist
	MinDelay UpdateMode = iota
	// MaxDelay polls as late as possible while still catching every item in the window
	MaxDelay
)

func (m UpdateMode) String() string {
	switch m {
	case MinDelay:
		return "min_delay"
	case MaxDelay:
		return "max_delay"
	default:
		return "unknown"
	}
}

// ParseUpdateMode parses the configuration spelling of an update mode
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch s {
	case "min_delay", "min", "":
		return MinDelay, nil
	case "max_delay", "max":
		return MaxDelay, nil
	default:
		return MinDelay, fmt.Errorf("unknown update mode %q", s)
	}
}

// Item is one entry of the observation window
type Item struct {
	Published time.Time `json:"published"`
	New       bool      `json:"new"`
}

// State is the per-resource scheduling record. The external scheduler owns it;
// strategies read it and write UpdateInterval and their own entry in Models.
type State struct {
	ID             string `json:"id"`
	Checks         int    `json:"checks"`
	UpdateInterval int    `json:"update_interval"`

	// Zero values mean unknown.
	LastPollTime       time.Time `json:"last_poll_time"`
	LastItemTime       time.Time `json:"last_item_time"`
	SecondLastItemTime time.Time `json:"second_last_item_time"`
	OldestItemInWindow time.Time `json:"oldest_item_in_window"`

	Items      []Item     `json:"items"`
	WindowSize int        `json:"window_size"`
	UpdateMode UpdateMode `json:"update_mode"`

	// TTL is an externally advertised minimum refresh interval in minutes, 0 if absent.
	TTL int `json:"ttl"`

	Models Models `json:"models"`
}

// NewState creates an empty state for a resource
func NewState(id string, mode UpdateMode) *State {
	return &State{
		ID:         id,
		WindowSize: -1,
		UpdateMode: mode,
	}
}

// NewItems returns the items flagged as new in the current window
func (s *State) NewItems() []Item {
	var items []Item
	for _, item := range s.Items {
		if item.New {
			items = append(items, item)
		}
	}
	return items
}

// HasNewItems reports whether the last poll produced at least one new item
func (s *State) HasNewItems() bool {
	for _, item := range s.Items {
		if item.New {
			return true
		}
	}
	return false
}

// Timestamps returns the known publish times of the window, oldest first
func (s *State) Timestamps() []time.Time {
	times := make([]time.Time, 0, len(s.Items))
	for _, item := range s.Items {
		if item.Published.IsZero() {
			continue
		}
		times = append(times, item.Published)
	}
	sort.Slice(times, func(i, j int) bool {
		return times[i].Before(times[j])
	})
	return times
}

// ItemCount is the number of items in the window used for window-refresh estimates
func (s *State) ItemCount() int {
	return len(s.Items)
}

// Clone returns a deep copy of the state
func (s *State) Clone() *State {
	out := *s
	out.Items = append([]Item(nil), s.Items...)
	out.Models = s.Models.Clone()
	return &out
}
