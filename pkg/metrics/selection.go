package metrics

import (
	"sort"
	"sync"
	"time"
)

// SelectionTracker counts how often hybrid strategies select each delegate and
// what interval the delegate produced
type SelectionTracker struct {
	mu         sync.RWMutex
	selections map[string]*DelegateStats
}

// DelegateStats contains selection data for one delegate
type DelegateStats struct {
	Selections      int64
	ItemsFound      int64
	AverageInterval float64
	LastSelected    time.Time
}

// NewSelectionTracker creates an empty tracker
func NewSelectionTracker() *SelectionTracker {
	return &SelectionTracker{
		selections: make(map[string]*DelegateStats),
	}
}

// RecordSelection records that delegate produced interval at pollTime
func (st *SelectionTracker) RecordSelection(delegate string, interval, newItems int, pollTime time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()

	stats, exists := st.selections[delegate]
	if !exists {
		stats = &DelegateStats{}
		st.selections[delegate] = stats
	}

	stats.Selections++
	stats.ItemsFound += int64(newItems)

	// Update running average interval
	stats.AverageInterval += (float64(interval) - stats.AverageInterval) / float64(stats.Selections)
	stats.LastSelected = pollTime
}

// Get returns a copy of the stats for one delegate, nil if never selected
func (st *SelectionTracker) Get(delegate string) *DelegateStats {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if stats, exists := st.selections[delegate]; exists {
		copied := *stats
		return &copied
	}
	return nil
}

// All returns copies of the stats of every delegate
func (st *SelectionTracker) All() map[string]DelegateStats {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make(map[string]DelegateStats, len(st.selections))
	for delegate, stats := range st.selections {
		result[delegate] = *stats
	}
	return result
}

// MostSelected returns the delegate chosen most often; ties resolve by name
func (st *SelectionTracker) MostSelected() (string, *DelegateStats) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	names := make([]string, 0, len(st.selections))
	for name := range st.selections {
		names = append(names, name)
	}
	sort.Strings(names)

	var best string
	var bestStats *DelegateStats
	for _, name := range names {
		stats := st.selections[name]
		if bestStats == nil || stats.Selections > bestStats.Selections {
			best = name
			bestStats = stats
		}
	}
	if bestStats == nil {
		return "", nil
	}
	copied := *bestStats
	return best, &copied
}

// Reset clears all statistics
func (st *SelectionTracker) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.selections = make(map[string]*DelegateStats)
}
