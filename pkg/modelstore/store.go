// Package modelstore persists per-resource strategy models between polls.
package modelstore

import (
	"errors"
	"sync"

	"github.com/shaneisley/cadence/pkg/schedule"
	"github.com/shaneisley/cadence/pkg/strategy"
)

// ErrNotFound is returned when no models are stored for a resource
var ErrNotFound = errors.New("models not found")

// Store keeps the opaque model record of every resource. HourlyRates makes a
// Store usable as strategy.RateSource.
type Store interface {
	LoadModels(resourceID string) (schedule.Models, error)
	SaveModels(resourceID string, models schedule.Models) error
	SaveHourlyRates(resourceID string, rates *schedule.HourlyRates) error
	HourlyRates(resourceID string) (*schedule.HourlyRates, error)
	Close() error
}

// MemoryStore keeps models in memory
type MemoryStore struct {
	mu     sync.RWMutex
	models map[string]schedule.Models
	rates  map[string]schedule.HourlyRates
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		models: make(map[string]schedule.Models),
		rates:  make(map[string]schedule.HourlyRates),
	}
}

// LoadModels returns a copy of the stored models
func (m *MemoryStore) LoadModels(resourceID string) (schedule.Models, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	models, ok := m.models[resourceID]
	if !ok {
		return schedule.Models{}, ErrNotFound
	}
	return models.Clone(), nil
}

// SaveModels replaces the stored models with a copy
func (m *MemoryStore) SaveModels(resourceID string, models schedule.Models) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.models[resourceID] = models.Clone()
	return nil
}

// SaveHourlyRates stores a trained rate model
func (m *MemoryStore) SaveHourlyRates(resourceID string, rates *schedule.HourlyRates) error {
	if rates == nil {
		return errors.New("hourly rates must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rates[resourceID] = *rates
	return nil
}

// HourlyRates returns the trained rate model of a resource
func (m *MemoryStore) HourlyRates(resourceID string) (*schedule.HourlyRates, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rates, ok := m.rates[resourceID]
	if !ok {
		return nil, strategy.ErrNoRates
	}
	return &rates, nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}
