package modelstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shaneisley/cadence/pkg/schedule"
	"github.com/shaneisley/cadence/pkg/strategy"
)

// SQLiteStore keeps models as JSON blobs in a SQLite database
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates the model database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:   db,
		path: dbPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database tables
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS models (
		resource_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE TABLE IF NOT EXISTS hourly_rates (
		resource_id TEXT PRIMARY KEY,
		rates TEXT NOT NULL,
		trained_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_models_updated ON models(updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// LoadModels returns the stored models of a resource
func (s *SQLiteStore) LoadModels(resourceID string) (schedule.Models, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM models WHERE resource_id = ?", resourceID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Models{}, ErrNotFound
	}
	if err != nil {
		return schedule.Models{}, fmt.Errorf("failed to load models for %s: %w", resourceID, err)
	}

	var models schedule.Models
	if err := json.Unmarshal([]byte(data), &models); err != nil {
		return schedule.Models{}, fmt.Errorf("failed to decode models for %s: %w", resourceID, err)
	}
	return models, nil
}

// SaveModels inserts or replaces the models of a resource in one statement
func (s *SQLiteStore) SaveModels(resourceID string, models schedule.Models) error {
	data, err := json.Marshal(models)
	if err != nil {
		return fmt.Errorf("failed to encode models for %s: %w", resourceID, err)
	}

	query := `
	INSERT INTO models (resource_id, data, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(resource_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`

	if _, err := s.db.Exec(query, resourceID, string(data), time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to save models for %s: %w", resourceID, err)
	}
	return nil
}

// SaveHourlyRates stores a trained rate model
func (s *SQLiteStore) SaveHourlyRates(resourceID string, rates *schedule.HourlyRates) error {
	if rates == nil {
		return errors.New("hourly rates must not be nil")
	}
	data, err := json.Marshal(rates)
	if err != nil {
		return fmt.Errorf("failed to encode hourly rates for %s: %w", resourceID, err)
	}

	query := `
	INSERT INTO hourly_rates (resource_id, rates, trained_at) VALUES (?, ?, ?)
	ON CONFLICT(resource_id) DO UPDATE SET rates = excluded.rates, trained_at = excluded.trained_at`

	if _, err := s.db.Exec(query, resourceID, string(data), time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to save hourly rates for %s: %w", resourceID, err)
	}
	return nil
}

// HourlyRates returns the trained rate model of a resource
func (s *SQLiteStore) HourlyRates(resourceID string) (*schedule.HourlyRates, error) {
	var data string
	err := s.db.QueryRow("SELECT rates FROM hourly_rates WHERE resource_id = ?", resourceID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, strategy.ErrNoRates
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load hourly rates for %s: %w", resourceID, err)
	}

	var rates schedule.HourlyRates
	if err := json.Unmarshal([]byte(data), &rates); err != nil {
		return nil, fmt.Errorf("failed to decode hourly rates for %s: %w", resourceID, err)
	}
	return &rates, nil
}

// CleanupStaleModels removes models that were not updated within maxAge
func (s *SQLiteStore) CleanupStaleModels(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	result, err := s.db.Exec("DELETE FROM models WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup models: %w", err)
	}
	return result.RowsAffected()
}

// Stats returns the number of stored records per table
func (s *SQLiteStore) Stats() (map[string]int64, error) {
	stats := make(map[string]int64)
	for _, table := range []string{"models", "hourly_rates"} {
		var count int64
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = count
	}
	return stats, nil
}

// Path returns the database file location
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
