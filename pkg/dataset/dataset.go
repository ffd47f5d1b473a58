// Package dataset loads item publish timestamps used to replay and train
// scheduling strategies.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format of a dataset file
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// Dataset is the publish history of one resource
type Dataset struct {
	ID string `yaml:"id"`
	// WindowSize is how many of the newest items a poll returns, -1 for all
	WindowSize int `yaml:"window_size"`
	// TTL is the advertised minimum refresh interval in minutes
	TTL   int         `yaml:"ttl"`
	Items []time.Time `yaml:"-"`
}

type yamlDataset struct {
	ID         string   `yaml:"id"`
	WindowSize *int     `yaml:"window_size"`
	TTL        int      `yaml:"ttl"`
	Items      []string `yaml:"items"`
}

// FormatFromPath picks the format from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported dataset extension %q (valid: .yaml, .yml, .csv, .txt)", filepath.Ext(path))
	}
}

// Load reads a dataset file. CSV datasets take their id from the file name.
func Load(path string) (*Dataset, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	ds, err := Parse(f, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}
	if ds.ID == "" {
		ds.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return ds, nil
}

// Parse decodes a dataset from r
func Parse(r io.Reader, format Format) (*Dataset, error) {
	switch format {
	case FormatYAML:
		return parseYAML(r)
	case FormatCSV:
		return parseCSV(r)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", format)
	}
}

func parseYAML(r io.Reader) (*Dataset, error) {
	var raw yamlDataset
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("dataset is empty")
		}
		return nil, err
	}

	ds := &Dataset{ID: raw.ID, WindowSize: -1, TTL: raw.TTL}
	if raw.WindowSize != nil {
		ds.WindowSize = *raw.WindowSize
	}
	for i, value := range raw.Items {
		t, err := ParseTimestamp(value)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		ds.Items = append(ds.Items, t)
	}
	return ds, ds.normalize()
}

func parseCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	ds := &Dataset{WindowSize: -1}
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}
		t, err := ParseTimestamp(record[0])
		if err != nil {
			// a header row is allowed
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ds.Items = append(ds.Items, t)
	}
	return ds, ds.normalize()
}

// ParseTimestamp accepts RFC3339 timestamps and unix seconds
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: expected RFC3339 or unix seconds", value)
}

func (d *Dataset) normalize() error {
	if len(d.Items) == 0 {
		return errors.New("dataset has no items")
	}
	if d.WindowSize == 0 || d.WindowSize < -1 {
		return fmt.Errorf("window_size must be -1 or positive, got %d", d.WindowSize)
	}
	if d.TTL < 0 {
		return fmt.Errorf("ttl must not be negative, got %d", d.TTL)
	}
	sort.Slice(d.Items, func(i, j int) bool {
		return d.Items[i].Before(d.Items[j])
	})
	return nil
}

// First returns the oldest item
func (d *Dataset) First() time.Time {
	return d.Items[0]
}

// Last returns the newest item
func (d *Dataset) Last() time.Time {
	return d.Items[len(d.Items)-1]
}

// Window returns what a poll at time at would see: the newest WindowSize items
// published at or before at, oldest first
func (d *Dataset) Window(at time.Time) []time.Time {
	end := sort.Search(len(d.Items), func(i int) bool {
		return d.Items[i].After(at)
	})
	start := 0
	if d.WindowSize > 0 && end > d.WindowSize {
		start = end - d.WindowSize
	}
	return append([]time.Time(nil), d.Items[start:end]...)
}

// Between returns the items published in [from, to)
func (d *Dataset) Between(from, to time.Time) []time.Time {
	var items []time.Time
	for _, t := range d.Items {
		if !t.Before(from) && t.Before(to) {
			items = append(items, t)
		}
	}
	return items
}
