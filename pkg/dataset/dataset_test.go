package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noon = time.Date(2024, time.March, 4, 12, 0, 0, 0, time.UTC)

func TestParse_YAML(t *testing.T) {
	// Given a YAML dataset with unsorted mixed timestamps
	input := `
id: news
window_size: 2
ttl: 15
items:
  - 2024-03-04T13:00:00Z
  - "2024-03-04T12:00:00+00:00"
  - 1709560800
`

	// When parsed
	ds, err := Parse(strings.NewReader(input), FormatYAML)
	require.NoError(t, err)

	// Then items are sorted and fields are set
	assert.Equal(t, "news", ds.ID)
	assert.Equal(t, 2, ds.WindowSize)
	assert.Equal(t, 15, ds.TTL)
	require.Len(t, ds.Items, 3)
	assert.Equal(t, noon, ds.First())
	assert.Equal(t, noon.Add(2*time.Hour), ds.Last())
}

func TestParse_YAMLDefaultsToUnboundedWindow(t *testing.T) {
	ds, err := Parse(strings.NewReader("items: [2024-03-04T12:00:00Z]"), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, -1, ds.WindowSize)
}

func TestParse_CSV(t *testing.T) {
	input := "published,title\n# comment\n2024-03-04T12:00:00Z,first\n1709557200,second\n"

	ds, err := Parse(strings.NewReader(input), FormatCSV)
	require.NoError(t, err)

	require.Len(t, ds.Items, 2)
	assert.Equal(t, noon, ds.Items[0])
	assert.Equal(t, noon.Add(time.Hour), ds.Items[1])
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		input  string
		format Format
	}{
		{"empty yaml", "", FormatYAML},
		{"no items", "id: x\nitems: []", FormatYAML},
		{"bad timestamp", "items: [yesterday]", FormatYAML},
		{"zero window", "window_size: 0\nitems: [2024-03-04T12:00:00Z]", FormatYAML},
		{"negative ttl", "ttl: -5\nitems: [2024-03-04T12:00:00Z]", FormatYAML},
		{"bad csv row", "2024-03-04T12:00:00Z\nlater\n", FormatCSV},
		{"unknown format", "", Format("xml")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.input), tc.format)
			assert.Error(t, err)
		})
	}
}

func TestLoad_UsesFileNameAsID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blog.csv")
	require.NoError(t, os.WriteFile(path, []byte("2024-03-04T12:00:00Z\n"), 0644))

	ds, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "blog", ds.ID)

	_, err = Load(filepath.Join(t.TempDir(), "feed.json"))
	assert.Error(t, err)
}

func TestDataset_Window(t *testing.T) {
	ds := &Dataset{WindowSize: 2, Items: []time.Time{noon, noon.Add(time.Hour), noon.Add(2 * time.Hour)}}

	assert.Empty(t, ds.Window(noon.Add(-time.Minute)))
	assert.Equal(t, []time.Time{noon}, ds.Window(noon))
	assert.Equal(t, []time.Time{noon.Add(time.Hour), noon.Add(2 * time.Hour)}, ds.Window(noon.Add(5*time.Hour)))

	ds.WindowSize = -1
	assert.Len(t, ds.Window(noon.Add(5*time.Hour)), 3)
}

func TestDataset_Between(t *testing.T) {
	ds := &Dataset{WindowSize: -1, Items: []time.Time{noon, noon.Add(time.Hour), noon.Add(2 * time.Hour)}}

	assert.Equal(t, []time.Time{noon, noon.Add(time.Hour)}, ds.Between(noon, noon.Add(2*time.Hour)))
}
