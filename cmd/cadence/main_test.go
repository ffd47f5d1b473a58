package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shaneisley/cadence/pkg/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the command tree in process and returns stdout
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// halfHourly writes a dataset with an item every 30 minutes on 2024-03-04
func halfHourly(t *testing.T, dir, id string) string {
	t.Helper()
	day := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

	var b strings.Builder
	fmt.Fprintf(&b, "id: %s\nitems:\n", id)
	for i := 0; i < 48; i++ {
		fmt.Fprintf(&b, "  - %s\n", day.Add(time.Duration(i)*30*time.Minute).Format(time.RFC3339))
	}
	return writeFile(t, dir, id+".yaml", b.String())
}

func TestCLI_Strategies(t *testing.T) {
	// When listing strategies
	output, err := runCLI(t, "strategies")

	// Then every factory name is printed on its own line
	require.NoError(t, err)
	assert.Equal(t, strings.Join(strategy.Names(), "\n")+"\n", output)
}

func TestCLI_HelpShowsCommands(t *testing.T) {
	output, err := runCLI(t, "--help")

	require.NoError(t, err)
	assert.Contains(t, output, "cadence decides how many minutes to wait")
	assert.Contains(t, output, "simulate")
	assert.Contains(t, output, "train")
	assert.Contains(t, output, "Available Commands")
}

func TestCLI_InvalidStrategy(t *testing.T) {
	dir := t.TempDir()
	path := halfHourly(t, dir, "feed-a")

	_, err := runCLI(t, "next", "--strategy", "astrology", "--dataset", path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid strategy value 'astrology'")
}

func TestCLI_ConfigFileAndDebug(t *testing.T) {
	// Given a config file choosing a fixed interval
	dir := t.TempDir()
	configPath := writeFile(t, dir, "cadence.toml", "strategy = \"fixed\"\nfixed_interval = 20\n")
	path := halfHourly(t, dir, "feed-a")

	// When a flag overrides the interval with debug output enabled
	output, err := runCLI(t, "next", "--config", configPath, "--debug-config",
		"--fixed-interval", "25", "--dataset", path, "--at", "2024-03-04T12:00:00Z")

	// Then the flag wins and sources are reported
	require.NoError(t, err)
	assert.Contains(t, output, "Configuration Resolution Debug Info:")
	assert.Contains(t, output, "(from config file)")
	assert.Contains(t, output, "(from CLI flag)")
	assert.Contains(t, output, "next poll in 25m")
}
