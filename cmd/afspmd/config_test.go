package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, cfg config) string {
	t.Helper()
	buf, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func sampleConfig() config {
	return config{
		"heartbeat-a": componentConfig{Command: "afspmd-helper", Args: []string{"heartbeat-a"}, BeatPeriodMillis: 10},
		"scheduler-b": componentConfig{Command: "afspmd-helper", Args: []string{"scheduler-b"}, BeatPeriodMillis: 20},
	}
}

func TestLoadConfigRoundTrip(t *testing.T) {
	path := writeConfig(t, sampleConfig())
	got, err := loadConfig(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "afspmd-helper", got["heartbeat-a"].Command)
}

func TestFilterIncludeExcludeMutuallyExclusive(t *testing.T) {
	_, err := sampleConfig().filter([]string{"heartbeat-a"}, []string{"scheduler-b"})
	require.Error(t, err)
}

func TestFilterIncludeUnknownComponentErrors(t *testing.T) {
	_, err := sampleConfig().filter([]string{"does-not-exist"}, nil)
	require.Error(t, err)
}

func TestFilterInclude(t *testing.T) {
	out, err := sampleConfig().filter([]string{"heartbeat-a"}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	_, ok := out["heartbeat-a"]
	require.True(t, ok)
}

func TestFilterExclude(t *testing.T) {
	out, err := sampleConfig().filter(nil, []string{"heartbeat-a"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	_, ok := out["scheduler-b"]
	require.True(t, ok)
}

func TestFilterNoneSelectsAll(t *testing.T) {
	out, err := sampleConfig().filter(nil, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestDescriptorsAreSortedByName(t *testing.T) {
	descriptors := sampleConfig().descriptors()
	require.Len(t, descriptors, 2)
	require.Equal(t, "heartbeat-a", descriptors[0].Name)
	require.Equal(t, "scheduler-b", descriptors[1].Name)
}
