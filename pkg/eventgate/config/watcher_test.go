package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/eventgate/pkg/eventgate/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eventgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategy: cooperative\n"), 0o600))

	changes := make(chan config.Settings, 4)
	w, err := config.NewWatcher(path, func(s config.Settings) { changes <- s },
		config.WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop() }()

	// Invalid content is ignored.
	require.NoError(t, os.WriteFile(path, []byte("strategy: nonsense\n"), 0o600))
	select {
	case s := <-changes:
		t.Fatalf("unexpected reload with %+v", s)
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte("strategy: diff\nlog_timing: true\n"), 0o600))
	select {
	case s := <-changes:
		assert.Equal(t, config.StrategyDiff, s.Strategy)
		assert.True(t, s.LogTiming)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eventgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategy: direct\n"), 0o600))

	changes := make(chan config.Settings, 1)
	w, err := config.NewWatcher(path, func(s config.Settings) { changes <- s },
		config.WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o600))
	select {
	case <-changes:
		t.Fatal("reload triggered by unrelated file")
	case <-time.After(150 * time.Millisecond):
	}

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop(), "second stop is a no-op")
}

func TestNewWatcherRequiresCallback(t *testing.T) {
	_, err := config.NewWatcher("eventgate.yaml", nil)
	assert.Error(t, err)
}
