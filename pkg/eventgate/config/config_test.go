package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/eventgate/pkg/eventgate/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew verifies Config creation from maps.
func TestNew(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
	}{
		{"nil map", nil},
		{"empty map", map[string]any{}},
		{"with values", map[string]any{"key": "value"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			assert.NotNil(t, cfg.Raw())
		})
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		key  string
		want string
	}{
		{"key exists", map[string]any{"strategy": "diff"}, "strategy", "diff"},
		{"key missing", map[string]any{}, "strategy", "default"},
		{"empty string", map[string]any{"strategy": ""}, "strategy", ""},
		{"wrong type", map[string]any{"strategy": 3}, "strategy", "default"},
		{"dotted", map[string]any{"nats": map[string]any{"url": "nats://x"}}, "nats.url", "nats://x"},
		{"dotted through scalar", map[string]any{"nats": "flat"}, "nats.url", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, config.New(tt.data).String(tt.key, "default"))
		})
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want time.Duration
	}{
		{"string", "250ms", 250 * time.Millisecond},
		{"bad string", "soon", time.Minute},
		{"int seconds", 3, 3 * time.Second},
		{"int64 seconds", int64(2), 2 * time.Second},
		{"float seconds", 1.5, 1500 * time.Millisecond},
		{"duration", 4 * time.Second, 4 * time.Second},
		{"bool", true, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"timeout": tt.val})
			assert.Equal(t, tt.want, cfg.Duration("timeout", time.Minute))
		})
	}
}

func TestBool(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want bool
	}{
		{"bool", true, true},
		{"string true", "true", true},
		{"string zero", "0", false},
		{"garbage", "maybe", true},
		{"int", 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"enabled": tt.val})
			assert.Equal(t, tt.want, cfg.Bool("enabled", true))
		})
	}
}

func TestInt(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want int
	}{
		{"int", 4, 4},
		{"int64", int64(5), 5},
		{"uint64", uint64(6), 6},
		{"whole float", 7.0, 7},
		{"fractional float", 7.5, -1},
		{"numeric string", "8", 8},
		{"bad string", "eight", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"depth": tt.val})
			assert.Equal(t, tt.want, cfg.Int("depth", -1))
		})
	}
}

func TestStringSlice(t *testing.T) {
	def := []string{"default"}
	tests := []struct {
		name string
		val  any
		want []string
	}{
		{"string slice", []string{"a", "b"}, []string{"a", "b"}},
		{"any slice", []any{"a", "b"}, []string{"a", "b"}},
		{"mixed any slice", []any{"a", 1}, def},
		{"comma string", "a, b,,c", []string{"a", "b", "c"}},
		{"wrong type", 12, def},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"pkgs": tt.val})
			assert.Equal(t, tt.want, cfg.StringSlice("pkgs", def))
		})
	}
}

func TestSub(t *testing.T) {
	cfg := config.New(map[string]any{
		"scan":  map[string]any{"max_depth": 3},
		"inner": config.New(map[string]any{"k": "v"}),
		"flat":  "x",
	})

	assert.Equal(t, 3, cfg.Sub("scan").Int("max_depth", 0))
	assert.Equal(t, "v", cfg.Sub("inner").String("k", ""))
	assert.Empty(t, cfg.Sub("flat").Raw())
	assert.Empty(t, cfg.Sub("missing").Raw())
	assert.True(t, cfg.Has("scan.max_depth"))
	assert.False(t, cfg.Has("scan.capture_depth"))
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "settings.yaml")
		require.NoError(t, os.WriteFile(path, []byte("strategy: diff\nscan:\n  max_depth: 4\n"), 0o600))

		cfg, err := config.FromFile(path)
		require.NoError(t, err)
		assert.Equal(t, "diff", cfg.String("strategy", ""))
		assert.Equal(t, 4, cfg.Int("scan.max_depth", 0))
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "settings.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"log_timing": true}`), 0o600))

		cfg, err := config.FromFile(path)
		require.NoError(t, err)
		assert.True(t, cfg.Bool("log_timing", false))
	})

	t.Run("environment expansion", func(t *testing.T) {
		t.Setenv("EVENTGATE_TEST_NATS", "nats://broker:4222")
		path := filepath.Join(dir, "env.yml")
		require.NoError(t, os.WriteFile(path, []byte("nats:\n  url: ${EVENTGATE_TEST_NATS}\n"), 0o600))

		cfg, err := config.FromFile(path)
		require.NoError(t, err)
		assert.Equal(t, "nats://broker:4222", cfg.String("nats.url", ""))
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(dir, "settings.toml")
		require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o600))

		_, err := config.FromFile(path)
		assert.ErrorContains(t, err, "unsupported config file extension")
	})

	t.Run("invalid json names the format", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"log_timing": `), 0o600))

		_, err := config.FromFile(path)
		assert.ErrorContains(t, err, "parse json")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.FromFile(filepath.Join(dir, "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := config.FromYAML([]byte("a: [unterminated"))
		assert.Error(t, err)
	})
}
