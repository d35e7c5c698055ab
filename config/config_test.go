package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, uint64(1_000_000), cfg.MaxOperations)
	assert.Equal(t, 100, cfg.MaxStackDepth)
	assert.Equal(t, 10*1024*1024, cfg.MaxStringLength)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 30*time.Second, cfg.AsyncTimeout)
	assert.True(t, cfg.DisableFileIO)
	assert.True(t, cfg.DisableEval)
	assert.True(t, cfg.DisableModules)
	assert.NoError(t, cfg.Validate())
}

func TestEffectiveAsyncTimeout(t *testing.T) {
	assert.Equal(t, DefaultAsyncTimeout, Engine{}.EffectiveAsyncTimeout())
	assert.Equal(t, time.Second, Engine{AsyncTimeout: time.Second}.EffectiveAsyncTimeout())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Engine)
		field   string
		wantErr bool
	}{
		{"defaults", func(*Engine) {}, "", false},
		{"negative stack", func(c *Engine) { c.MaxStackDepth = -1 }, "MaxStackDepth", true},
		{"huge stack", func(c *Engine) { c.MaxStackDepth = 1_000_000 }, "MaxStackDepth", true},
		{"negative timeout", func(c *Engine) { c.Timeout = -time.Second }, "Timeout", true},
		{"modules without root", func(c *Engine) { c.DisableModules = false }, "ModuleRoot", true},
		{"missing module root", func(c *Engine) {
			c.DisableModules = false
			c.ModuleRoot = "/definitely/not/here"
		}, "ModuleRoot", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ce *domainerrors.ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestValidate_ModuleRootDir(t *testing.T) {
	cfg := Defaults()
	cfg.DisableModules = false
	cfg.ModuleRoot = t.TempDir()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	content := "max_stack_depth: 50\ntimeout: 2s\ndisable_eval: false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("SCRIPTBRIDGE_ASYNC_TIMEOUT", "10s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.MaxStackDepth)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.False(t, cfg.DisableEval)
	assert.Equal(t, 10*time.Second, cfg.AsyncTimeout)
	assert.Equal(t, DefaultMaxStringLength, cfg.MaxStringLength, "unset keys keep defaults")
	assert.True(t, cfg.DisableModules)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var ce *domainerrors.ConfigError
	require.True(t, errors.As(err, &ce))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_stack_depth: -5\n"), 0o600))
	_, err = Load(path)
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "MaxStackDepth", ce.Field)
}
