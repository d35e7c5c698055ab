package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_DefaultAndReplace(t *testing.T) {
	require.NotNil(t, Logger())

	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Logger().Info("hello")
	assert.Equal(t, 1, logs.FilterMessage("hello").Len())

	explicit := zap.NewNop()
	assert.Same(t, explicit, Or(explicit))
	assert.Same(t, Logger(), Or(nil))
}

func TestConsolePrinter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := NewConsolePrinter(zap.New(core), 7)

	p.Log("info line")
	p.Warn("warn line")
	p.Error("error line")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "console", entries[0].LoggerName)
	assert.Equal(t, uint64(7), entries[0].ContextMap()["engine"])
}
