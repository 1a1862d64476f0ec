package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("info"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestBuild(t *testing.T) {
	l, err := Build("warn", "json", "stderr")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestZapAdapter_FieldsAndErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core)).WithFields(map[string]interface{}{"component": "session"})

	log.WithError(errors.New("boom")).Error("prediction failed", map[string]interface{}{
		"attempt": uint64(3),
		"cause":   errors.New("dial tcp"),
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "session", ctx["component"])
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, "dial tcp", ctx["cause"])
	assert.Equal(t, uint64(3), ctx["attempt"])
}

func TestNoOpLogger(t *testing.T) {
	log := NewNoOpLogger().With(map[string]interface{}{"a": 1})
	assert.NotPanics(t, func() {
		log.Info("ignored", nil)
	})
}
