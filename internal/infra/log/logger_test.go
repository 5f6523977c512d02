package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for input, want := range cases {
		assert.Equal(t, want, parseLevel(input), input)
	}
}

func TestNewConfigTagsService(t *testing.T) {
	cfg := newConfig("info", "")
	assert.Equal(t, "json", cfg.Encoding)
	assert.Equal(t, "ts", cfg.EncoderConfig.TimeKey)
	assert.Equal(t, map[string]interface{}{"service": ServiceName}, cfg.InitialFields)

	cfg = newConfig("info", " Console ")
	assert.Equal(t, "console", cfg.Encoding)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "json")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.Equal(t, ServiceName+".scheduler", logger.Named("scheduler").Check(zapcore.InfoLevel, "x").LoggerName)

	logger, err = NewLogger("error", "console")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.WarnLevel))
}
