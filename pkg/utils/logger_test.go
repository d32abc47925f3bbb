package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoggerConfig(t *testing.T) {
	t.Parallel()

	prod := loggerConfig(false)
	require.Equal(t, "json", prod.Encoding)
	require.Equal(t, zapcore.InfoLevel, prod.Level.Level())
	require.False(t, prod.Development)

	dev := loggerConfig(true)
	require.Equal(t, "console", dev.Encoding)
	require.Equal(t, zapcore.DebugLevel, dev.Level.Level())
	require.True(t, dev.Development)
}

func TestNewSugaredLogger(t *testing.T) {
	t.Parallel()

	for _, verbose := range []bool{false, true} {
		sugar, err := NewSugaredLogger(verbose)
		require.NoError(t, err)
		require.NotNil(t, sugar)
		require.Equal(t, verbose, sugar.Desugar().Core().Enabled(zapcore.DebugLevel))
	}
}
