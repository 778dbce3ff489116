package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/jask/navi/internal/config"
)

func TestNewHonoursLevel(t *testing.T) {
	t.Parallel()
	logger, err := New(config.LogConfig{Level: "warn"})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	dev, err := New(config.LogConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	require.True(t, dev.Core().Enabled(zapcore.DebugLevel))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()
	_, err := New(config.LogConfig{Level: "loud"})
	require.ErrorContains(t, err, "log.level")
}
