package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/pyramid-ing/tmgkfl/internal/config"
)

// syncBuffer adapts a bytes.Buffer to zapcore.WriteSyncer.
type syncBuffer struct {
	bytes.Buffer
}

func (b *syncBuffer) Sync() error { return nil }

func TestInitializeAndGetLogger(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &syncBuffer{}
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "tmgkfl-test",
	}, zapcore.AddSync(buf))

	logger := GetLogger()
	require.NotNil(t, logger)

	logger.Info("hello from test")
	assert.Contains(t, buf.String(), "hello from test")
	assert.Contains(t, buf.String(), "tmgkfl-test")
}

func TestInitializeOnlyOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &syncBuffer{}
	second := &syncBuffer{}

	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "first"}, zapcore.AddSync(first))
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "second"}, zapcore.AddSync(second))

	GetLogger().Info("routed")
	assert.Contains(t, first.String(), "routed")
	assert.Empty(t, second.String())
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	// No Initialize call: must still return a usable logger.
	logger := GetLogger()
	require.NotNil(t, logger)
	logger.Debug("fallback logger is usable")
}
