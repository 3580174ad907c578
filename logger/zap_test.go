package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))

	log.Warn("backend status query failed", map[string]any{"backend": "routed-messaging", "error": errors.New("timeout")})
	log.Debug("poll", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	require.Equal(t, "routed-messaging", fields["backend"])
	require.Equal(t, "timeout", fields["error"])
}
