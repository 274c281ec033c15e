package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitAndLevelString(t *testing.T) {
	defer Init("info")
	Init("debug")
	require.Equal(t, "debug", LevelString())
	Init("WARN")
	require.Equal(t, "warn", LevelString())
	Init("Error")
	require.Equal(t, "error", LevelString())
	Init("nonsense")
	require.Equal(t, "info", LevelString(), "unknown input falls back to info")
}

func TestLevelFilteringAndWith(t *testing.T) {
	core, logs := observer.New(atom)
	restore := replace(zap.New(core))
	defer restore()
	defer Init("info")

	Init("warn")
	Debugf("debug-msg")
	Infof("info-msg")
	Warnf("warn-msg")
	Errorf("error-%s", "msg")

	msgs := []string{}
	for _, e := range logs.TakeAll() {
		msgs = append(msgs, e.Message)
	}
	require.Equal(t, []string{"warn-msg", "error-msg"}, msgs)

	Init("info")
	With("kind", "message").Infof("patched %s", "m1")
	entries := logs.TakeAll()
	require.Len(t, entries, 1)
	require.Equal(t, "patched m1", entries[0].Message)
	require.Equal(t, "message", entries[0].ContextMap()["kind"])
}
