package uevent

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMonitorClose_StopsDelivery(t *testing.T) {
	m := NewMonitor("gpio", discardLogger())
	if err := m.Start(); err != nil {
		t.Skipf("cannot open uevent socket: %v", err)
	}

	require.NoError(t, m.Close())

	// Unrelated uevents may still be in flight; drain until the reader
	// closes the channel.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-m.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel still open after Close")
		}
	}
}

func TestMonitorClose_BeforeStart(t *testing.T) {
	m := NewMonitor("gpio", discardLogger())
	require.NoError(t, m.Close())

	_, ok := <-m.Events()
	assert.False(t, ok, "events channel must be closed")

	assert.Error(t, m.Start())
	require.NoError(t, m.Close())
}
