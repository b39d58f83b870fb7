package dbus

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServerOwn_ConnectionFailure(t *testing.T) {
	s := NewServer("org.gpiod", "test", discardLogger())
	s.connect = func() (*godbus.Conn, error) {
		return nil, errors.New("dial unix /run/dbus/system_bus_socket: no such file")
	}

	s.Own()

	select {
	case ev := <-s.Events():
		lost, ok := ev.(NameLost)
		require.True(t, ok, "expected NameLost, got %T", ev)
		assert.Equal(t, LostConnectionFailed, lost.Reason)
		assert.Error(t, lost.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	assert.Equal(t, StateNameLost, s.State())
}

func TestServerAddChip_BeforeConnection(t *testing.T) {
	s := NewServer("org.gpiod", "test", discardLogger())

	err := s.AddChip("gpiochip0")
	assert.ErrorIs(t, err, errNoTree)
}

func TestServerRelease_BeforeConnection(t *testing.T) {
	s := NewServer("org.gpiod", "test", discardLogger())

	// Must be safe no matter how far ownership got.
	s.Release()
	s.RemoveChip("gpiochip0")
}

// closeRecorder wraps a transport and records that Close was called.
type closeRecorder struct {
	io.ReadWriteCloser

	mu     sync.Mutex
	closed bool
}

func (c *closeRecorder) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.ReadWriteCloser.Close()
}

func (c *closeRecorder) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestServerRelease_DuringConnect(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	transport := &closeRecorder{ReadWriteCloser: client}

	dialed := make(chan struct{})
	s := NewServer("org.gpiod", "test", discardLogger())
	s.connect = func() (*godbus.Conn, error) {
		<-dialed
		return godbus.NewConn(transport)
	}

	s.Own()
	s.Release()
	close(dialed)

	// A connection completing after Release must be discarded and
	// closed, never installed.
	require.Eventually(t, transport.isClosed, 2*time.Second, 10*time.Millisecond)
	assert.Nil(t, s.currentTree())

	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected ownership event after release: %#v", ev)
	default:
	}
}

func TestServerLost_OnlyOnce(t *testing.T) {
	s := NewServer("org.gpiod", "test", discardLogger())
	s.transition(StateRequested)

	s.lost(LostConnectionFailed, nil)
	s.lost(LostConnectionClosed, nil)

	ev := <-s.Events()
	lost, ok := ev.(NameLost)
	require.True(t, ok)
	assert.Equal(t, LostConnectionFailed, lost.Reason)

	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected second event: %#v", ev)
	default:
	}
}

func TestServerInitialState(t *testing.T) {
	s := NewServer("org.gpiod", "test", discardLogger())
	assert.Equal(t, StateUnrequested, s.State())
}
