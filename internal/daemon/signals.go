package daemon

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalBridge converts process signals into loop events.
//
// The two sources are deliberately configured differently: termination
// signals (SIGTERM, SIGINT) are one-shot per registration and disarmed
// by the loop after the first delivery; SIGHUP stays registered for
// the life of the process. Its handler changes nothing; it is
// reserved for a future config reload, not a dead code path.
type SignalBridge struct {
	term   chan os.Signal
	reload chan os.Signal

	disarm sync.Once
	close  sync.Once
}

// NewSignalBridge registers the signal handlers.
func NewSignalBridge() *SignalBridge {
	b := &SignalBridge{
		term:   make(chan os.Signal, 2),
		reload: make(chan os.Signal, 4),
	}
	signal.Notify(b.term, syscall.SIGTERM, syscall.SIGINT)
	signal.Notify(b.reload, syscall.SIGHUP)
	return b
}

// Terminated returns the channel termination signals arrive on.
func (b *SignalBridge) Terminated() <-chan os.Signal {
	return b.term
}

// Reload returns the channel reload signals arrive on.
func (b *SignalBridge) Reload() <-chan os.Signal {
	return b.reload
}

// Disarm deregisters the termination handler. Called by the loop after
// the first termination signal so it fires at most once per
// registration.
func (b *SignalBridge) Disarm() {
	b.disarm.Do(func() {
		signal.Stop(b.term)
	})
}

// Close deregisters all handlers.
func (b *SignalBridge) Close() {
	b.close.Do(func() {
		b.Disarm()
		signal.Stop(b.reload)
	})
}
