package common

import (
	"errors"
	"log"
	"sync"
	"time"
)

// ErrScanTimeout explains a cancellation raised by a Watchdog.
var ErrScanTimeout = errors.New("geoio: no progress within scan timeout")

// Watchdog monitors activity and closes a channel if no activity is recorded within the timeout.
type Watchdog struct {
	timeout time.Duration
	timer   *time.Timer
	doneCh  chan struct{}
	once    sync.Once
	mu      sync.Mutex
	running bool
}

// NewWatchdog creates a new Watchdog.
// If timeout is <= 0, the watchdog is inert and never times out.
func NewWatchdog(timeout time.Duration) *Watchdog {
	return &Watchdog{
		timeout: timeout,
		doneCh:  make(chan struct{}),
	}
}

// Start begins the monitoring. It returns a channel that will be closed on timeout.
func (w *Watchdog) Start() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return w.doneCh
	}
	w.running = true

	if w.timeout <= 0 {
		return w.doneCh
	}

	w.timer = time.AfterFunc(w.timeout, w.close)
	return w.doneCh
}

// Kick resets the timeout.
func (w *Watchdog) Kick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running || w.timer == nil || w.Expired() {
		return
	}
	w.timer.Reset(w.timeout)
}

// Stop stops the watchdog preventing the timeout from firing.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
}

// Done returns the channel closed on timeout.
func (w *Watchdog) Done() <-chan struct{} {
	return w.doneCh
}

// Expired reports whether the timeout fired.
func (w *Watchdog) Expired() bool {
	select {
	case <-w.doneCh:
		return true
	default:
		return false
	}
}

func (w *Watchdog) close() {
	w.once.Do(func() {
		log.Printf("[WARN] watchdog timeout (%v) triggered", w.timeout)
		close(w.doneCh)
	})
}

// WatchdogProgress cancels when next cancels or when ProgressTo has not
// been called for timeout. The watchdog starts immediately; call Stop
// when the call finishes.
type WatchdogProgress struct {
	next Progress
	dog  *Watchdog
}

// NewWatchdogProgress starts a watchdog around next. A timeout <= 0
// disables the watchdog.
func NewWatchdogProgress(timeout time.Duration, next Progress) *WatchdogProgress {
	if next == nil {
		next = NoProgress
	}
	p := &WatchdogProgress{next: next, dog: NewWatchdog(timeout)}
	p.dog.Start()
	return p
}

func (p *WatchdogProgress) IsCancelled() bool {
	return p.dog.Expired() || p.next.IsCancelled()
}

func (p *WatchdogProgress) ProgressTo(fraction float64) {
	p.dog.Kick()
	p.next.ProgressTo(fraction)
}

// Cause returns ErrScanTimeout after a timeout, otherwise next's cause.
func (p *WatchdogProgress) Cause() error {
	if p.dog.Expired() {
		return ErrScanTimeout
	}
	return CancelCause(p.next)
}

// Stop disarms the watchdog.
func (p *WatchdogProgress) Stop() { p.dog.Stop() }
