package tbf

import (
	"sync"
	"time"
)

// Watchdog schedules a single deferred wakeup, mirroring the kernel's
// qdisc_watchdog: TBF arms it when a dequeue finds insufficient tokens and
// must wait for a future instant, and disarms it on Reset/Stop (§4.3).
//
// A Watchdog is safe for concurrent Schedule/Cancel/Stop calls, but the
// fired callback itself runs on its own goroutine with no lock held; the
// callback is responsible for any locking it needs.
type Watchdog struct {
	mu    sync.Mutex
	timer *time.Timer
	wg    sync.WaitGroup
}

// NewWatchdog constructs an idle Watchdog.
func NewWatchdog() *Watchdog {
	return &Watchdog{}
}

// Schedule arms (or re-arms) the watchdog to invoke fn after d. Any
// previously pending callback is cancelled first; if it had already fired,
// its goroutine is allowed to run to completion independently.
func (w *Watchdog) Schedule(d time.Duration, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		if w.timer.Stop() {
			w.wg.Done()
		}
	}
	w.wg.Add(1)
	w.timer = time.AfterFunc(d, func() {
		defer w.wg.Done()
		fn()
	})
}

// Cancel disarms any pending callback. It is a no-op if nothing is
// scheduled or the callback has already fired.
func (w *Watchdog) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer == nil {
		return
	}
	if w.timer.Stop() {
		w.wg.Done()
	}
	w.timer = nil
}

// Stop cancels any pending callback and blocks until no callback goroutine
// is in flight. Used during teardown (TBF.Close; Reset only Cancels) to guarantee a fired
// callback can never race a destroyed TBF.
func (w *Watchdog) Stop() {
	w.Cancel()
	w.wg.Wait()
}
