package main

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ========================================
// Automation engine
// One Automator represents the single logical device-interaction channel.
// ========================================

// Automator serializes every device-surface operation (snapshot, resolve,
// gesture, wait poll step) behind one mutex. HTTP handlers run concurrently
// and queue on that lock; there is no admission control beyond it.
type Automator struct {
	driver  DeviceDriver
	journal *ActionJournal

	// deviceMu guards every live-surface touch. Wait holds it per poll
	// iteration only, never across the sleep.
	deviceMu sync.Mutex

	pollInterval time.Duration
	dumpRetries  int

	// pollLogLimiter keeps long waits from flooding the debug log with one
	// line per miss.
	pollLogLimiter *rate.Limiter
}

// NewAutomator wires the engine around a device driver. journal may be nil.
func NewAutomator(driver DeviceDriver, journal *ActionJournal) *Automator {
	return &Automator{
		driver:         driver,
		journal:        journal,
		pollInterval:   500 * time.Millisecond,
		dumpRetries:    3,
		pollLogLimiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// Journal exposes the action journal for the HTTP layer (may be nil).
func (a *Automator) Journal() *ActionJournal {
	return a.journal
}

// lock acquires exclusive access to the device surface.
func (a *Automator) lock() func() {
	a.deviceMu.Lock()
	return a.deviceMu.Unlock
}
