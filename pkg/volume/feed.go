// Package volume tracks trading volume attributable to wallets outside the
// launch's own set.
//
// External volume is defined here as gross buy-side SOL inflow to the
// token's bonding curve, minus inflow from launch-owned wallets. The
// ingester records gross inflow; launch components report their own
// confirmed buys so they can be netted out.
package volume

import (
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
)

// DefaultStaleness bounds how old a sample may be before readers must treat
// it as "no external volume" rather than trust it.
const DefaultStaleness = 30 * time.Second

// Sample is a point-in-time reading of the running external-volume total.
type Sample struct {
	ExternalLamports uint64
	ObservedAt       time.Time
}

// Feed is the shared, read-mostly external-volume total. The ingester is
// the single writer; launch tasks only read.
type Feed struct {
	mu        sync.RWMutex
	gross     uint64
	own       uint64
	observed  time.Time
	staleness time.Duration
	clk       clock.Clock
}

// Option configures a Feed.
type Option func(*Feed)

// WithClock injects a clock for staleness checks.
func WithClock(clk clock.Clock) Option {
	return func(f *Feed) { f.clk = clk }
}

// WithStaleness overrides the staleness window.
func WithStaleness(d time.Duration) Option {
	return func(f *Feed) { f.staleness = d }
}

// NewFeed creates an empty feed.
func NewFeed(opts ...Option) *Feed {
	f := &Feed{
		staleness: DefaultStaleness,
		clk:       clock.New(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AddGross records observed buy-side inflow to the curve.
func (f *Feed) AddGross(lamports uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gross += lamports
	f.observed = f.clk.Now()
}

// RecordOwn nets out a confirmed buy made by a launch-owned wallet.
func (f *Feed) RecordOwn(lamports uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.own += lamports
	f.observed = f.clk.Now()
}

// Current returns the latest sample and whether it is fresh. A stale sample
// is returned with ExternalLamports zeroed: old data must read as "no
// external volume", never as a trigger.
func (f *Feed) Current() (Sample, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s := Sample{ObservedAt: f.observed}
	if f.observed.IsZero() || f.clk.Now().Sub(f.observed) > f.staleness {
		return s, false
	}
	if f.gross > f.own {
		s.ExternalLamports = f.gross - f.own
	}
	return s, true
}

// ExternalLamports returns the current external volume, zero when stale.
func (f *Feed) ExternalLamports() uint64 {
	s, _ := f.Current()
	return s.ExternalLamports
}
