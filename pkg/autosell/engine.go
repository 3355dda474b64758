// Package autosell watches external volume per wallet and dumps the wallet's
// position once a threshold is crossed and survives a confirmation delay.
package autosell

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/rs/zerolog"

	"github.com/0xkatana/launchkit/pkg/volume"
	"github.com/0xkatana/launchkit/pkg/wallet"
)

// State is the per-wallet automaton state.
type State string

const (
	// StateWatching means the monitor is sampling external volume.
	StateWatching State = "WATCHING"
	// StateTriggered means the threshold was crossed; the trigger is held
	// through a confirmation delay before any sell is sent.
	StateTriggered State = "TRIGGERED"
	// StateSelling means the delay re-check passed and the sell is in flight.
	StateSelling State = "SELLING"
	// StateSold is terminal until the monitor is re-armed.
	StateSold State = "SOLD"
	// StateFailed records a sell that could not be executed.
	StateFailed State = "FAILED"
	// StateStopped means the monitor was cancelled.
	StateStopped State = "STOPPED"
)

// SellFunc dumps the wallet's full token position. Implemented by the launch
// machine on top of the transaction executor.
type SellFunc func(ctx context.Context, id wallet.WalletID) error

// Config is one wallet's auto-sell arming parameters.
type Config struct {
	WalletID wallet.WalletID
	// ThresholdLamports is the external volume that triggers the sell.
	// Zero disables the monitor: it stays in WATCHING forever.
	ThresholdLamports uint64
	// ConfirmationDelay is how long a trigger must keep holding before the
	// sell is sent. Volume dropping back below the threshold during the
	// delay returns the monitor to WATCHING.
	ConfirmationDelay time.Duration
	// PollInterval is the volume sampling cadence.
	PollInterval time.Duration
}

// Monitor is one wallet's running automaton.
type monitor struct {
	cfg    Config
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine runs at most one monitor per wallet. A wallet that reached SOLD or
// FAILED stays there until explicitly re-armed with Arm.
type Engine struct {
	feed *volume.Feed
	sell SellFunc
	clk  clock.Clock
	log  zerolog.Logger

	mu       sync.Mutex
	monitors map[wallet.WalletID]*monitor
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects a clock.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clk = clk }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine builds an Engine.
func NewEngine(feed *volume.Feed, sell SellFunc, opts ...Option) *Engine {
	e := &Engine{
		feed:     feed,
		sell:     sell,
		clk:      clock.New(),
		log:      zerolog.Nop(),
		monitors: make(map[wallet.WalletID]*monitor),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Arm starts (or restarts) the monitor for one wallet. A monitor already
// running for the wallet is an error; a finished one is replaced.
func (e *Engine) Arm(ctx context.Context, cfg Config) error {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}

	e.mu.Lock()
	if m, ok := e.monitors[cfg.WalletID]; ok {
		select {
		case <-m.done:
			// Finished; re-arming replaces it.
		default:
			e.mu.Unlock()
			return fmt.Errorf("auto-sell already armed for wallet %s", cfg.WalletID)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m := &monitor{
		cfg:    cfg,
		state:  StateWatching,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.monitors[cfg.WalletID] = m
	e.mu.Unlock()

	go e.run(runCtx, m)
	return nil
}

// Disarm stops the monitor for one wallet, if any.
func (e *Engine) Disarm(id wallet.WalletID) {
	e.mu.Lock()
	m, ok := e.monitors[id]
	e.mu.Unlock()
	if ok {
		m.cancel()
		<-m.done
	}
}

// State reports the automaton state for one wallet.
func (e *Engine) State(id wallet.WalletID) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.monitors[id]
	if !ok {
		return "", false
	}
	return m.state, true
}

// Wait blocks until every monitor has finished.
func (e *Engine) Wait() {
	e.mu.Lock()
	monitors := make([]*monitor, 0, len(e.monitors))
	for _, m := range e.monitors {
		monitors = append(monitors, m)
	}
	e.mu.Unlock()
	for _, m := range monitors {
		<-m.done
	}
}

func (e *Engine) setState(m *monitor, s State) {
	e.mu.Lock()
	m.state = s
	e.mu.Unlock()
	e.log.Debug().
		Str("wallet", string(m.cfg.WalletID)).
		Str("state", string(s)).
		Msg("auto-sell state change")
}

func (e *Engine) run(ctx context.Context, m *monitor) {
	defer close(m.done)
	defer m.cancel()

	// Threshold zero means the monitor is a no-op watcher.
	if m.cfg.ThresholdLamports == 0 {
		<-ctx.Done()
		e.setState(m, StateStopped)
		return
	}

	ticker := e.clk.Ticker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.setState(m, StateStopped)
			return
		case <-ticker.C:
		}

		// Stale samples read as zero external volume and never trigger.
		if e.feed.ExternalLamports() < m.cfg.ThresholdLamports {
			continue
		}

		e.setState(m, StateTriggered)
		if !e.holdTrigger(ctx, m) {
			if ctx.Err() != nil {
				e.setState(m, StateStopped)
				return
			}
			// Transient spike; back to watching.
			e.setState(m, StateWatching)
			continue
		}

		e.setState(m, StateSelling)
		if err := e.sell(ctx, m.cfg.WalletID); err != nil {
			e.log.Error().Err(err).
				Str("wallet", string(m.cfg.WalletID)).
				Msg("auto-sell execution failed")
			e.setState(m, StateFailed)
			return
		}
		e.setState(m, StateSold)
		return
	}
}

// holdTrigger waits out the confirmation delay, re-sampling volume. It
// reports whether the trigger condition still held at the end of the delay.
func (e *Engine) holdTrigger(ctx context.Context, m *monitor) bool {
	timer := e.clk.Timer(m.cfg.ConfirmationDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	return e.feed.ExternalLamports() >= m.cfg.ThresholdLamports
}
