// Package autobuy schedules delayed one-shot holder buys after a launch
// succeeds, each guarded by an external-volume safety threshold.
package autobuy

import (
	"context"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/rs/zerolog"

	"github.com/0xkatana/launchkit/pkg/volume"
	"github.com/0xkatana/launchkit/pkg/wallet"
)

// Rule is one scheduled buy. Consumed once per launch; it fires at most once.
type Rule struct {
	WalletID    wallet.WalletID
	BuyLamports uint64
	Delay       time.Duration
	// SafetyThresholdLamports cancels the buy if external volume exceeds it
	// at fire time. Zero disables the check.
	SafetyThresholdLamports uint64
}

// Outcome classifies what happened when a rule fired.
type Outcome string

const (
	// OutcomeBought means the buy executed.
	OutcomeBought Outcome = "bought"
	// OutcomeSkippedFrontRun means external volume exceeded the safety
	// threshold at fire time. A policy decision, not an error; never
	// re-evaluated.
	OutcomeSkippedFrontRun Outcome = "skipped: front-run detected"
	// OutcomeFailed means the buy transaction failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeCancelled means the rule was cancelled before firing.
	OutcomeCancelled Outcome = "cancelled"
)

// Record is the per-rule result ledger entry.
type Record struct {
	WalletID       wallet.WalletID
	Outcome        Outcome
	ExternalVolume uint64
	Err            error
	FiredAt        time.Time
}

// BuyFunc executes a buy for a wallet. Implemented by the launch machine on
// top of the transaction executor.
type BuyFunc func(ctx context.Context, id wallet.WalletID, lamports uint64) error

// Scheduler runs auto-buy rules, one independent timer task per rule. No
// ordering is guaranteed between different wallets' buys.
type Scheduler struct {
	feed *volume.Feed
	buy  BuyFunc
	clk  clock.Clock
	log  zerolog.Logger

	mu      sync.Mutex
	records []Record
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock injects a clock.
func WithClock(clk clock.Clock) Option {
	return func(s *Scheduler) { s.clk = clk }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// NewScheduler builds a Scheduler.
func NewScheduler(feed *volume.Feed, buy BuyFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		feed: feed,
		buy:  buy,
		clk:  clock.New(),
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule starts a timer task per rule. Cancelling ctx cancels rules that
// have not yet passed their fire decision; a rule past that point runs to
// completion.
func (s *Scheduler) Schedule(ctx context.Context, rules []Rule) {
	for _, rule := range rules {
		s.wg.Add(1)
		go func(rule Rule) {
			defer s.wg.Done()
			s.runRule(ctx, rule)
		}(rule)
	}
}

// Wait blocks until every scheduled rule has recorded an outcome.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Records returns a copy of the outcome ledger.
func (s *Scheduler) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Scheduler) runRule(ctx context.Context, rule Rule) {
	timer := s.clk.Timer(rule.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		s.record(Record{WalletID: rule.WalletID, Outcome: OutcomeCancelled, FiredAt: s.clk.Now()})
		return
	case <-timer.C:
	}

	// One-shot decision at fire time; not re-evaluated.
	external := s.feed.ExternalLamports()
	if rule.SafetyThresholdLamports > 0 && external > rule.SafetyThresholdLamports {
		s.log.Info().
			Str("wallet", string(rule.WalletID)).
			Uint64("external", external).
			Uint64("threshold", rule.SafetyThresholdLamports).
			Msg("auto-buy skipped, front-run detected")
		s.record(Record{
			WalletID:       rule.WalletID,
			Outcome:        OutcomeSkippedFrontRun,
			ExternalVolume: external,
			FiredAt:        s.clk.Now(),
		})
		return
	}

	if err := s.buy(ctx, rule.WalletID, rule.BuyLamports); err != nil {
		s.record(Record{
			WalletID:       rule.WalletID,
			Outcome:        OutcomeFailed,
			ExternalVolume: external,
			Err:            err,
			FiredAt:        s.clk.Now(),
		})
		return
	}
	s.record(Record{
		WalletID:       rule.WalletID,
		Outcome:        OutcomeBought,
		ExternalVolume: external,
		FiredAt:        s.clk.Now(),
	})
}

func (s *Scheduler) record(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}
