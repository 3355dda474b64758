package autobuy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"

	"github.com/0xkatana/launchkit/pkg/config"
	"github.com/0xkatana/launchkit/pkg/volume"
	"github.com/0xkatana/launchkit/pkg/wallet"
)

// advance lets the rule goroutines register their timers before moving the
// mock clock.
func advance(mock *clock.Mock, d time.Duration) {
	time.Sleep(10 * time.Millisecond)
	mock.Add(d)
}

type buyRecorder struct {
	mu    sync.Mutex
	calls map[wallet.WalletID]uint64
	err   error
}

func newBuyRecorder() *buyRecorder {
	return &buyRecorder{calls: make(map[wallet.WalletID]uint64)}
}

func (b *buyRecorder) buy(ctx context.Context, id wallet.WalletID, lamports uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.calls[id] = lamports
	return nil
}

func (b *buyRecorder) called(id wallet.WalletID) (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.calls[id]
	return v, ok
}

func TestScheduler_BuysAfterDelay(t *testing.T) {
	mock := clock.NewMock()
	feed := volume.NewFeed(volume.WithClock(mock), volume.WithStaleness(time.Hour))
	buyer := newBuyRecorder()
	s := NewScheduler(feed, buyer.buy, WithClock(mock))

	s.Schedule(context.Background(), []Rule{{
		WalletID:    "holder-1",
		BuyLamports: config.SOLToLamports(0.1),
		Delay:       30 * time.Second,
	}})

	advance(mock, 30*time.Second)
	s.Wait()

	if got, ok := buyer.called("holder-1"); !ok || got != config.SOLToLamports(0.1) {
		t.Fatalf("buy = %d, %v; want 100000000", got, ok)
	}
	records := s.Records()
	if len(records) != 1 || records[0].Outcome != OutcomeBought {
		t.Errorf("records = %+v, want one bought", records)
	}
}

func TestScheduler_SkipsWhenFrontRunDetected(t *testing.T) {
	mock := clock.NewMock()
	feed := volume.NewFeed(volume.WithClock(mock), volume.WithStaleness(time.Hour))
	buyer := newBuyRecorder()
	s := NewScheduler(feed, buyer.buy, WithClock(mock))

	// External volume already above the 0.2 SOL safety threshold
	feed.AddGross(config.SOLToLamports(0.35))

	s.Schedule(context.Background(), []Rule{{
		WalletID:                "holder-1",
		BuyLamports:             config.SOLToLamports(0.1),
		Delay:                   10 * time.Second,
		SafetyThresholdLamports: config.SOLToLamports(0.2),
	}})

	advance(mock, 10*time.Second)
	s.Wait()

	if _, ok := buyer.called("holder-1"); ok {
		t.Fatal("buy executed despite front-run detection")
	}
	records := s.Records()
	if len(records) != 1 {
		t.Fatalf("records = %+v, want one", records)
	}
	if records[0].Outcome != OutcomeSkippedFrontRun {
		t.Errorf("outcome = %s, want %s", records[0].Outcome, OutcomeSkippedFrontRun)
	}
	if records[0].ExternalVolume != config.SOLToLamports(0.35) {
		t.Errorf("recorded volume = %d, want 350000000", records[0].ExternalVolume)
	}
}

func TestScheduler_ZeroThresholdIgnoresVolume(t *testing.T) {
	mock := clock.NewMock()
	feed := volume.NewFeed(volume.WithClock(mock), volume.WithStaleness(time.Hour))
	buyer := newBuyRecorder()
	s := NewScheduler(feed, buyer.buy, WithClock(mock))

	feed.AddGross(config.SOLToLamports(5))

	s.Schedule(context.Background(), []Rule{{
		WalletID:    "holder-1",
		BuyLamports: config.SOLToLamports(0.1),
		Delay:       time.Second,
	}})

	advance(mock, time.Second)
	s.Wait()

	if _, ok := buyer.called("holder-1"); !ok {
		t.Fatal("buy should execute when the safety check is disabled")
	}
}

func TestScheduler_RecordsBuyFailure(t *testing.T) {
	mock := clock.NewMock()
	feed := volume.NewFeed(volume.WithClock(mock))
	buyer := newBuyRecorder()
	buyer.err = errors.New("blockhash expired")
	s := NewScheduler(feed, buyer.buy, WithClock(mock))

	s.Schedule(context.Background(), []Rule{{WalletID: "holder-1", BuyLamports: 1, Delay: time.Second}})
	advance(mock, time.Second)
	s.Wait()

	records := s.Records()
	if len(records) != 1 || records[0].Outcome != OutcomeFailed {
		t.Fatalf("records = %+v, want one failed", records)
	}
	if records[0].Err == nil {
		t.Error("failed record should carry the error")
	}
}

func TestScheduler_CancelBeforeFire(t *testing.T) {
	mock := clock.NewMock()
	feed := volume.NewFeed(volume.WithClock(mock))
	buyer := newBuyRecorder()
	s := NewScheduler(feed, buyer.buy, WithClock(mock))

	ctx, cancel := context.WithCancel(context.Background())
	s.Schedule(ctx, []Rule{{WalletID: "holder-1", BuyLamports: 1, Delay: time.Hour}})

	time.Sleep(10 * time.Millisecond)
	cancel()
	s.Wait()

	if _, ok := buyer.called("holder-1"); ok {
		t.Fatal("cancelled rule should not buy")
	}
	records := s.Records()
	if len(records) != 1 || records[0].Outcome != OutcomeCancelled {
		t.Errorf("records = %+v, want one cancelled", records)
	}
}

func TestScheduler_IndependentRules(t *testing.T) {
	mock := clock.NewMock()
	feed := volume.NewFeed(volume.WithClock(mock), volume.WithStaleness(time.Hour))
	buyer := newBuyRecorder()
	s := NewScheduler(feed, buyer.buy, WithClock(mock))

	s.Schedule(context.Background(), []Rule{
		{WalletID: "holder-1", BuyLamports: 1, Delay: 10 * time.Second},
		{WalletID: "holder-2", BuyLamports: 2, Delay: 20 * time.Second},
	})

	advance(mock, 10*time.Second)
	advance(mock, 10*time.Second)
	s.Wait()

	if _, ok := buyer.called("holder-1"); !ok {
		t.Error("holder-1 did not buy")
	}
	if _, ok := buyer.called("holder-2"); !ok {
		t.Error("holder-2 did not buy")
	}
	if len(s.Records()) != 2 {
		t.Errorf("records = %+v, want two", s.Records())
	}
}
