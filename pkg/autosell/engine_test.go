package autosell

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

// advance lets monitor goroutines register their timers and tickers before
// moving the mock clock.
func advance(mock *clock.Mock, d time.Duration) {
	time.Sleep(10 * time.Millisecond)
	mock.Add(d)
}

func waitForState(t *testing.T, e *Engine, id wallet.WalletID, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := e.State(id); ok && got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, _ := e.State(id)
	t.Fatalf("state = %s, want %s", got, want)
}

type sellRecorder struct {
	mu    sync.Mutex
	calls []wallet.WalletID
	err   error
}

func (s *sellRecorder) sell(ctx context.Context, id wallet.WalletID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, id)
	return nil
}

func (s *sellRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestEngine_SellsWhenThresholdHolds(t *testing.T) {
	mock := clock.NewMock()
	feed := volume.NewFeed(volume.WithClock(mock), volume.WithStaleness(time.Hour))
	seller := &sellRecorder{}
	e := NewEngine(feed, seller.sell, WithClock(mock))

	err := e.Arm(context.Background(), Config{
		WalletID:          "holder-1",
		ThresholdLamports: config.SOLToLamports(1.0),
		ConfirmationDelay: 5 * time.Second,
		PollInterval:      time.Second,
	})
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}

	feed.AddGross(config.SOLToLamports(1.5))
	advance(mock, time.Second)
	waitForState(t, e, "holder-1", StateTriggered)

	advance(mock, 5*time.Second)
	waitForState(t, e, "holder-1", StateSold)

	if seller.count() != 1 {
		t.Errorf("sell count = %d, want 1", seller.count())
	}
}

func TestEngine_TransientSpikeReturnsToWatching(t *testing.T) {
	mock := clock.NewMock()
	feed := volume.NewFeed(volume.WithClock(mock), volume.WithStaleness(time.Hour))
	seller := &sellRecorder{}
	e := NewEngine(feed, seller.sell, WithClock(mock))

	if err := e.Arm(context.Background(), Config{
		WalletID:          "holder-1",
		ThresholdLamports: config.SOLToLamports(1.0),
		ConfirmationDelay: 5 * time.Second,
		PollInterval:      time.Second,
	}); err != nil {
		t.Fatalf("Arm: %v", err)
	}

	feed.AddGross(config.SOLToLamports(1.2))
	advance(mock, time.Second)
	waitForState(t, e, "holder-1", StateTriggered)

	// The spike turns out to be the launch's own flow; netting it out drops
	// external volume below the threshold before the delay expires.
	feed.RecordOwn(config.SOLToLamports(0.8))
	advance(mock, 5*time.Second)
	waitForState(t, e, "holder-1", StateWatching)

	if seller.count() != 0 {
		t.Errorf("sell count = %d, want 0", seller.count())
	}
}

func TestEngine_ZeroThresholdNeverTriggers(t *testing.T) {
	mock := clock.NewMock()
	feed := volume.NewFeed(volume.WithClock(mock), volume.WithStaleness(time.Hour))
	seller := &sellRecorder{}
	e := NewEngine(feed, seller.sell, WithClock(mock))

	if err := e.Arm(context.Background(), Config{WalletID: "holder-1"}); err != nil {
		t.Fatalf("Arm: %v", err)
	}

	feed.AddGross(config.SOLToLamports(100))
	time.Sleep(20 * time.Millisecond)

	if got, _ := e.State("holder-1"); got != StateWatching {
		t.Errorf("state = %s, want WATCHING", got)
	}
	if seller.count() != 0 {
		t.Errorf("sell count = %d, want 0", seller.count())
	}

	e.Disarm("holder-1")
	waitForState(t, e, "holder-1", StateStopped)
}

func TestEngine_DoubleArm(t *testing.T) {
	mock := clock.NewMock()
	feed := volume.NewFeed(volume.WithClock(mock))
	e := NewEngine(feed, (&sellRecorder{}).sell, WithClock(mock))

	cfg := Config{WalletID: "holder-1", ThresholdLamports: 1, ConfirmationDelay: time.Second, PollInterval: time.Second}
	if err := e.Arm(context.Background(), cfg); err != nil {
		t.Fatalf("first Arm: %v", err)
	}
	if err := e.Arm(context.Background(), cfg); err == nil {
		t.Fatal("second Arm on a running monitor should fail")
	}

	// A finished monitor can be re-armed
	e.Disarm("holder-1")
	if err := e.Arm(context.Background(), cfg); err != nil {
		t.Fatalf("re-Arm after disarm: %v", err)
	}
	e.Disarm("holder-1")
}

func TestEngine_SellFailure(t *testing.T) {
	mock := clock.NewMock()
	feed := volume.NewFeed(volume.WithClock(mock), volume.WithStaleness(time.Hour))
	seller := &sellRecorder{err: errors.New("no route")}
	e := NewEngine(feed, seller.sell, WithClock(mock))

	if err := e.Arm(context.Background(), Config{
		WalletID:          "holder-1",
		ThresholdLamports: 1,
		ConfirmationDelay: time.Second,
		PollInterval:      time.Second,
	}); err != nil {
		t.Fatalf("Arm: %v", err)
	}

	feed.AddGross(config.SOLToLamports(1))
	advance(mock, time.Second)
	waitForState(t, e, "holder-1", StateTriggered)
	advance(mock, time.Second)
	waitForState(t, e, "holder-1", StateFailed)
}

func TestEngine_DisarmStops(t *testing.T) {
	mock := clock.NewMock()
	feed := volume.NewFeed(volume.WithClock(mock))
	e := NewEngine(feed, (&sellRecorder{}).sell, WithClock(mock))

	if err := e.Arm(context.Background(), Config{
		WalletID:          "holder-1",
		ThresholdLamports: 1,
		ConfirmationDelay: time.Second,
		PollInterval:      time.Second,
	}); err != nil {
		t.Fatalf("Arm: %v", err)
	}

	e.Disarm("holder-1")
	waitForState(t, e, "holder-1", StateStopped)
	e.Wait()
}
