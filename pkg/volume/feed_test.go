package volume

import (
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
)

func TestFeed_Netting(t *testing.T) {
	mock := clock.NewMock()
	feed := NewFeed(WithClock(mock))

	feed.AddGross(500_000_000)
	feed.RecordOwn(200_000_000)

	s, fresh := feed.Current()
	if !fresh {
		t.Fatal("sample should be fresh")
	}
	if s.ExternalLamports != 300_000_000 {
		t.Errorf("ExternalLamports = %d, want 300000000", s.ExternalLamports)
	}
}

func TestFeed_NeverNegative(t *testing.T) {
	mock := clock.NewMock()
	feed := NewFeed(WithClock(mock))

	// Own buys observed before the gross inflow that contains them
	feed.RecordOwn(400_000_000)
	feed.AddGross(100_000_000)

	if got := feed.ExternalLamports(); got != 0 {
		t.Errorf("ExternalLamports = %d, want 0", got)
	}
}

func TestFeed_EmptyReadsAsZero(t *testing.T) {
	feed := NewFeed(WithClock(clock.NewMock()))

	s, fresh := feed.Current()
	if fresh {
		t.Error("empty feed should not be fresh")
	}
	if s.ExternalLamports != 0 {
		t.Errorf("ExternalLamports = %d, want 0", s.ExternalLamports)
	}
}

func TestFeed_StaleReadsAsZero(t *testing.T) {
	mock := clock.NewMock()
	feed := NewFeed(WithClock(mock), WithStaleness(10*time.Second))

	feed.AddGross(1_000_000_000)
	mock.Add(9 * time.Second)
	if got := feed.ExternalLamports(); got != 1_000_000_000 {
		t.Errorf("fresh ExternalLamports = %d, want 1000000000", got)
	}

	mock.Add(2 * time.Second)
	s, fresh := feed.Current()
	if fresh {
		t.Error("sample past the staleness window should not be fresh")
	}
	if s.ExternalLamports != 0 {
		t.Errorf("stale ExternalLamports = %d, want 0", s.ExternalLamports)
	}

	// A new observation revives the feed
	feed.AddGross(50_000_000)
	if got := feed.ExternalLamports(); got != 1_050_000_000 {
		t.Errorf("revived ExternalLamports = %d, want 1050000000", got)
	}
}
