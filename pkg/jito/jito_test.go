package jito

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/0xkatana/launchkit/pkg/types"
)

func TestBundleOutcome_String(t *testing.T) {
	if got := BundleLanded.String(); got != "LANDED" {
		t.Errorf("BundleLanded = %q", got)
	}
	if got := BundleRejected.String(); got != "REJECTED" {
		t.Errorf("BundleRejected = %q", got)
	}
}

func TestRandomTipAccount(t *testing.T) {
	known := make(map[solana.PublicKey]bool, len(MainnetTipAccounts))
	for _, acc := range MainnetTipAccounts {
		known[acc] = true
	}
	for i := 0; i < 50; i++ {
		if acc := RandomTipAccount(); !known[acc] {
			t.Fatalf("tip account %s not in the official list", acc)
		}
	}
}

func TestIsRateLimitError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("rate limit exceeded"), true},
		{errors.New("Rate limited by upstream"), true},
		{errors.New("HTTP 429 Too Many Requests"), true},
		{errors.New("network congested, retry later"), true},
		{errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := isRateLimitError(tc.err); got != tc.want {
			t.Errorf("isRateLimitError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("", "")
	if len(c.endpoints) != 1 || c.endpoints[0] != MainnetBlockEngine {
		t.Errorf("endpoints = %v", c.endpoints)
	}

	c = NewClientWithEndpoints(nil, "")
	if len(c.endpoints) != len(MainnetBlockEngines) {
		t.Errorf("rotation endpoints = %d, want %d", len(c.endpoints), len(MainnetBlockEngines))
	}
	if c.maxRetries != len(MainnetBlockEngines)+2 {
		t.Errorf("maxRetries = %d", c.maxRetries)
	}
	if c.confirmTimeout <= 0 {
		t.Error("confirm timeout must be bounded by default")
	}
}

func TestSendBundle_Empty(t *testing.T) {
	c := NewClient(MainnetBlockEngine, "")
	if _, err := c.SendBundle(context.Background(), nil); !errors.Is(err, types.ErrEmptyBundle) {
		t.Fatalf("err = %v, want ErrEmptyBundle", err)
	}
}

// statusEngine answers getBundleStatuses with a fixed JSON-RPC result payload.
func statusEngine(t *testing.T, result string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	}))
}

func TestConfirmBundle_TimesOutOnSilentEngine(t *testing.T) {
	// A dropped bundle never shows up in getBundleStatuses; the engine keeps
	// answering with an empty value list. Confirmation must still terminate.
	srv := statusEngine(t, `{"context":{"slot":1},"value":[]}`)
	defer srv.Close()

	c := NewClient(srv.URL, "").WithConfirmTimeout(300 * time.Millisecond)
	c.pollInterval = 10 * time.Millisecond

	done := make(chan struct{})
	var outcome BundleOutcome
	var err error
	go func() {
		defer close(done)
		outcome, err = c.ConfirmBundle(context.Background(), "bundle-1")
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ConfirmBundle did not return within the confirm timeout")
	}
	if outcome != BundleRejected {
		t.Errorf("outcome = %s, want REJECTED", outcome)
	}
	if !errors.Is(err, types.ErrConfirmationTimeout) {
		t.Errorf("err = %v, want ErrConfirmationTimeout", err)
	}
}

func TestConfirmBundle_Landed(t *testing.T) {
	srv := statusEngine(t, `{"context":{"slot":9},"value":[{"bundle_id":"bundle-1","transactions":["sig"],"slot":9,"confirmation_status":"confirmed","err":{"Ok":null}}]}`)
	defer srv.Close()

	c := NewClient(srv.URL, "").WithConfirmTimeout(5 * time.Second)
	c.pollInterval = 10 * time.Millisecond

	outcome, err := c.ConfirmBundle(context.Background(), "bundle-1")
	if err != nil {
		t.Fatalf("ConfirmBundle: %v", err)
	}
	if outcome != BundleLanded {
		t.Errorf("outcome = %s, want LANDED", outcome)
	}
}
