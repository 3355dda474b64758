package volume

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Ingester feeds the external-volume total from an accountSubscribe stream
// on the token's bonding curve. Lamport increases on the curve are buy-side
// inflow; the feed nets out the launch's own recorded buys.
type Ingester struct {
	endpoint string
	curve    solana.PublicKey
	feed     *Feed
	log      zerolog.Logger

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	readTimeout       time.Duration

	requestID    atomic.Uint64
	lastLamports uint64
	haveBaseline bool
}

// NewIngester builds an ingester for one bonding curve account.
func NewIngester(endpoint string, curve solana.PublicKey, feed *Feed, log zerolog.Logger) *Ingester {
	return &Ingester{
		endpoint:          endpoint,
		curve:             curve,
		feed:              feed,
		log:               log,
		reconnectDelay:    1 * time.Second,
		maxReconnectDelay: 30 * time.Second,
		readTimeout:       60 * time.Second,
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type accountNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Value struct {
				Lamports uint64 `json:"lamports"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// Run connects, subscribes, and pumps notifications into the feed until ctx
// is cancelled. Disconnects trigger reconnect with backoff; the inflow
// baseline survives reconnects so deltas stay monotonic.
func (i *Ingester) Run(ctx context.Context) error {
	delay := i.reconnectDelay
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := i.runOnce(ctx)
		if err != nil && ctx.Err() == nil {
			i.log.Warn().Err(err).Dur("retry_in", delay).Msg("volume stream dropped")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > i.maxReconnectDelay {
			delay = i.maxReconnectDelay
		}
	}
}

func (i *Ingester) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, i.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      i.requestID.Add(1),
		Method:  "accountSubscribe",
		Params: []interface{}{
			i.curve.String(),
			map[string]interface{}{
				"encoding":   "base64",
				"commitment": "confirmed",
			},
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	// Close the connection when ctx is cancelled to unblock ReadMessage.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(i.readTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		var note accountNotification
		if err := json.Unmarshal(raw, &note); err != nil {
			continue
		}
		if note.Method != "accountNotification" {
			continue
		}
		i.observe(note.Params.Result.Value.Lamports)
	}
}

// observe converts a new curve balance into an inflow delta. The first
// reading only establishes the baseline; outflows (curve withdrawals) reset
// it without producing volume.
func (i *Ingester) observe(lamports uint64) {
	if !i.haveBaseline {
		i.lastLamports = lamports
		i.haveBaseline = true
		return
	}
	if lamports > i.lastLamports {
		delta := lamports - i.lastLamports
		i.feed.AddGross(delta)
		i.log.Debug().Uint64("inflow", delta).Msg("curve inflow observed")
	}
	i.lastLamports = lamports
}
