// Package jito submits atomic transaction bundles to the Jito Block Engine.
//
// A bundle either lands in a single block in order, or not at all. The
// launch pipeline relies on that all-or-nothing property: the token create,
// the creator buy, and every bundle-wallet buy share one fate.
package jito

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	jitorpc "github.com/jito-labs/jito-go-rpc"

	"github.com/0xkatana/launchkit/pkg/types"
)

// Default Jito Block Engine endpoints
const (
	MainnetBlockEngine = "https://mainnet.block-engine.jito.wtf/api/v1"
	TestnetBlockEngine = "https://testnet.block-engine.jito.wtf/api/v1"
)

// MainnetBlockEngines contains all available Jito mainnet endpoints.
// Using multiple endpoints helps avoid rate limiting.
var MainnetBlockEngines = []string{
	"https://mainnet.block-engine.jito.wtf/api/v1",
	"https://amsterdam.mainnet.block-engine.jito.wtf/api/v1",
	"https://frankfurt.mainnet.block-engine.jito.wtf/api/v1",
	"https://ny.mainnet.block-engine.jito.wtf/api/v1",
	"https://tokyo.mainnet.block-engine.jito.wtf/api/v1",
}

// MainnetTipAccounts are the official Jito tip accounts. They rarely change,
// so using this static list avoids an RPC round trip at bundle-build time.
var MainnetTipAccounts = []solana.PublicKey{
	solana.MustPublicKeyFromBase58("96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"),
	solana.MustPublicKeyFromBase58("HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe"),
	solana.MustPublicKeyFromBase58("Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY"),
	solana.MustPublicKeyFromBase58("ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49"),
	solana.MustPublicKeyFromBase58("DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh"),
	solana.MustPublicKeyFromBase58("ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt"),
	solana.MustPublicKeyFromBase58("DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL"),
	solana.MustPublicKeyFromBase58("3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT"),
}

// RandomTipAccount returns a tip account from the static list.
func RandomTipAccount() solana.PublicKey {
	return MainnetTipAccounts[rand.Intn(len(MainnetTipAccounts))]
}

// BundleOutcome is the single terminal result of a submitted bundle.
type BundleOutcome int

const (
	// BundleLanded means every transaction in the bundle executed in one block.
	BundleLanded BundleOutcome = iota
	// BundleRejected means no transaction in the bundle executed.
	BundleRejected
)

func (o BundleOutcome) String() string {
	if o == BundleLanded {
		return "LANDED"
	}
	return "REJECTED"
}

// Client talks to the Jito Block Engine with multi-endpoint rotation and
// retry on rate limiting.
type Client struct {
	endpoints      []string
	uuid           string
	currentIndex   uint32
	maxRetries     int
	retryDelay     time.Duration
	pollInterval   time.Duration
	confirmTimeout time.Duration
}

// NewClient creates a client for a single endpoint. uuid is optional.
func NewClient(endpoint string, uuid string) *Client {
	if endpoint == "" {
		endpoint = MainnetBlockEngine
	}
	return &Client{
		endpoints:      []string{endpoint},
		uuid:           uuid,
		maxRetries:     3,
		retryDelay:     200 * time.Millisecond,
		pollInterval:   200 * time.Millisecond,
		confirmTimeout: 90 * time.Second,
	}
}

// NewClientWithEndpoints creates a client that rotates through multiple
// endpoints in round-robin fashion, failing over on rate limits.
func NewClientWithEndpoints(endpoints []string, uuid string) *Client {
	if len(endpoints) == 0 {
		endpoints = MainnetBlockEngines
	}
	return &Client{
		endpoints:      endpoints,
		uuid:           uuid,
		maxRetries:     len(endpoints) + 2,
		retryDelay:     100 * time.Millisecond,
		pollInterval:   200 * time.Millisecond,
		confirmTimeout: 90 * time.Second,
	}
}

// WithRetries configures retry count and delay.
func (c *Client) WithRetries(maxRetries int, retryDelay time.Duration) *Client {
	c.maxRetries = maxRetries
	c.retryDelay = retryDelay
	return c
}

// WithConfirmTimeout bounds how long ConfirmBundle polls before giving up. A
// bundle the engine never reports on is treated as dropped once the timeout
// elapses.
func (c *Client) WithConfirmTimeout(d time.Duration) *Client {
	c.confirmTimeout = d
	return c
}

func (c *Client) getNextClient() *jitorpc.JitoJsonRpcClient {
	idx := atomic.AddUint32(&c.currentIndex, 1)
	endpoint := c.endpoints[int(idx)%len(c.endpoints)]
	return jitorpc.NewJitoJsonRpcClient(endpoint, c.uuid)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "Rate limit") ||
		strings.Contains(errStr, "congested") ||
		strings.Contains(errStr, "429")
}

// SendBundle submits fully signed transactions as one atomic bundle and
// returns the bundle ID.
func (c *Client) SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error) {
	if len(txs) == 0 {
		return "", types.ErrEmptyBundle
	}

	txStrings := make([]string, 0, len(txs))
	for _, tx := range txs {
		txBytes, err := tx.MarshalBinary()
		if err != nil {
			return "", fmt.Errorf("marshal transaction: %w", err)
		}
		txStrings = append(txStrings, base64.StdEncoding.EncodeToString(txBytes))
	}

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		client := c.getNextClient()

		rawResp, err := client.SendBundle([][]string{txStrings})
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				time.Sleep(c.retryDelay)
				continue
			}
			return "", fmt.Errorf("jito send bundle: %w", err)
		}

		var bundleID string
		if err := json.Unmarshal(rawResp, &bundleID); err != nil {
			return "", fmt.Errorf("unmarshal bundle response: %w", err)
		}
		return bundleID, nil
	}
	return "", fmt.Errorf("jito send bundle failed after %d retries: %w", c.maxRetries, lastErr)
}

// GetBundleStatuses returns the statuses of submitted bundles.
func (c *Client) GetBundleStatuses(ctx context.Context, bundleIDs []string) (*jitorpc.BundleStatusResponse, error) {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		client := c.getNextClient()
		statuses, err := client.GetBundleStatuses(bundleIDs)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				time.Sleep(c.retryDelay)
				continue
			}
			return nil, fmt.Errorf("get bundle statuses: %w", err)
		}
		return statuses, nil
	}
	return nil, fmt.Errorf("get bundle statuses failed after %d retries: %w", c.maxRetries, lastErr)
}

// ConfirmBundle polls bundle status until it lands, is rejected, or the
// confirm timeout elapses. The engine reports nothing at all for a dropped
// bundle, so the poll must carry its own deadline rather than trust the
// caller's context to expire. A rejection reports the engine's reason when
// available.
func (c *Client) ConfirmBundle(ctx context.Context, bundleID string) (BundleOutcome, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return BundleRejected, ctx.Err()
			}
			return BundleRejected, fmt.Errorf("bundle %s: %w after %s", bundleID, types.ErrConfirmationTimeout, c.confirmTimeout)
		case <-ticker.C:
			statuses, err := c.GetBundleStatuses(pollCtx, []string{bundleID})
			if err != nil {
				// Transient; poll again.
				continue
			}
			if statuses == nil || len(statuses.Value) == 0 {
				continue
			}
			status := statuses.Value[0]
			switch status.ConfirmationStatus {
			case "confirmed", "finalized":
				return BundleLanded, nil
			}
			if status.Err.Ok == nil {
				return BundleRejected, fmt.Errorf("bundle %s: %w: %v", bundleID, types.ErrBundleRejected, status.Err)
			}
		}
	}
}
