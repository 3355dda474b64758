// Package executor submits signed transactions and polls them to a
// confirmation outcome.
//
// Every submission for a wallet goes through that wallet's execution lock:
// a wallet never has two transactions in flight at once, which would race
// on the same recent-blockhash window.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/0xkatana/launchkit/pkg/wallet"
)

// Client is the slice of the RPC surface the executor needs.
type Client interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, sigs ...solana.Signature) (*solanarpc.GetSignatureStatusesResult, error)
}

// Level is the desired confirmation depth.
type Level string

const (
	LevelProcessed Level = "processed"
	LevelConfirmed Level = "confirmed"
	LevelFinalized Level = "finalized"
)

func (l Level) rank() int {
	switch l {
	case LevelProcessed:
		return 1
	case LevelConfirmed:
		return 2
	case LevelFinalized:
		return 3
	default:
		return 2
	}
}

func statusRank(s solanarpc.ConfirmationStatusType) int {
	switch s {
	case solanarpc.ConfirmationStatusProcessed:
		return 1
	case solanarpc.ConfirmationStatusConfirmed:
		return 2
	case solanarpc.ConfirmationStatusFinalized:
		return 3
	default:
		return 0
	}
}

// Status classifies a confirmation outcome.
type Status int

const (
	// StatusConfirmed means the transaction reached the desired level.
	StatusConfirmed Status = iota
	// StatusFailed means the chain recorded an error for the transaction.
	// Fatal for the owning operation; never retried here.
	StatusFailed
	// StatusTimedOut means no terminal status arrived within the timeout.
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusConfirmed:
		return "CONFIRMED"
	case StatusFailed:
		return "FAILED"
	case StatusTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the typed result of a confirm call.
type Outcome struct {
	Status    Status
	Signature solana.Signature
	// Reason holds the on-chain error for StatusFailed, or a timeout note.
	Reason  string
	Elapsed time.Duration
}

// Confirmed reports whether the outcome is success.
func (o Outcome) Confirmed() bool {
	return o.Status == StatusConfirmed
}

// Executor serializes per-wallet submissions and polls confirmations.
type Executor struct {
	client Client
	clk    clock.Clock
	log    zerolog.Logger

	skipPreflight bool
	commitment    solanarpc.CommitmentType

	mu    sync.Mutex
	locks map[wallet.WalletID]*sync.Mutex
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock injects a clock. Tests pass a mock for deterministic timeouts.
func WithClock(clk clock.Clock) Option {
	return func(e *Executor) { e.clk = clk }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// WithSkipPreflight skips preflight simulation on submit.
func WithSkipPreflight(skip bool) Option {
	return func(e *Executor) { e.skipPreflight = skip }
}

// New builds an Executor.
func New(client Client, opts ...Option) *Executor {
	e := &Executor{
		client:     client,
		clk:        clock.New(),
		log:        zerolog.Nop(),
		commitment: solanarpc.CommitmentConfirmed,
		locks:      make(map[wallet.WalletID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// walletLock returns the execution lock for a wallet, creating it on first use.
func (e *Executor) walletLock(id wallet.WalletID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// Submit sends a signed transaction and returns its signature.
func (e *Executor) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := e.client.SendTransaction(ctx, tx, solanarpc.TransactionOpts{
		SkipPreflight:       e.skipPreflight,
		PreflightCommitment: e.commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("submit transaction: %w", err)
	}
	e.log.Debug().Str("sig", sig.String()).Msg("transaction submitted")
	return sig, nil
}

// Confirm polls signature status until the desired level is met, the chain
// reports an error, or timeout elapses. A missing status is transient and
// retried; an on-chain error is fatal immediately. Safe to call repeatedly
// for the same signature.
func (e *Executor) Confirm(ctx context.Context, sig solana.Signature, level Level, timeout, poll time.Duration) Outcome {
	if poll <= 0 {
		poll = 200 * time.Millisecond
	}
	start := e.clk.Now()
	deadline := e.clk.Timer(timeout)
	defer deadline.Stop()
	ticker := e.clk.Ticker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Outcome{
				Status:    StatusTimedOut,
				Signature: sig,
				Reason:    fmt.Sprintf("confirmation aborted: %v", ctx.Err()),
				Elapsed:   e.clk.Now().Sub(start),
			}
		case <-deadline.C:
			return Outcome{
				Status:    StatusTimedOut,
				Signature: sig,
				Reason:    fmt.Sprintf("no confirmation within %s", timeout),
				Elapsed:   e.clk.Now().Sub(start),
			}
		case <-ticker.C:
			resp, err := e.client.GetSignatureStatuses(ctx, sig)
			if err != nil {
				// Transient RPC failure; keep polling until timeout.
				e.log.Debug().Err(err).Str("sig", sig.String()).Msg("status query failed")
				continue
			}
			if resp == nil || len(resp.Value) == 0 || resp.Value[0] == nil {
				// Not yet known to the cluster.
				continue
			}
			status := resp.Value[0]
			if status.Err != nil {
				return Outcome{
					Status:    StatusFailed,
					Signature: sig,
					Reason:    fmt.Sprintf("transaction failed on chain: %v", status.Err),
					Elapsed:   e.clk.Now().Sub(start),
				}
			}
			if statusRank(status.ConfirmationStatus) >= level.rank() {
				return Outcome{
					Status:    StatusConfirmed,
					Signature: sig,
					Elapsed:   e.clk.Now().Sub(start),
				}
			}
		}
	}
}

// Execute runs a transaction owned by one wallet: acquire the wallet's
// execution lock, submit, confirm, release. The lock is held across the
// whole in-flight window, including timeout and failure paths.
func (e *Executor) Execute(ctx context.Context, owner wallet.WalletID, tx *solana.Transaction, level Level, timeout, poll time.Duration) Outcome {
	l := e.walletLock(owner)
	l.Lock()
	defer l.Unlock()

	sig, err := e.Submit(ctx, tx)
	if err != nil {
		return Outcome{
			Status: StatusFailed,
			Reason: fmt.Sprintf("submit failed: %v", err),
		}
	}
	return e.Confirm(ctx, sig, level, timeout, poll)
}
