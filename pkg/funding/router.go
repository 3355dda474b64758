// Package funding moves value from the master wallet to launch wallets,
// either directly or through chains of ephemeral intermediary wallets.
package funding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/rs/zerolog"

	"github.com/0xkatana/launchkit/pkg/config"
	"github.com/0xkatana/launchkit/pkg/executor"
	"github.com/0xkatana/launchkit/pkg/types"
	"github.com/0xkatana/launchkit/pkg/wallet"
)

// DefaultFeeReserve is the lamports left behind per hop to cover the hop
// wallet's own transfer fee.
const DefaultFeeReserve uint64 = 10_000

// TxBuilder builds and signs a transfer transaction.
type TxBuilder interface {
	BuildSign(ctx context.Context, feePayer wallet.Signer, signers []wallet.Signer, instructions ...solana.Instruction) (*solana.Transaction, error)
}

// TxExecutor runs a transaction under its owner wallet's execution lock.
type TxExecutor interface {
	Execute(ctx context.Context, owner wallet.WalletID, tx *solana.Transaction, level executor.Level, timeout, poll time.Duration) executor.Outcome
}

// Destination is one funding target.
type Destination struct {
	ID      wallet.WalletID
	Address solana.PublicKey
	Amount  uint64
}

// RouteResult records one completed route.
type RouteResult struct {
	Destination wallet.WalletID
	// Hops lists the intermediary addresses, in transfer order. Empty for
	// direct routes.
	Hops       []solana.PublicKey
	Signatures []solana.Signature
	// Delivered is the lamports that arrived at the destination after
	// per-hop fee reserves.
	Delivered uint64
}

// Router executes funding routes.
type Router struct {
	builder        TxBuilder
	exec           TxExecutor
	log            zerolog.Logger
	level          executor.Level
	confirmTimeout time.Duration
	pollInterval   time.Duration
	feeReserve     uint64
}

// Option configures a Router.
type Option func(*Router)

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Router) { r.log = log }
}

// WithConfirmation overrides confirmation level and timing.
func WithConfirmation(level executor.Level, timeout, poll time.Duration) Option {
	return func(r *Router) {
		r.level = level
		r.confirmTimeout = timeout
		r.pollInterval = poll
	}
}

// WithFeeReserve overrides the per-hop fee reserve.
func WithFeeReserve(lamports uint64) Option {
	return func(r *Router) { r.feeReserve = lamports }
}

// NewRouter builds a Router.
func NewRouter(builder TxBuilder, exec TxExecutor, opts ...Option) *Router {
	r := &Router{
		builder:        builder,
		exec:           exec,
		log:            zerolog.Nop(),
		level:          executor.LevelConfirmed,
		confirmTimeout: 60 * time.Second,
		pollInterval:   500 * time.Millisecond,
		feeReserve:     DefaultFeeReserve,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route moves amount from the source wallet to the destination. Mixing
// routes generate hop wallets and transfer through them strictly
// sequentially: a hop never starts until its predecessor is confirmed.
func (r *Router) Route(ctx context.Context, from wallet.Wallet, dest Destination, mode config.RouteMode, hops int) (RouteResult, error) {
	result := RouteResult{Destination: dest.ID}
	if dest.Amount == 0 {
		return result, fmt.Errorf("route to %s: %w", dest.ID, types.ErrZeroAmount)
	}

	switch mode {
	case config.RouteDirect:
		sig, err := r.transfer(ctx, from.Signer, from.ID, dest.Address, dest.Amount)
		if err != nil {
			return result, fmt.Errorf("direct transfer to %s: %w", dest.ID, err)
		}
		result.Signatures = append(result.Signatures, sig)
		result.Delivered = dest.Amount
		return result, nil

	case config.RouteMixing, config.RouteMultiIntermediary:
		if hops < 1 {
			return result, fmt.Errorf("%s route requires at least one hop", mode)
		}
	default:
		return result, fmt.Errorf("unknown route mode %q", mode)
	}

	// Build the hop chain up front so the full path is known before the
	// first transfer.
	chain := make([]wallet.Local, 0, hops)
	for i := 0; i < hops; i++ {
		hop, err := wallet.NewEphemeral()
		if err != nil {
			return result, fmt.Errorf("generate hop wallet: %w", err)
		}
		chain = append(chain, hop)
		result.Hops = append(result.Hops, hop.PublicKey())
	}

	// Each leg carries the running amount minus one fee reserve, so every
	// hop can afford its outgoing transfer.
	sender := wallet.Signer(from.Signer)
	senderID := from.ID
	remaining := dest.Amount + uint64(hops)*r.feeReserve

	for i := 0; i <= hops; i++ {
		var target solana.PublicKey
		if i < hops {
			target = chain[i].PublicKey()
		} else {
			target = dest.Address
		}
		if i > 0 {
			remaining -= r.feeReserve
		}

		sig, err := r.transfer(ctx, sender, senderID, target, remaining)
		if err != nil {
			return result, fmt.Errorf("hop %d/%d to %s: %w", i, hops, dest.ID, err)
		}
		result.Signatures = append(result.Signatures, sig)

		r.log.Debug().
			Str("dest", string(dest.ID)).
			Int("hop", i).
			Str("sig", sig.String()).
			Msg("funding hop confirmed")

		if i < hops {
			sender = chain[i]
			senderID = wallet.WalletID(chain[i].PublicKey().String())
		}
	}

	result.Delivered = remaining
	return result, nil
}

// RouteAll funds every destination concurrently. Each destination's route is
// independent: a failure aborts only that destination and is reported in the
// returned error map.
func (r *Router) RouteAll(ctx context.Context, from wallet.Wallet, dests []Destination, mode config.RouteMode, hops int) ([]RouteResult, map[wallet.WalletID]error) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []RouteResult
		errs    = make(map[wallet.WalletID]error)
	)

	for _, dest := range dests {
		wg.Add(1)
		go func(dest Destination) {
			defer wg.Done()
			res, err := r.Route(ctx, from, dest, mode, hops)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[dest.ID] = err
				return
			}
			results = append(results, res)
		}(dest)
	}
	wg.Wait()

	return results, errs
}

// transfer builds, signs, submits, and confirms one system transfer. It
// returns only after the transfer is confirmed or failed.
func (r *Router) transfer(ctx context.Context, from wallet.Signer, owner wallet.WalletID, to solana.PublicKey, lamports uint64) (solana.Signature, error) {
	ix := system.NewTransferInstruction(lamports, from.PublicKey(), to).Build()

	tx, err := r.builder.BuildSign(ctx, from, nil, ix)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transfer: %w", err)
	}

	outcome := r.exec.Execute(ctx, owner, tx, r.level, r.confirmTimeout, r.pollInterval)
	switch outcome.Status {
	case executor.StatusConfirmed:
		return outcome.Signature, nil
	case executor.StatusTimedOut:
		return outcome.Signature, fmt.Errorf("transfer: %w: %s", types.ErrConfirmationTimeout, outcome.Reason)
	default:
		return outcome.Signature, fmt.Errorf("transfer: %w: %s", types.ErrTransactionFailed, outcome.Reason)
	}
}
