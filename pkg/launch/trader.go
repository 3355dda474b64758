package launch

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/0xkatana/launchkit/pkg/executor"
	"github.com/0xkatana/launchkit/pkg/pumpfun"
	"github.com/0xkatana/launchkit/pkg/volume"
	"github.com/0xkatana/launchkit/pkg/wallet"
)

// TradeBuilder builds and signs a trade transaction.
type TradeBuilder interface {
	BuildSign(ctx context.Context, feePayer wallet.Signer, signers []wallet.Signer, instructions ...solana.Instruction) (*solana.Transaction, error)
}

// TradeExecutor runs a trade under its wallet's execution lock.
type TradeExecutor interface {
	Execute(ctx context.Context, owner wallet.WalletID, tx *solana.Transaction, level executor.Level, timeout, poll time.Duration) executor.Outcome
}

// TradeChain is the chain-read surface the trader needs.
type TradeChain interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*solanarpc.GetAccountInfoResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// ChainTrader executes holder buys and position dumps against the bonding
// curve. Confirmed buys are reported to the volume feed so they net out of
// the external total.
type ChainTrader struct {
	builder TradeBuilder
	exec    TradeExecutor
	chain   TradeChain
	feed    *volume.Feed
	log     zerolog.Logger

	slippageBps    uint64
	confirmLevel   executor.Level
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// TraderOption configures a ChainTrader.
type TraderOption func(*ChainTrader)

// WithTraderLogger attaches a logger.
func WithTraderLogger(log zerolog.Logger) TraderOption {
	return func(t *ChainTrader) { t.log = log }
}

// WithTraderSlippageBps overrides the slippage allowance.
func WithTraderSlippageBps(bps uint64) TraderOption {
	return func(t *ChainTrader) { t.slippageBps = bps }
}

// NewChainTrader builds a ChainTrader.
func NewChainTrader(builder TradeBuilder, exec TradeExecutor, chain TradeChain, feed *volume.Feed, opts ...TraderOption) *ChainTrader {
	t := &ChainTrader{
		builder:        builder,
		exec:           exec,
		chain:          chain,
		feed:           feed,
		log:            zerolog.Nop(),
		slippageBps:    1000,
		confirmLevel:   executor.LevelConfirmed,
		confirmTimeout: 60 * time.Second,
		pollInterval:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Buy spends lamports on the curve from the given wallet, creating its token
// account on the way.
func (t *ChainTrader) Buy(ctx context.Context, w wallet.Wallet, mint solana.PublicKey, lamports uint64) error {
	state, err := pumpfun.FetchCurveState(ctx, t.chain, mint)
	if err != nil {
		return fmt.Errorf("fetch curve for buy: %w", err)
	}
	tokensOut := state.Curve().Apply(lamports)
	maxCost := lamports + lamports*t.slippageBps/10_000

	ataIx := associatedtokenaccount.NewCreateInstruction(w.Address(), w.Address(), mint).Build()
	buyIx, err := pumpfun.NewBuyInstruction(w.Address(), mint, tokensOut, maxCost)
	if err != nil {
		return err
	}

	tx, err := t.builder.BuildSign(ctx, w.Signer, nil, ataIx, buyIx)
	if err != nil {
		return fmt.Errorf("build buy: %w", err)
	}
	outcome := t.exec.Execute(ctx, w.ID, tx, t.confirmLevel, t.confirmTimeout, t.pollInterval)
	if !outcome.Confirmed() {
		return fmt.Errorf("buy %s: %s", outcome.Status, outcome.Reason)
	}

	t.feed.RecordOwn(lamports)
	t.log.Info().
		Str("wallet", string(w.ID)).
		Uint64("lamports", lamports).
		Str("sig", outcome.Signature.String()).
		Msg("buy confirmed")
	return nil
}

// Sell dumps the wallet's full token position. A wallet holding nothing is a
// no-op, not an error.
func (t *ChainTrader) Sell(ctx context.Context, w wallet.Wallet, mint solana.PublicKey) error {
	ata, _, err := solana.FindAssociatedTokenAddress(w.Address(), mint)
	if err != nil {
		return fmt.Errorf("derive token account: %w", err)
	}
	amount, err := t.chain.GetTokenAccountBalance(ctx, ata)
	if err != nil {
		return fmt.Errorf("token balance of %s: %w", w.ID, err)
	}
	if amount == 0 {
		return nil
	}

	state, err := pumpfun.FetchCurveState(ctx, t.chain, mint)
	if err != nil {
		return fmt.Errorf("fetch curve for sell: %w", err)
	}
	solOut := state.Curve().SolForTokens(amount)
	minOut := solOut - solOut*t.slippageBps/10_000

	sellIx, err := pumpfun.NewSellInstruction(w.Address(), mint, amount, minOut)
	if err != nil {
		return err
	}
	tx, err := t.builder.BuildSign(ctx, w.Signer, nil, sellIx)
	if err != nil {
		return fmt.Errorf("build sell: %w", err)
	}
	outcome := t.exec.Execute(ctx, w.ID, tx, t.confirmLevel, t.confirmTimeout, t.pollInterval)
	if !outcome.Confirmed() {
		return fmt.Errorf("sell %s: %s", outcome.Status, outcome.Reason)
	}

	t.log.Info().
		Str("wallet", string(w.ID)).
		Uint64("tokens", amount).
		Str("sig", outcome.Signature.String()).
		Msg("position dumped")
	return nil
}
