// Package bundle assembles and submits the atomic launch bundle: token
// create, creator buy, and every bundle-wallet buy land in one block or not
// at all.
package bundle

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/rs/zerolog"

	"github.com/0xkatana/launchkit/pkg/config"
	"github.com/0xkatana/launchkit/pkg/constants"
	"github.com/0xkatana/launchkit/pkg/executor"
	"github.com/0xkatana/launchkit/pkg/jito"
	"github.com/0xkatana/launchkit/pkg/lut"
	"github.com/0xkatana/launchkit/pkg/pumpfun"
	"github.com/0xkatana/launchkit/pkg/txbuilder"
	"github.com/0xkatana/launchkit/pkg/wallet"
)

const (
	// MaxBundleTransactions is the Jito per-bundle transaction limit.
	MaxBundleTransactions = 5
	// buysPerTransaction bounds how many wallet buys share one versioned
	// transaction. With the lookup table in place the account limit allows
	// this comfortably.
	buysPerTransaction = 5
	// extendChunk bounds addresses per extend instruction so the extend
	// transaction stays under the packet size limit.
	extendChunk = 20
)

// TxBuilder is the transaction assembly surface the bundle needs.
type TxBuilder interface {
	BuildSign(ctx context.Context, feePayer wallet.Signer, signers []wallet.Signer, instructions ...solana.Instruction) (*solana.Transaction, error)
	BuildWithAddressTables(ctx context.Context, feePayer solana.PublicKey, tables map[solana.PublicKey]solana.PublicKeySlice, instructions ...solana.Instruction) (*solana.Transaction, error)
}

// TxExecutor confirms the lookup table transactions before the bundle is
// allowed to reference the table.
type TxExecutor interface {
	Execute(ctx context.Context, owner wallet.WalletID, tx *solana.Transaction, level executor.Level, timeout, poll time.Duration) executor.Outcome
}

// Engine is the block-engine surface: submit a bundle, poll it to a terminal
// outcome.
type Engine interface {
	SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error)
	ConfirmBundle(ctx context.Context, bundleID string) (jito.BundleOutcome, error)
}

// ChainReader reads chain state needed at build time.
type ChainReader interface {
	GetSlot(ctx context.Context) (uint64, error)
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// Params collects everything the bundle is built from. The mint is a fresh
// keypair that co-signs the create transaction.
type Params struct {
	Config        config.LaunchConfig
	Creator       wallet.Wallet
	BundleWallets []wallet.Wallet
	Mint          wallet.Signer

	Table          solana.PublicKey
	TableAddresses []solana.PublicKey
}

// Builder drives lookup table setup, bundle assembly, and submission.
type Builder struct {
	tx     TxBuilder
	exec   TxExecutor
	engine Engine
	chain  ChainReader
	log    zerolog.Logger

	confirmLevel   executor.Level
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(b *Builder) { b.log = log }
}

// WithConfirmation overrides confirmation settings for the table
// transactions.
func WithConfirmation(level executor.Level, timeout, poll time.Duration) Option {
	return func(b *Builder) {
		b.confirmLevel = level
		b.confirmTimeout = timeout
		b.pollInterval = poll
	}
}

// New builds a Builder.
func New(tx TxBuilder, exec TxExecutor, engine Engine, chain ChainReader, opts ...Option) *Builder {
	b := &Builder{
		tx:             tx,
		exec:           exec,
		engine:         engine,
		chain:          chain,
		log:            zerolog.Nop(),
		confirmLevel:   executor.LevelConfirmed,
		confirmTimeout: 60 * time.Second,
		pollInterval:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PrepareTable creates a lookup table owned by payer and extends it with the
// given addresses. Every table transaction is confirmed before this returns:
// a bundle transaction may not reference a table the cluster has not settled.
func (b *Builder) PrepareTable(ctx context.Context, payer wallet.Wallet, addresses []solana.PublicKey) (solana.PublicKey, error) {
	slot, err := b.chain.GetSlot(ctx)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("get slot for table derivation: %w", err)
	}

	createIx, table, err := lut.NewCreateInstruction(payer.Address(), payer.Address(), slot)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := b.runTableTx(ctx, payer, createIx); err != nil {
		return solana.PublicKey{}, fmt.Errorf("create lookup table: %w", err)
	}
	b.log.Info().Str("table", table.String()).Msg("lookup table created")

	for start := 0; start < len(addresses); start += extendChunk {
		end := start + extendChunk
		if end > len(addresses) {
			end = len(addresses)
		}
		extendIx, err := lut.NewExtendInstruction(table, payer.Address(), payer.Address(), addresses[start:end])
		if err != nil {
			return solana.PublicKey{}, err
		}
		if err := b.runTableTx(ctx, payer, extendIx); err != nil {
			return solana.PublicKey{}, fmt.Errorf("extend lookup table (%d..%d): %w", start, end, err)
		}
	}
	return table, nil
}

func (b *Builder) runTableTx(ctx context.Context, payer wallet.Wallet, ix solana.Instruction) error {
	tx, err := b.tx.BuildSign(ctx, payer.Signer, nil, ix)
	if err != nil {
		return err
	}
	outcome := b.exec.Execute(ctx, payer.ID, tx, b.confirmLevel, b.confirmTimeout, b.pollInterval)
	if !outcome.Confirmed() {
		return fmt.Errorf("table transaction %s: %s", outcome.Status, outcome.Reason)
	}
	return nil
}

// VerifyBalances checks, before any transaction is assembled, that every
// participating wallet's on-chain balance covers its padded buy. The padding
// comes from the config, the same figure the budget and the funding plan use,
// so a wallet the machine just funded always passes. The creator additionally
// covers the tip.
func (b *Builder) VerifyBalances(ctx context.Context, p Params) error {
	need := p.Config.PaddedBuy(p.Config.CreatorBuyLamports) + p.Config.JitoTipLamports
	if err := b.checkBalance(ctx, p.Creator, need); err != nil {
		return err
	}
	for i, w := range p.BundleWallets {
		if i >= len(p.Config.BundleBuys) {
			break
		}
		if err := b.checkBalance(ctx, w, p.Config.PaddedBuy(p.Config.BundleBuys[i])); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) checkBalance(ctx context.Context, w wallet.Wallet, need uint64) error {
	balance, err := b.chain.GetBalance(ctx, w.Address())
	if err != nil {
		return fmt.Errorf("balance of %s: %w", w.ID, err)
	}
	if balance < need {
		return fmt.Errorf("wallet %s holds %d lamports, needs %d", w.ID, balance, need)
	}
	return nil
}

// Assemble builds the signed bundle transactions. The first transaction
// carries the token create, the creator's buy, and the tip; the rest carry
// the bundle-wallet buys in creation order. Buy amounts are priced against
// the curve state left by each preceding buy, since all of them execute back
// to back in one block.
func (b *Builder) Assemble(ctx context.Context, p Params) ([]*solana.Transaction, error) {
	if len(p.BundleWallets) != len(p.Config.BundleBuys) {
		return nil, fmt.Errorf("have %d bundle wallets for %d configured buys",
			len(p.BundleWallets), len(p.Config.BundleBuys))
	}
	txCount := 1 + (len(p.BundleWallets)+buysPerTransaction-1)/buysPerTransaction
	if txCount > MaxBundleTransactions {
		return nil, fmt.Errorf("launch needs %d transactions, bundle limit is %d", txCount, MaxBundleTransactions)
	}

	mint := p.Mint.PublicKey()
	curve := pumpfun.NewCurve()
	tables := map[solana.PublicKey]solana.PublicKeySlice{}
	if !p.Table.IsZero() {
		tables[p.Table] = p.TableAddresses
	}

	var txs []*solana.Transaction

	// Create + creator buy + tip.
	createIx, err := pumpfun.NewCreateInstruction(mint, p.Creator.Address(), p.Config.Token.Name, p.Config.Token.Symbol, p.Config.Token.URI)
	if err != nil {
		return nil, err
	}
	creatorBuy, err := b.buyInstructions(curve, p.Creator, mint, p.Config.CreatorBuyLamports, p.Config.PaddedBuy(p.Config.CreatorBuyLamports))
	if err != nil {
		return nil, err
	}
	tipIx := system.NewTransferInstruction(
		p.Config.JitoTipLamports,
		p.Creator.Address(),
		jito.RandomTipAccount(),
	).Build()

	head := append([]solana.Instruction{createIx}, creatorBuy...)
	head = append(head, tipIx)
	headTx, err := b.buildSigned(ctx, p.Creator.Signer, []wallet.Signer{p.Mint}, tables, head)
	if err != nil {
		return nil, fmt.Errorf("build create transaction: %w", err)
	}
	txs = append(txs, headTx)

	// Bundle-wallet buys, chunked.
	for start := 0; start < len(p.BundleWallets); start += buysPerTransaction {
		end := start + buysPerTransaction
		if end > len(p.BundleWallets) {
			end = len(p.BundleWallets)
		}

		var (
			ixs     []solana.Instruction
			signers []wallet.Signer
		)
		for i := start; i < end; i++ {
			w := p.BundleWallets[i]
			buyIxs, err := b.buyInstructions(curve, w, mint, p.Config.BundleBuys[i], p.Config.PaddedBuy(p.Config.BundleBuys[i]))
			if err != nil {
				return nil, err
			}
			ixs = append(ixs, buyIxs...)
			if i > start {
				signers = append(signers, w.Signer)
			}
		}

		tx, err := b.buildSigned(ctx, p.BundleWallets[start].Signer, signers, tables, ixs)
		if err != nil {
			return nil, fmt.Errorf("build buy transaction (%d..%d): %w", start, end, err)
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

// buyInstructions returns the ATA create and curve buy for one wallet,
// advancing the shared curve state.
func (b *Builder) buyInstructions(curve *pumpfun.Curve, w wallet.Wallet, mint solana.PublicKey, lamports, maxCost uint64) ([]solana.Instruction, error) {
	tokensOut := curve.Apply(lamports)
	ataIx := associatedtokenaccount.NewCreateInstruction(w.Address(), w.Address(), mint).Build()
	buyIx, err := pumpfun.NewBuyInstruction(w.Address(), mint, tokensOut, maxCost)
	if err != nil {
		return nil, fmt.Errorf("buy for %s: %w", w.ID, err)
	}
	return []solana.Instruction{ataIx, buyIx}, nil
}

func (b *Builder) buildSigned(ctx context.Context, feePayer wallet.Signer, extra []wallet.Signer, tables map[solana.PublicKey]solana.PublicKeySlice, ixs []solana.Instruction) (*solana.Transaction, error) {
	tx, err := b.tx.BuildWithAddressTables(ctx, feePayer.PublicKey(), tables, ixs...)
	if err != nil {
		return nil, err
	}
	signers := append([]wallet.Signer{feePayer}, extra...)
	if err := txbuilder.SignTransaction(ctx, tx, signers...); err != nil {
		return nil, err
	}
	return tx, nil
}

// CommonAccounts lists the non-signer accounts every bundle transaction
// references, worth deduplicating through the lookup table.
func CommonAccounts(mint solana.PublicKey) ([]solana.PublicKey, error) {
	a, err := pumpfun.Derive(mint)
	if err != nil {
		return nil, err
	}
	return []solana.PublicKey{
		a.Global,
		a.BondingCurve,
		a.AssociatedBondingCurve,
		a.EventAuthority,
		a.Metadata,
		pumpfun.FeeRecipient,
		constants.PumpProgramID,
		constants.SystemProgramID,
		constants.TokenProgramID,
		constants.AssociatedTokenProgramID,
		constants.SysvarRentProgramID,
		constants.MetadataProgramID,
	}, nil
}

// Submit sends the bundle and returns its ID.
func (b *Builder) Submit(ctx context.Context, txs []*solana.Transaction) (string, error) {
	id, err := b.engine.SendBundle(ctx, txs)
	if err != nil {
		return "", fmt.Errorf("submit bundle: %w", err)
	}
	b.log.Info().Str("bundle_id", id).Int("transactions", len(txs)).Msg("bundle submitted")
	return id, nil
}

// Confirm polls the bundle to its terminal outcome. There is no partial
// result: LANDED means every transaction executed, REJECTED means none did.
func (b *Builder) Confirm(ctx context.Context, bundleID string) (jito.BundleOutcome, error) {
	return b.engine.ConfirmBundle(ctx, bundleID)
}
