// Package launch orchestrates a token launch end to end: budget check,
// wallet creation, privacy-routed funding, lookup table setup, atomic bundle
// submission, and post-launch trading automation.
package launch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/0xkatana/launchkit/pkg/autobuy"
	"github.com/0xkatana/launchkit/pkg/autosell"
	"github.com/0xkatana/launchkit/pkg/bundle"
	"github.com/0xkatana/launchkit/pkg/config"
	"github.com/0xkatana/launchkit/pkg/funding"
	"github.com/0xkatana/launchkit/pkg/jito"
	"github.com/0xkatana/launchkit/pkg/store"
	"github.com/0xkatana/launchkit/pkg/types"
	"github.com/0xkatana/launchkit/pkg/volume"
	"github.com/0xkatana/launchkit/pkg/wallet"
)

// fundingCushion pads each funded buy amount so the wallet covers its
// transaction fees and token account rent. Slippage is padded separately via
// the config so the funded amount always meets the pre-bundle balance gate.
const fundingCushion uint64 = 4_000_000

// Funder moves value from the master wallet to launch wallets.
type Funder interface {
	RouteAll(ctx context.Context, from wallet.Wallet, dests []funding.Destination, mode config.RouteMode, hops int) ([]funding.RouteResult, map[wallet.WalletID]error)
}

// Bundler prepares and submits the atomic launch bundle.
type Bundler interface {
	PrepareTable(ctx context.Context, payer wallet.Wallet, addresses []solana.PublicKey) (solana.PublicKey, error)
	VerifyBalances(ctx context.Context, p bundle.Params) error
	Assemble(ctx context.Context, p bundle.Params) ([]*solana.Transaction, error)
	Submit(ctx context.Context, txs []*solana.Transaction) (string, error)
	Confirm(ctx context.Context, bundleID string) (jito.BundleOutcome, error)
}

// BalanceReader reads lamport balances.
type BalanceReader interface {
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// Trader executes post-launch holder buys and sells.
type Trader interface {
	Buy(ctx context.Context, w wallet.Wallet, mint solana.PublicKey, lamports uint64) error
	Sell(ctx context.Context, w wallet.Wallet, mint solana.PublicKey) error
}

// Event is one progress update on the run event stream.
type Event struct {
	RunID   string
	Stage   store.Stage
	Status  store.RunStatus
	Percent int
	Message string
}

// fundedHolder pairs a holder wallet with its launch-time config. Holders
// dropped during funding never appear in one of these.
type fundedHolder struct {
	w   wallet.Wallet
	cfg config.HolderConfig
}

type activeRun struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Machine runs launches. At most one run is in flight; starting a new one
// supersedes and aborts the previous.
type Machine struct {
	runs    store.RunStore
	wallets *wallet.Set
	funder  Funder
	bundler Bundler
	chain   BalanceReader
	trader  Trader
	feed    *volume.Feed
	clk     clock.Clock
	log     zerolog.Logger

	mu     sync.Mutex
	active *activeRun
	subs   []chan Event

	buyer  *autobuy.Scheduler
	seller *autosell.Engine
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock injects a clock, shared with the automation components.
func WithClock(clk clock.Clock) Option {
	return func(m *Machine) { m.clk = clk }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Machine) { m.log = log }
}

// NewMachine builds a Machine.
func NewMachine(runs store.RunStore, wallets *wallet.Set, funder Funder, bundler Bundler, chain BalanceReader, trader Trader, feed *volume.Feed, opts ...Option) *Machine {
	m := &Machine{
		runs:    runs,
		wallets: wallets,
		funder:  funder,
		bundler: bundler,
		chain:   chain,
		trader:  trader,
		feed:    feed,
		clk:     clock.New(),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe returns a channel of progress events. Slow subscribers drop
// events rather than stall the run.
func (m *Machine) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *Machine) emit(ev Event) {
	m.mu.Lock()
	subs := make([]chan Event, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Start validates the config, supersedes any in-flight run, and begins a new
// one. It returns the run ID immediately; progress arrives on the event
// stream and in the run store.
func (m *Machine) Start(ctx context.Context, cfg config.LaunchConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	prev := m.active
	m.mu.Unlock()
	if prev != nil {
		select {
		case <-prev.done:
		default:
			m.log.Info().Str("run_id", prev.id).Msg("superseding in-flight run")
			prev.cancel()
			<-prev.done
		}
	}

	now := m.clk.Now()
	run := &store.Run{
		ID:        uuid.NewString(),
		Status:    store.RunPending,
		Stage:     store.StageInitializing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.runs.Insert(ctx, run); err != nil {
		return "", fmt.Errorf("persist run: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	active := &activeRun{id: run.ID, cancel: cancel, done: make(chan struct{})}
	m.mu.Lock()
	m.active = active
	m.mu.Unlock()

	go func() {
		defer close(active.done)
		m.execute(runCtx, run, cfg)
	}()
	return run.ID, nil
}

// WaitRun blocks until the given run reaches a terminal state.
func (m *Machine) WaitRun(ctx context.Context, id string) error {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	if active == nil || active.id != id {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-active.done:
		return nil
	}
}

// Status returns the persisted run record.
func (m *Machine) Status(ctx context.Context, id string) (*store.Run, error) {
	run, err := m.runs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, types.ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

// List returns all persisted runs, newest first.
func (m *Machine) List(ctx context.Context) ([]*store.Run, error) {
	return m.runs.List(ctx)
}

// Abort cancels an in-flight run. Terminal runs cannot be aborted; a stale
// pending record left by a crash is marked aborted directly.
func (m *Machine) Abort(ctx context.Context, id string) error {
	run, err := m.Status(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return types.ErrRunTerminated
	}

	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	if active != nil && active.id == id {
		active.cancel()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-active.done:
		}
		return nil
	}

	run.Status = store.RunAborted
	run.UpdatedAt = m.clk.Now()
	return m.runs.Update(ctx, run)
}

// AutoBuyRecords returns the auto-buy outcome ledger for the latest run.
func (m *Machine) AutoBuyRecords() []autobuy.Record {
	m.mu.Lock()
	buyer := m.buyer
	m.mu.Unlock()
	if buyer == nil {
		return nil
	}
	return buyer.Records()
}

// AutoSellState reports the auto-sell automaton state for one wallet.
func (m *Machine) AutoSellState(id wallet.WalletID) (autosell.State, bool) {
	m.mu.Lock()
	seller := m.seller
	m.mu.Unlock()
	if seller == nil {
		return "", false
	}
	return seller.State(id)
}

// --- run execution ---

func (m *Machine) setStage(ctx context.Context, run *store.Run, stage store.Stage) {
	run.Stage = stage
	run.UpdatedAt = m.clk.Now()
	if err := m.runs.Update(ctx, run); err != nil {
		m.log.Error().Err(err).Str("run_id", run.ID).Msg("persist stage change failed")
	}
	m.log.Info().Str("run_id", run.ID).Str("stage", string(stage)).Int("percent", stage.Percent()).Msg("stage")
	m.emit(Event{RunID: run.ID, Stage: stage, Status: run.Status, Percent: stage.Percent()})
}

func (m *Machine) finish(ctx context.Context, run *store.Run, status store.RunStatus, reason string) {
	run.Status = status
	run.FailureReason = reason
	run.UpdatedAt = m.clk.Now()
	if err := m.runs.Update(ctx, run); err != nil {
		m.log.Error().Err(err).Str("run_id", run.ID).Msg("persist terminal state failed")
	}
	ev := Event{RunID: run.ID, Stage: run.Stage, Status: status, Percent: run.Progress(), Message: reason}
	if status == store.RunSuccess {
		ev.Percent = 100
	}
	m.emit(ev)
}

// fail persists a FAILED terminal state. The context may already be
// cancelled, so persistence uses a detached context.
func (m *Machine) fail(run *store.Run, reason string) {
	m.log.Error().Str("run_id", run.ID).Str("stage", string(run.Stage)).Str("reason", reason).Msg("launch failed")
	m.finish(context.Background(), run, store.RunFailed, reason)
}

func (m *Machine) aborted(run *store.Run) {
	m.log.Info().Str("run_id", run.ID).Msg("launch aborted")
	m.finish(context.Background(), run, store.RunAborted, "aborted")
}

func (m *Machine) execute(ctx context.Context, run *store.Run, cfg config.LaunchConfig) {
	// INITIALIZING: budget check against the master balance before anything
	// moves.
	master, ok := m.wallets.Master()
	if !ok {
		m.fail(run, "master wallet not registered")
		return
	}
	balance, err := m.chain.GetBalance(ctx, master.Address())
	if err != nil {
		m.fail(run, fmt.Sprintf("read master balance: %v", err))
		return
	}
	m.wallets.UpdateBalance(master.ID, balance)
	if err := cfg.CheckMasterBalance(balance); err != nil {
		m.fail(run, err.Error())
		return
	}
	if ctx.Err() != nil {
		m.aborted(run)
		return
	}

	// CREATING_WALLETS
	m.setStage(ctx, run, store.StageCreatingWallets)
	creator, bundleWallets, holders, mint, err := m.prepareWallets(ctx, run, cfg)
	if err != nil {
		m.fail(run, err.Error())
		return
	}
	if ctx.Err() != nil {
		m.aborted(run)
		return
	}

	// FUNDING_WALLETS
	m.setStage(ctx, run, store.StageFundingWallets)
	funded, err := m.fundWallets(ctx, cfg, master, creator, bundleWallets, holders)
	if err != nil {
		if ctx.Err() != nil {
			m.aborted(run)
			return
		}
		m.fail(run, err.Error())
		return
	}

	// CREATING_LUT
	m.setStage(ctx, run, store.StageCreatingLUT)
	tableAddrs, err := m.tableAddresses(mint.PublicKey())
	if err != nil {
		m.fail(run, err.Error())
		return
	}
	table, err := m.bundler.PrepareTable(ctx, master, tableAddrs)
	if err != nil {
		if ctx.Err() != nil {
			m.aborted(run)
			return
		}
		m.fail(run, fmt.Sprintf("prepare lookup table: %v", err))
		return
	}

	// BUILDING_BUNDLE
	m.setStage(ctx, run, store.StageBuildingBundle)
	params := bundle.Params{
		Config:         cfg,
		Creator:        creator,
		BundleWallets:  bundleWallets,
		Mint:           mint,
		Table:          table,
		TableAddresses: tableAddrs,
	}
	if err := m.bundler.VerifyBalances(ctx, params); err != nil {
		m.fail(run, fmt.Sprintf("pre-bundle balance check: %v", err))
		return
	}
	txs, err := m.bundler.Assemble(ctx, params)
	if err != nil {
		m.fail(run, fmt.Sprintf("assemble bundle: %v", err))
		return
	}
	run.Mint = mint.PublicKey().String()
	if ctx.Err() != nil {
		m.aborted(run)
		return
	}

	// SUBMITTING_BUNDLE
	m.setStage(ctx, run, store.StageSubmittingBundle)
	bundleID, err := m.bundler.Submit(ctx, txs)
	if err != nil {
		m.fail(run, fmt.Sprintf("submit bundle: %v", err))
		return
	}
	run.BundleID = bundleID

	// CONFIRMING
	m.setStage(ctx, run, store.StageConfirming)
	outcome, err := m.bundler.Confirm(ctx, bundleID)
	if err != nil && ctx.Err() != nil {
		m.aborted(run)
		return
	}
	if outcome != jito.BundleLanded {
		reason := "bundle rejected"
		if err != nil {
			reason = err.Error()
		}
		m.fail(run, reason)
		return
	}

	m.finish(ctx, run, store.RunSuccess, "")
	m.log.Info().Str("run_id", run.ID).Str("mint", run.Mint).Str("bundle_id", bundleID).Msg("launch landed")

	// Launch-own bundle buys count against the external volume total.
	m.feed.RecordOwn(cfg.CreatorBuyLamports)
	for _, amt := range cfg.BundleBuys {
		m.feed.RecordOwn(amt)
	}

	m.startAutomation(ctx, cfg, mint.PublicKey(), funded)
}

// prepareWallets assembles the run's wallet roster, generating what the set
// does not already hold and persisting every generated key before funding.
func (m *Machine) prepareWallets(ctx context.Context, run *store.Run, cfg config.LaunchConfig) (wallet.Wallet, []wallet.Wallet, []wallet.Wallet, wallet.Signer, error) {
	generated := func(role wallet.Role) (wallet.Wallet, error) {
		local, err := wallet.NewEphemeral()
		if err != nil {
			return wallet.Wallet{}, fmt.Errorf("generate %s wallet: %w", role, err)
		}
		id := m.wallets.Add(role, wallet.SourceGenerated, local)
		run.Keys = append(run.Keys, store.KeyRecord{
			Address:    string(id),
			PrivateKey: local.ExportBase58(),
			Role:       string(role),
		})
		w, _ := m.wallets.Get(id)
		return w, nil
	}

	fill := func(role wallet.Role, want int) ([]wallet.Wallet, error) {
		have := m.wallets.ByRole(role)
		for len(have) < want {
			w, err := generated(role)
			if err != nil {
				return nil, err
			}
			have = append(have, w)
		}
		return have[:want], nil
	}

	creators, err := fill(wallet.RoleCreator, 1)
	if err != nil {
		return wallet.Wallet{}, nil, nil, nil, err
	}
	bundleWallets, err := fill(wallet.RoleBundle, len(cfg.BundleBuys))
	if err != nil {
		return wallet.Wallet{}, nil, nil, nil, err
	}
	holders, err := fill(wallet.RoleHolder, len(cfg.Holders))
	if err != nil {
		return wallet.Wallet{}, nil, nil, nil, err
	}

	mint, err := wallet.NewEphemeral()
	if err != nil {
		return wallet.Wallet{}, nil, nil, nil, fmt.Errorf("generate mint keypair: %w", err)
	}
	run.Keys = append(run.Keys, store.KeyRecord{
		Address:    mint.PublicKey().String(),
		PrivateKey: mint.ExportBase58(),
		Role:       "mint",
	})

	run.UpdatedAt = m.clk.Now()
	if err := m.runs.Update(ctx, run); err != nil {
		return wallet.Wallet{}, nil, nil, nil, fmt.Errorf("persist generated keys: %w", err)
	}
	return creators[0], bundleWallets, holders, mint, nil
}

// fundWallets routes funds to every participant. A failed creator or bundle
// wallet kills the run since the bundle cannot land without them; a failed
// holder is dropped from post-launch automation and the rest proceed.
func (m *Machine) fundWallets(ctx context.Context, cfg config.LaunchConfig, master, creator wallet.Wallet, bundleWallets, holders []wallet.Wallet) ([]fundedHolder, error) {
	var dests []funding.Destination
	if !cfg.CreatorSelfFunded {
		dests = append(dests, funding.Destination{
			ID:      creator.ID,
			Address: creator.Address(),
			Amount:  cfg.PaddedBuy(cfg.CreatorBuyLamports) + cfg.JitoTipLamports + fundingCushion,
		})
	}
	for i, w := range bundleWallets {
		dests = append(dests, funding.Destination{
			ID:      w.ID,
			Address: w.Address(),
			Amount:  cfg.PaddedBuy(cfg.BundleBuys[i]) + fundingCushion,
		})
	}
	all := make([]fundedHolder, 0, len(holders))
	holderIDs := make(map[wallet.WalletID]bool, len(holders))
	for i, w := range holders {
		all = append(all, fundedHolder{w: w, cfg: cfg.Holders[i]})
		holderIDs[w.ID] = true
		if cfg.Holders[i].PreFunded {
			continue
		}
		dests = append(dests, funding.Destination{
			ID:      w.ID,
			Address: w.Address(),
			Amount:  cfg.PaddedBuy(cfg.Holders[i].BuyLamports) + fundingCushion,
		})
	}
	if len(dests) == 0 {
		return all, nil
	}

	_, errs := m.funder.RouteAll(ctx, master, dests, cfg.Route, cfg.Hops)
	if len(errs) == 0 {
		return all, nil
	}

	dropped := make(map[wallet.WalletID]bool)
	for id, err := range errs {
		if !holderIDs[id] {
			return nil, fmt.Errorf("fund %s: %v", id, err)
		}
		m.log.Warn().Err(err).Str("wallet", string(id)).Msg("holder funding failed, dropping from automation")
		dropped[id] = true
	}

	kept := all[:0:0]
	for _, h := range all {
		if !dropped[h.w.ID] {
			kept = append(kept, h)
		}
	}
	return kept, nil
}

// tableAddresses lists everything worth deduplicating out of the bundle
// transactions: the wallet roster plus the program accounts every buy
// touches.
func (m *Machine) tableAddresses(mint solana.PublicKey) ([]solana.PublicKey, error) {
	derived, err := bundle.CommonAccounts(mint)
	if err != nil {
		return nil, fmt.Errorf("derive table accounts: %v", err)
	}
	return append(m.wallets.Addresses(), derived...), nil
}

// startAutomation arms per-holder auto-buy rules and auto-sell guards after
// a landed launch. The run context stays alive for automation; aborting the
// run tears it down.
func (m *Machine) startAutomation(ctx context.Context, cfg config.LaunchConfig, mint solana.PublicKey, holders []fundedHolder) {
	buyFn := func(ctx context.Context, id wallet.WalletID, lamports uint64) error {
		w, ok := m.wallets.Get(id)
		if !ok {
			return types.ErrWalletNotFound
		}
		return m.trader.Buy(ctx, w, mint, lamports)
	}
	sellFn := func(ctx context.Context, id wallet.WalletID) error {
		w, ok := m.wallets.Get(id)
		if !ok {
			return types.ErrWalletNotFound
		}
		return m.trader.Sell(ctx, w, mint)
	}

	buyer := autobuy.NewScheduler(m.feed, buyFn, autobuy.WithClock(m.clk), autobuy.WithLogger(m.log))
	seller := autosell.NewEngine(m.feed, sellFn, autosell.WithClock(m.clk), autosell.WithLogger(m.log))
	m.mu.Lock()
	m.buyer = buyer
	m.seller = seller
	m.mu.Unlock()

	var rules []autobuy.Rule
	for _, h := range holders {
		if h.cfg.AutoBuy != nil {
			rules = append(rules, autobuy.Rule{
				WalletID:                h.w.ID,
				BuyLamports:             h.cfg.BuyLamports,
				Delay:                   time.Duration(h.cfg.AutoBuy.DelaySec) * time.Second,
				SafetyThresholdLamports: h.cfg.AutoBuy.SafetyThresholdLamports,
			})
		}
		if h.cfg.AutoSellThresholdLamports > 0 {
			err := seller.Arm(ctx, autosell.Config{
				WalletID:          h.w.ID,
				ThresholdLamports: h.cfg.AutoSellThresholdLamports,
				ConfirmationDelay: time.Duration(cfg.AutoSellConfirmationDelaySec) * time.Second,
			})
			if err != nil {
				m.log.Warn().Err(err).Str("wallet", string(h.w.ID)).Msg("auto-sell arm failed")
			}
		}
	}
	buyer.Schedule(ctx, rules)
}
