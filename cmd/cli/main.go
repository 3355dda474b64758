package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/0xkatana/launchkit/pkg/bundle"
	"github.com/0xkatana/launchkit/pkg/config"
	"github.com/0xkatana/launchkit/pkg/executor"
	"github.com/0xkatana/launchkit/pkg/funding"
	"github.com/0xkatana/launchkit/pkg/jito"
	"github.com/0xkatana/launchkit/pkg/launch"
	"github.com/0xkatana/launchkit/pkg/rpc"
	"github.com/0xkatana/launchkit/pkg/store"
	filestore "github.com/0xkatana/launchkit/pkg/store/file"
	"github.com/0xkatana/launchkit/pkg/txbuilder"
	"github.com/0xkatana/launchkit/pkg/volume"
	"github.com/0xkatana/launchkit/pkg/wallet"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalOpts struct {
	rpcURL         string
	wsURL          string
	commitment     string
	masterPath     string
	jitoEndpoint   string
	jitoUUID       string
	runStorePath   string
	skipPreflight  bool
	retryAttempts  int
	retryBackoffMs int
	rateLimitRPS   float64
	logLevel       string
	timeoutSec     int
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}

	root := &cobra.Command{
		Use:   "launchcli",
		Short: "Token launch orchestrator (atomic bundle + trading automation)",
	}

	root.PersistentFlags().StringVar(&opts.rpcURL, "rpc-url", "", "RPC endpoint (default mainnet if empty)")
	root.PersistentFlags().StringVar(&opts.wsURL, "ws-url", "", "websocket endpoint (derived from rpc-url if empty)")
	root.PersistentFlags().StringVar(&opts.commitment, "commitment", "confirmed", "RPC commitment level")
	root.PersistentFlags().StringVar(&opts.masterPath, "master", "", "path to solana-keygen json for the master wallet")
	root.PersistentFlags().StringVar(&opts.jitoEndpoint, "jito-endpoint", "", "Jito block engine endpoint (rotate mainnet set if empty)")
	root.PersistentFlags().StringVar(&opts.jitoUUID, "jito-uuid", "", "Jito auth UUID (optional)")
	root.PersistentFlags().StringVar(&opts.runStorePath, "run-store", defaultRunStorePath(), "path to the run store JSON file")
	root.PersistentFlags().BoolVar(&opts.skipPreflight, "skip-preflight", true, "skip preflight checks")
	root.PersistentFlags().IntVar(&opts.retryAttempts, "retry-attempts", 3, "RPC retry attempts")
	root.PersistentFlags().IntVar(&opts.retryBackoffMs, "retry-backoff-ms", 150, "initial backoff in ms")
	root.PersistentFlags().Float64Var(&opts.rateLimitRPS, "rate-limit-rps", 8, "rate limit RPS (0 to disable)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	root.PersistentFlags().IntVar(&opts.timeoutSec, "timeout-sec", 20, "RPC timeout seconds")

	root.AddCommand(
		newConfigCmd(),
		newLaunchCmd(opts),
		newWalletsCmd(opts),
		newTradeCmd(opts),
		newAutoBuyCmd(opts),
		newAutoSellCmd(opts),
	)

	return root
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			rpcCfg := config.DefaultRPCConfig()
			launchCfg := config.DefaultLaunchConfig()
			fmt.Fprintf(cmd.OutOrStdout(), "network=%s\nrpc=%s\nws=%s\ncommitment=%s\n",
				rpcCfg.Network, rpcCfg.ResolveRPCURL(), rpcCfg.ResolveWSURL(), rpcCfg.Commitment)
			fmt.Fprintf(cmd.OutOrStdout(), "creator_buy_sol=%.3f\njito_tip_sol=%.4f\nsafety_buffer_sol=%.3f\nauto_sell_delay_sec=%d\n",
				config.LamportsToSOL(launchCfg.CreatorBuyLamports),
				config.LamportsToSOL(launchCfg.JitoTipLamports),
				config.LamportsToSOL(launchCfg.SafetyBufferLamports),
				launchCfg.AutoSellConfirmationDelaySec)
			return nil
		},
	}
}

func defaultRunStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "launchkit-runs.json"
	}
	return home + "/.launchkit/runs.json"
}

// runtimeDeps is the assembled stack behind every command.
type runtimeDeps struct {
	rpc     *rpc.Client
	builder *txbuilder.Builder
	exec    *executor.Executor
	engine  *jito.Client
	wallets *wallet.Set
	feed    *volume.Feed
	runs    store.RunStore
	machine *launch.Machine
	trader  *launch.ChainTrader
	wsURL   string
	log     zerolog.Logger
}

func newDeps(cmd *cobra.Command, opts *globalOpts) (*runtimeDeps, error) {
	cfg := config.DefaultRPCConfig()
	if opts.rpcURL != "" {
		cfg.RPCURL = opts.rpcURL
	}
	if opts.wsURL != "" {
		cfg.WSURL = opts.wsURL
	}
	if opts.commitment != "" {
		cfg.Commitment = opts.commitment
	}
	cfg.RateLimit.RPS = opts.rateLimitRPS
	cfg.Retry.MaxAttempts = opts.retryAttempts
	if opts.retryBackoffMs > 0 {
		cfg.Retry.InitialBackoff = time.Duration(opts.retryBackoffMs) * time.Millisecond
	}
	if opts.timeoutSec > 0 {
		cfg.Timeout = time.Duration(opts.timeoutSec) * time.Second
	}
	log := zerolog.New(cmd.ErrOrStderr()).With().Timestamp().Logger().Level(parseLogLevel(opts.logLevel))
	cfg.Logger = log

	client := rpc.NewClient(cfg)
	builder := txbuilder.NewBuilder(client, solanarpc.CommitmentType(cfg.Commitment)).
		WithSkipPreflight(opts.skipPreflight)
	exec := executor.New(client,
		executor.WithLogger(log),
		executor.WithSkipPreflight(opts.skipPreflight),
	)

	var engine *jito.Client
	if opts.jitoEndpoint != "" {
		engine = jito.NewClient(opts.jitoEndpoint, opts.jitoUUID)
	} else {
		engine = jito.NewClientWithEndpoints(nil, opts.jitoUUID)
	}

	wallets := wallet.NewSet()
	if opts.masterPath != "" {
		master, err := wallet.NewLocalFromKeygen(opts.masterPath)
		if err != nil {
			return nil, err
		}
		wallets.Add(wallet.RoleMaster, wallet.SourceImported, master)
	}

	feed := volume.NewFeed()
	runs, err := filestore.NewRunStore(opts.runStorePath)
	if err != nil {
		return nil, err
	}

	router := funding.NewRouter(builder, exec, funding.WithLogger(log))
	bundler := bundle.New(builder, exec, engine, client, bundle.WithLogger(log))
	trader := launch.NewChainTrader(builder, exec, client, feed, launch.WithTraderLogger(log))
	machine := launch.NewMachine(runs, wallets, router, bundler, client, trader, feed, launch.WithLogger(log))

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	if _, err := client.GetLatestBlockhash(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: rpc ping failed: %v\n", err)
	}

	return &runtimeDeps{
		rpc:     client,
		builder: builder,
		exec:    exec,
		engine:  engine,
		wallets: wallets,
		feed:    feed,
		runs:    runs,
		machine: machine,
		trader:  trader,
		wsURL:   cfg.ResolveWSURL(),
		log:     log,
	}, nil
}

func parseLogLevel(lvl string) zerolog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
