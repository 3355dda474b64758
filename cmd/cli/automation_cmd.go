package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/0xkatana/launchkit/pkg/autobuy"
	"github.com/0xkatana/launchkit/pkg/autosell"
	"github.com/0xkatana/launchkit/pkg/config"
	"github.com/0xkatana/launchkit/pkg/pumpfun"
	"github.com/0xkatana/launchkit/pkg/volume"
	"github.com/0xkatana/launchkit/pkg/wallet"
)

func newAutoSellCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autosell",
		Short: "Standalone MEV-guard sell automation",
	}
	cmd.AddCommand(newAutoSellWatchCmd(opts))
	return cmd
}

func newAutoBuyCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autobuy",
		Short: "Standalone delayed-buy automation",
	}
	cmd.AddCommand(newAutoBuyScheduleCmd(opts))
	return cmd
}

// streamCurveVolume starts the websocket ingester for a mint's bonding curve
// and feeds it into deps.feed.
func streamCurveVolume(ctx context.Context, deps *runtimeDeps, mint solana.PublicKey) error {
	addrs, err := pumpfun.Derive(mint)
	if err != nil {
		return fmt.Errorf("derive curve: %w", err)
	}
	ing := volume.NewIngester(deps.wsURL, addrs.BondingCurve, deps.feed, deps.log)
	go func() {
		if err := ing.Run(ctx); err != nil && ctx.Err() == nil {
			deps.log.Error().Err(err).Msg("volume stream stopped")
		}
	}()
	return nil
}

func newAutoSellWatchCmd(opts *globalOpts) *cobra.Command {
	var (
		mintStr      string
		keyPath      string
		thresholdSol float64
		delaySec     int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Arm a guard: dump the position when external volume holds above the threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := newDeps(cmd, opts)
			if err != nil {
				return err
			}
			mint, err := solana.PublicKeyFromBase58(mintStr)
			if err != nil {
				return fmt.Errorf("invalid mint: %w", err)
			}
			w, err := tradeWallet(deps, keyPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := streamCurveVolume(ctx, deps, mint); err != nil {
				return err
			}

			engine := autosell.NewEngine(deps.feed, func(ctx context.Context, id wallet.WalletID) error {
				return deps.trader.Sell(ctx, w, mint)
			}, autosell.WithLogger(deps.log))

			err = engine.Arm(ctx, autosell.Config{
				WalletID:          w.ID,
				ThresholdLamports: config.SOLToLamports(thresholdSol),
				ConfirmationDelay: time.Duration(delaySec) * time.Second,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "guarding %s on mint %s, ctrl-c to stop\n", w.ID, mint)
			engine.Wait()
			if state, ok := engine.State(w.ID); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "final state: %s\n", state)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mintStr, "mint", "", "mint pubkey")
	cmd.Flags().StringVar(&keyPath, "key", "", "path to solana-keygen json for the guarded wallet")
	cmd.Flags().Float64Var(&thresholdSol, "threshold-sol", 1.0, "external volume trigger in SOL")
	cmd.Flags().IntVar(&delaySec, "delay-sec", 12, "confirmation delay before selling")
	_ = cmd.MarkFlagRequired("mint")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func newAutoBuyScheduleCmd(opts *globalOpts) *cobra.Command {
	var (
		mintStr      string
		keyPath      string
		sol          float64
		delaySec     int
		thresholdSol float64
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a delayed buy, skipped if external volume spikes first",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := newDeps(cmd, opts)
			if err != nil {
				return err
			}
			mint, err := solana.PublicKeyFromBase58(mintStr)
			if err != nil {
				return fmt.Errorf("invalid mint: %w", err)
			}
			w, err := tradeWallet(deps, keyPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := streamCurveVolume(ctx, deps, mint); err != nil {
				return err
			}

			sched := autobuy.NewScheduler(deps.feed, func(ctx context.Context, id wallet.WalletID, lamports uint64) error {
				return deps.trader.Buy(ctx, w, mint, lamports)
			}, autobuy.WithLogger(deps.log))

			sched.Schedule(ctx, []autobuy.Rule{{
				WalletID:                w.ID,
				BuyLamports:             config.SOLToLamports(sol),
				Delay:                   time.Duration(delaySec) * time.Second,
				SafetyThresholdLamports: config.SOLToLamports(thresholdSol),
			}})
			sched.Wait()

			for _, rec := range sched.Records() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", rec.WalletID, rec.Outcome)
				if rec.Err != nil {
					return rec.Err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mintStr, "mint", "", "mint pubkey")
	cmd.Flags().StringVar(&keyPath, "key", "", "path to solana-keygen json for the buying wallet")
	cmd.Flags().Float64Var(&sol, "sol", 0, "SOL to spend")
	cmd.Flags().IntVar(&delaySec, "delay-sec", 0, "delay before the buy fires")
	cmd.Flags().Float64Var(&thresholdSol, "threshold-sol", 0, "skip the buy if external volume exceeds this (0 disables)")
	_ = cmd.MarkFlagRequired("mint")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("sol")

	return cmd
}
