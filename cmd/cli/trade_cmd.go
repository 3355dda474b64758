package main

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/0xkatana/launchkit/pkg/config"
	"github.com/0xkatana/launchkit/pkg/wallet"
)

func newTradeCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Manual curve trades from a single wallet",
	}
	cmd.AddCommand(
		newTradeBuyCmd(opts),
		newTradeSellCmd(opts),
	)
	return cmd
}

// tradeWallet loads a wallet from a keygen file and registers it so the
// executor's per-wallet lock applies.
func tradeWallet(deps *runtimeDeps, keyPath string) (wallet.Wallet, error) {
	local, err := wallet.NewLocalFromKeygen(keyPath)
	if err != nil {
		return wallet.Wallet{}, err
	}
	id := deps.wallets.Add(wallet.RoleHolder, wallet.SourceImported, local)
	w, _ := deps.wallets.Get(id)
	return w, nil
}

func newTradeBuyCmd(opts *globalOpts) *cobra.Command {
	var (
		mintStr string
		keyPath string
		sol     float64
	)

	cmd := &cobra.Command{
		Use:   "buy",
		Short: "Buy on the bonding curve",
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
			if err := deps.trader.Buy(cmd.Context(), w, mint, config.SOLToLamports(sol)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "buy confirmed")
			return nil
		},
	}

	cmd.Flags().StringVar(&mintStr, "mint", "", "mint pubkey")
	cmd.Flags().StringVar(&keyPath, "key", "", "path to solana-keygen json for the buying wallet")
	cmd.Flags().Float64Var(&sol, "sol", 0, "SOL to spend")
	_ = cmd.MarkFlagRequired("mint")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("sol")

	return cmd
}

func newTradeSellCmd(opts *globalOpts) *cobra.Command {
	var (
		mintStr string
		keyPath string
	)

	cmd := &cobra.Command{
		Use:   "sell",
		Short: "Dump the wallet's full position",
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
			if err := deps.trader.Sell(cmd.Context(), w, mint); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sell submitted")
			return nil
		},
	}

	cmd.Flags().StringVar(&mintStr, "mint", "", "mint pubkey")
	cmd.Flags().StringVar(&keyPath, "key", "", "path to solana-keygen json for the selling wallet")
	_ = cmd.MarkFlagRequired("mint")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}
