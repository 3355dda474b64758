package main

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/0xkatana/launchkit/pkg/config"
	"github.com/0xkatana/launchkit/pkg/wallet"
)

func newWalletsCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallets",
		Short: "Wallet generation and inspection",
	}
	cmd.AddCommand(
		newWalletsGenCmd(),
		newWalletsBalanceCmd(opts),
	)
	return cmd
}

func newWalletsGenCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate keypairs and print them base58-encoded",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("count must be >= 1")
			}
			for i := 0; i < count; i++ {
				w, err := wallet.NewEphemeral()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", w.PublicKey(), w.ExportBase58())
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 1, "number of wallets to generate")
	return cmd
}

func newWalletsBalanceCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance <address>",
		Short: "Show an address's lamport balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := newDeps(cmd, opts)
			if err != nil {
				return err
			}
			addr, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}
			balance, err := deps.rpc.GetBalance(cmd.Context(), addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d lamports (%.6f SOL)\n", balance, config.LamportsToSOL(balance))
			return nil
		},
	}
	return cmd
}
