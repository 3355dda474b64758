package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/0xkatana/launchkit/pkg/config"
	"github.com/0xkatana/launchkit/pkg/launch"
	"github.com/0xkatana/launchkit/pkg/pumpfun"
	"github.com/0xkatana/launchkit/pkg/store"
	"github.com/0xkatana/launchkit/pkg/volume"
)

func newLaunchCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "One-shot token launch runs",
	}
	cmd.AddCommand(
		newLaunchStartCmd(opts),
		newLaunchStatusCmd(opts),
		newLaunchListCmd(opts),
		newLaunchAbortCmd(opts),
	)
	return cmd
}

// loadSettings reads the flat key/value settings document.
func loadSettings(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var settings map[string]string
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return settings, nil
}

func newLaunchStartCmd(opts *globalOpts) *cobra.Command {
	var (
		settingsPath string
		follow       bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a launch run from a settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := newDeps(cmd, opts)
			if err != nil {
				return err
			}

			settings, err := loadSettings(settingsPath)
			if err != nil {
				return err
			}
			cfg, err := config.FromSettings(settings)
			if err != nil {
				return err
			}

			events := deps.machine.Subscribe()
			runID, err := deps.machine.Start(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run: %s\n", runID)

			if !follow {
				return nil
			}
			return followRun(cmd, deps, runID, events)
		},
	}

	cmd.Flags().StringVar(&settingsPath, "settings", "", "path to settings JSON (flat key/value map)")
	cmd.Flags().BoolVar(&follow, "follow", true, "stream progress and keep automation running")
	_ = cmd.MarkFlagRequired("settings")

	return cmd
}

// followRun prints progress events until the run terminates, then keeps the
// process alive while post-launch automation is running.
func followRun(cmd *cobra.Command, deps *runtimeDeps, runID string, events <-chan launch.Event) error {
	ctx := cmd.Context()
	var ingestCancel context.CancelFunc

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.RunID != runID {
				continue
			}
			if ev.Message != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "[%3d%%] %s %s: %s\n", ev.Percent, ev.Stage, ev.Status, ev.Message)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "[%3d%%] %s %s\n", ev.Percent, ev.Stage, ev.Status)
			}

			switch ev.Status {
			case store.RunFailed, store.RunAborted:
				if ingestCancel != nil {
					ingestCancel()
				}
				return fmt.Errorf("launch %s: %s", ev.Status, ev.Message)
			case store.RunSuccess:
				run, err := deps.machine.Status(ctx, runID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "mint: %s\nbundle: %s\n", run.Mint, run.BundleID)
				ingestCancel = startIngester(ctx, deps, run.Mint)
				fmt.Fprintln(cmd.OutOrStdout(), "automation running, ctrl-c to stop")
			}
		}
	}
}

// startIngester feeds external volume from the bonding curve account stream.
func startIngester(ctx context.Context, deps *runtimeDeps, mintStr string) context.CancelFunc {
	mint, err := solana.PublicKeyFromBase58(mintStr)
	if err != nil {
		deps.log.Error().Err(err).Msg("bad mint for volume stream")
		return func() {}
	}
	addrs, err := pumpfun.Derive(mint)
	if err != nil {
		deps.log.Error().Err(err).Msg("derive bonding curve for volume stream")
		return func() {}
	}

	ingestCtx, cancel := context.WithCancel(ctx)
	ing := volume.NewIngester(deps.wsURL, addrs.BondingCurve, deps.feed, deps.log)
	go func() {
		if err := ing.Run(ingestCtx); err != nil && ingestCtx.Err() == nil {
			deps.log.Error().Err(err).Msg("volume stream stopped")
		}
	}()
	return cancel
}

func newLaunchStatusCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a run's stage, progress, and outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := newDeps(cmd, opts)
			if err != nil {
				return err
			}
			run, err := deps.machine.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRun(cmd, run)
			return nil
		},
	}
	return cmd
}

func newLaunchListCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := newDeps(cmd, opts)
			if err != nil {
				return err
			}
			runs, err := deps.machine.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, run := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s %-18s %3d%%  %s\n",
					run.ID, run.Status, run.Stage, run.Progress(), run.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newLaunchAbortCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "abort <run-id>",
		Short: "Abort an in-flight run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := newDeps(cmd, opts)
			if err != nil {
				return err
			}
			if err := deps.machine.Abort(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s aborted\n", args[0])
			return nil
		},
	}
}

func printRun(cmd *cobra.Command, run *store.Run) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:       %s\n", run.ID)
	fmt.Fprintf(out, "status:   %s\n", run.Status)
	fmt.Fprintf(out, "stage:    %s (%d%%)\n", run.Stage, run.Progress())
	if run.Mint != "" {
		fmt.Fprintf(out, "mint:     %s\n", run.Mint)
	}
	if run.BundleID != "" {
		fmt.Fprintf(out, "bundle:   %s\n", run.BundleID)
	}
	if run.FailureReason != "" {
		fmt.Fprintf(out, "failure:  %s\n", run.FailureReason)
	}
	fmt.Fprintf(out, "created:  %s\n", run.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "updated:  %s\n", run.UpdatedAt.Format(time.RFC3339))
	if len(run.Keys) > 0 {
		fmt.Fprintf(out, "wallets:  %d generated\n", len(run.Keys))
	}
}
