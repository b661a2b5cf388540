package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sstent/zwiftsync/internal/config"
	"github.com/sstent/zwiftsync/internal/runner"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch Zwift and upload the activities it records",
	Long: `Checks authorisation, records the activity files already present, launches
Zwift, waits for it to exit and uploads every activity recorded in the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, (*runner.Runner).Run)
	},
}

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload new activities without launching Zwift",
	Long: `Scans the activity directory and uploads every activity that appeared since
the last run. Use it when Zwift was started outside zwiftsync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, (*runner.Runner).Sync)
	},
}

func execute(cmd *cobra.Command, fn func(*runner.Runner, context.Context) (runner.Result, error)) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	r, closeFn, err := newRunner(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := fn(r, ctx)
	if err != nil {
		return err
	}

	if res.Created {
		fmt.Printf("🆕 Created activity store with %d past activities\n", res.Past)
	}
	fmt.Printf("\n📊 Upload summary: %d/%d activities successfully uploaded", res.Upload.Uploaded, res.Upload.Attempted)
	if res.Upload.Failed > 0 {
		fmt.Printf(" (❌ %d failed, see 'zwiftsync list --failed')", res.Upload.Failed)
	}
	fmt.Println()
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)
}
