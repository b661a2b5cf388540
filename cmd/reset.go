package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sstent/zwiftsync/internal/config"
	"github.com/sstent/zwiftsync/internal/store"
	"github.com/sstent/zwiftsync/internal/utils"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset <activity>...",
	Short: "Queue failed activities for another upload attempt",
	Long: `Failed uploads are never retried automatically. reset marks the given
activities as not processed so the next run or sync uploads them again.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		lock, err := utils.NewFileLock(cfg.StorePath)
		if err != nil {
			return err
		}
		if err := lock.Lock(); err != nil {
			return err
		}
		defer lock.Unlock()

		s, _, err := store.LoadOrCreate(cfg.StorePath)
		if err != nil {
			return err
		}

		for _, name := range args {
			if err := s.Reset(name); err != nil {
				return err
			}
			fmt.Printf("🔁 %s queued for upload\n", name)
		}

		return store.Save(s, cfg.StorePath)
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
