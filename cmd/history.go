package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sstent/zwiftsync/internal/config"
	"github.com/sstent/zwiftsync/internal/db"
	"github.com/sstent/zwiftsync/internal/upload"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show upload attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		onlyFailed, _ := cmd.Flags().GetBool("failed")

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		database, err := db.NewDatabase(cfg.HistoryPath)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()

		page := 1
		totalShown := 0
		for {
			var attempts []upload.Attempt
			if onlyFailed {
				attempts, err = database.GetFailedPaginated(page, pageSize)
			} else {
				attempts, err = database.GetAllPaginated(page, pageSize)
			}
			if err != nil {
				return fmt.Errorf("failed to get upload history: %w", err)
			}

			if len(attempts) == 0 {
				if totalShown == 0 {
					fmt.Println("No upload attempts recorded")
				}
				break
			}

			for _, a := range attempts {
				result := "✅"
				if !a.Success {
					result = "❌ " + a.Error
				}
				fmt.Printf("%s | %-8s | %s | %s\n",
					a.AttemptedAt.Format("2006-01-02 15:04:05"),
					a.Destination,
					a.Filename,
					result)
				totalShown++
			}

			if len(attempts) < pageSize {
				fmt.Printf("\nTotal: %d attempts shown\n", totalShown)
				break
			}
			fmt.Printf("\nPage %d (%d attempts shown) - Show more? (y/n): ", page, totalShown)
			var response string
			fmt.Scanln(&response)
			if strings.ToLower(response) != "y" {
				break
			}
			page++
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Bool("failed", false, "Only show failed attempts")
	rootCmd.AddCommand(historyCmd)
}
