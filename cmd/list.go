package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sstent/zwiftsync/internal/config"
	"github.com/sstent/zwiftsync/internal/store"
)

const pageSize = 20

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked activities",
	Long: `List activities from the activity store with various filters:
- All activities
- Pending activities (queued for upload)
- Uploaded activities
- Failed activities (processed but not uploaded)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get flag values
		listPending, _ := cmd.Flags().GetBool("pending")
		listUploaded, _ := cmd.Flags().GetBool("uploaded")
		listFailed, _ := cmd.Flags().GetBool("failed")

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		s, _, err := store.LoadOrCreate(cfg.StorePath)
		if err != nil {
			return err
		}

		var filtered []store.Record
		for _, r := range s.Activities {
			switch {
			case listPending && r.Processed:
				continue
			case listUploaded && !r.Uploaded:
				continue
			case listFailed && (r.Uploaded || !r.Processed):
				continue
			}
			filtered = append(filtered, r)
		}

		if len(filtered) == 0 {
			fmt.Println("No activities found matching the criteria")
			return nil
		}

		for start := 0; start < len(filtered); start += pageSize {
			end := start + pageSize
			if end > len(filtered) {
				end = len(filtered)
			}
			for _, r := range filtered[start:end] {
				fmt.Printf("%s | %s\n", status(r), r.Filename)
			}

			// Only prompt if there are more results
			if end < len(filtered) {
				fmt.Printf("\nPage %d (%d activities shown) - Show more? (y/n): ", start/pageSize+1, end)
				var response string
				fmt.Scanln(&response)
				if strings.ToLower(response) != "y" {
					return nil
				}
			}
		}

		uploaded, failed, pending := s.Counts()
		fmt.Printf("\nTotal: %d uploaded, %d failed, %d pending", uploaded, failed, pending)
		if s.LastChecked != nil {
			fmt.Printf(" (last checked %s)", s.LastChecked.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
		return nil
	},
}

func status(r store.Record) string {
	switch {
	case r.Uploaded:
		return "✅ Uploaded  "
	case r.Processed:
		return "❌ Not Uploaded"
	default:
		return "⏳ Pending   "
	}
}

func init() {
	listCmd.Flags().Bool("all", false, "List all activities")
	listCmd.Flags().Bool("pending", false, "List activities queued for upload")
	listCmd.Flags().Bool("uploaded", false, "List activities that have been uploaded")
	listCmd.Flags().Bool("failed", false, "List activities whose upload failed")

	listCmd.MarkFlagsMutuallyExclusive("all", "pending", "uploaded", "failed")

	rootCmd.AddCommand(listCmd)
}
