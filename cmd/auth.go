package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sstent/zwiftsync/internal/auth"
	"github.com/sstent/zwiftsync/internal/config"
	"github.com/sstent/zwiftsync/internal/utils"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorise with the upload service",
	Long:  `Runs the authorisation flow of the configured destination, or refreshes its access token if it has expired.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		client, err := newClient(cfg)
		if err != nil {
			return err
		}

		if err := auth.NewManager(utils.Log).EnsureValid(cmd.Context(), client); err != nil {
			return err
		}
		fmt.Printf("✅ Authorised with %s\n", client.Name())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
}
