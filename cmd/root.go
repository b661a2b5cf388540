package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sstent/zwiftsync/internal/utils"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "zwiftsync",
	Short: "ZwiftSync uploads new Zwift activities once Zwift exits",
	Long: `ZwiftSync is a CLI application that:
1. Authorises with the upload service (Tredict or Garmin Connect)
2. Records the activity files already on disk
3. Launches Zwift and waits for it to exit
4. Uploads the activities recorded during the session
5. Tracks upload status in a JSON activity store`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("loglevel")
		return utils.SetLogLevel(level)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.zwiftsync.yaml)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("destination", "", "Upload destination: tredict or garmin")
	rootCmd.PersistentFlags().String("activity-dir", "", "Directory Zwift writes activity files to")
	rootCmd.PersistentFlags().String("store", "", "Path of the JSON activity store")

	viper.BindPFlag("destination", rootCmd.PersistentFlags().Lookup("destination"))
	viper.BindPFlag("activity_dir", rootCmd.PersistentFlags().Lookup("activity-dir"))
	viper.BindPFlag("store_path", rootCmd.PersistentFlags().Lookup("store"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.AddConfigPath(filepath.Join(home, ".config", "zwiftsync"))
		viper.SetConfigName(".zwiftsync")
		viper.SetConfigType("yaml")
	}

	// ZWIFTSYNC_TREDICT_CLIENT_ID -> tredict.client_id
	viper.SetEnvPrefix("ZWIFTSYNC")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			utils.Log.WithError(err).Warn("Failed to read config file")
		}
	} else {
		utils.Log.WithField("file", viper.ConfigFileUsed()).Debug("Using config file")
	}
}
