package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Destinations supported by the upload pipeline.
const (
	DestinationTredict = "tredict"
	DestinationGarmin  = "garmin"
)

// Config holds application configuration
type Config struct {
	ActivityDir   string
	StorePath     string
	InProgress    string
	Extension     string
	LaunchPath    string
	LaunchArgs    []string
	ProcessMarker string
	PollInterval  time.Duration
	UploadPast    bool
	Destination   string
	HistoryPath   string
	RateLimit     time.Duration

	Tredict TredictConfig
	Garmin  GarminConfig
}

// TredictConfig configures the Tredict OAuth client.
type TredictConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UploadURL    string
	TokenPath    string
	RetryMax     int
}

// GarminConfig configures the Garmin Connect destination.
type GarminConfig struct {
	Email          string
	Password       string
	SessionPath    string
	SessionTimeout time.Duration
}

// SetDefaults registers default values on v. Platform specific values come
// from ResolvePlatform.
func SetDefaults(v *viper.Viper, p Platform, home string) {
	dataDir := filepath.Join(home, ".config", "zwiftsync")

	v.SetDefault("activity_dir", p.ActivityDir)
	v.SetDefault("launch_path", p.LaunchPath)
	v.SetDefault("launch_args", p.LaunchArgs)
	v.SetDefault("process_marker", p.ProcessMarker)
	v.SetDefault("store_path", filepath.Join(dataDir, "zwiftsync.json"))
	v.SetDefault("history_db", filepath.Join(dataDir, "history.db"))
	v.SetDefault("in_progress", "inProgressActivity.fit")
	v.SetDefault("extension", ".fit")
	v.SetDefault("poll_interval", "10s")
	v.SetDefault("upload_past", false)
	v.SetDefault("destination", DestinationTredict)
	v.SetDefault("rate_limit", "2s")

	v.SetDefault("tredict.client_id", "")
	v.SetDefault("tredict.client_secret", "")
	v.SetDefault("tredict.redirect_url", "https://www.tredict.com/authorization/code")
	v.SetDefault("tredict.auth_url", "https://www.tredict.com/authorization/")
	v.SetDefault("tredict.token_url", "https://www.tredict.com/user/oauth/v2/token")
	v.SetDefault("tredict.upload_url", "https://www.tredict.com/api/oauth/v2/activityUpload")
	v.SetDefault("tredict.token_path", filepath.Join(dataDir, "tredict_token.json"))
	v.SetDefault("tredict.retry_max", 2)

	v.SetDefault("garmin.email", "")
	v.SetDefault("garmin.password", "")
	v.SetDefault("garmin.session_path", filepath.Join(dataDir, "garmin_session.json"))
	v.SetDefault("garmin.session_timeout", "30m")
}

// LoadConfig builds the configuration from the global viper instance, after
// registering platform defaults for the running OS.
func LoadConfig() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to find home directory: %w", err)
	}
	SetDefaults(viper.GetViper(), ResolvePlatform(runtime.GOOS, home), home)
	return FromViper(viper.GetViper())
}

// FromViper reads a Config out of v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		InProgress:    v.GetString("in_progress"),
		Extension:     v.GetString("extension"),
		LaunchPath:    v.GetString("launch_path"),
		LaunchArgs:    v.GetStringSlice("launch_args"),
		ProcessMarker: v.GetString("process_marker"),
		PollInterval:  v.GetDuration("poll_interval"),
		UploadPast:    v.GetBool("upload_past"),
		Destination:   v.GetString("destination"),
		RateLimit:     v.GetDuration("rate_limit"),
		Tredict: TredictConfig{
			ClientID:     v.GetString("tredict.client_id"),
			ClientSecret: v.GetString("tredict.client_secret"),
			RedirectURL:  v.GetString("tredict.redirect_url"),
			AuthURL:      v.GetString("tredict.auth_url"),
			TokenURL:     v.GetString("tredict.token_url"),
			UploadURL:    v.GetString("tredict.upload_url"),
			RetryMax:     v.GetInt("tredict.retry_max"),
		},
		Garmin: GarminConfig{
			Email:          v.GetString("garmin.email"),
			Password:       v.GetString("garmin.password"),
			SessionTimeout: v.GetDuration("garmin.session_timeout"),
		},
	}

	paths := []struct {
		dst *string
		key string
	}{
		{&cfg.ActivityDir, "activity_dir"},
		{&cfg.StorePath, "store_path"},
		{&cfg.HistoryPath, "history_db"},
		{&cfg.Tredict.TokenPath, "tredict.token_path"},
		{&cfg.Garmin.SessionPath, "garmin.session_path"},
	}
	for _, p := range paths {
		expanded, err := homedir.Expand(v.GetString(p.key))
		if err != nil {
			return nil, fmt.Errorf("failed to expand %s: %w", p.key, err)
		}
		*p.dst = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values the core cannot work without.
func (c *Config) Validate() error {
	if c.ActivityDir == "" {
		return fmt.Errorf("activity_dir is required")
	}
	if c.StorePath == "" {
		return fmt.Errorf("store_path is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %s", c.RateLimit)
	}
	switch c.Destination {
	case DestinationTredict, DestinationGarmin:
	default:
		return fmt.Errorf("unknown destination %q (want %s or %s)", c.Destination, DestinationTredict, DestinationGarmin)
	}
	return nil
}
