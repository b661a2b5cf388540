package cmd

import (
	"fmt"
	"strings"

	"github.com/sstent/zwiftsync/internal/auth"
	"github.com/sstent/zwiftsync/internal/config"
	"github.com/sstent/zwiftsync/internal/db"
	"github.com/sstent/zwiftsync/internal/fitfile"
	"github.com/sstent/zwiftsync/internal/garmin"
	"github.com/sstent/zwiftsync/internal/process"
	"github.com/sstent/zwiftsync/internal/reconcile"
	"github.com/sstent/zwiftsync/internal/runner"
	"github.com/sstent/zwiftsync/internal/tredict"
	"github.com/sstent/zwiftsync/internal/upload"
	"github.com/sstent/zwiftsync/internal/utils"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// newClient creates the upload client for the configured destination
func newClient(cfg *config.Config) (upload.Client, error) {
	switch cfg.Destination {
	case config.DestinationGarmin:
		client, err := garmin.NewClient(cfg.Garmin, utils.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to create Garmin client: %w", err)
		}
		return client, nil
	default:
		client, err := tredict.NewClient(cfg.Tredict, utils.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to create Tredict client: %w", err)
		}
		return client, nil
	}
}

// newRunner assembles a runner from the configuration. The returned close
// function releases the history database.
func newRunner(cfg *config.Config) (*runner.Runner, func(), error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, nil, err
	}

	history, err := db.NewDatabase(cfg.HistoryPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open upload history: %w", err)
	}

	rec := reconcile.New(cfg.Extension, cfg.InProgress)
	rec.UploadPast = cfg.UploadPast
	rec.Log = utils.Log

	r := &runner.Runner{
		Options: runner.Options{
			StorePath:     cfg.StorePath,
			ActivityDir:   cfg.ActivityDir,
			LaunchPath:    cfg.LaunchPath,
			LaunchArgs:    cfg.LaunchArgs,
			ProcessMarker: cfg.ProcessMarker,
		},
		Client:     client,
		Auth:       auth.NewManager(utils.Log),
		Reconciler: rec,
		Pipeline: &upload.Pipeline{
			Notes:   fitfile.Notes,
			History: history,
			Pause:   cfg.RateLimit,
			Log:     utils.Log,
		},
		Watcher: process.NewWatcher(cfg.PollInterval, utils.Log),
		Log:     utils.Log,
	}

	closeFn := func() {
		if err := history.Close(); err != nil {
			utils.Log.WithError(err).Warn("Failed to close upload history")
		}
	}
	return r, closeFn, nil
}
