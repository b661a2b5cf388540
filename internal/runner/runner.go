// Package runner wires credential checks, reconciliation, the application
// lifecycle and uploads into one sequential run.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sstent/zwiftsync/internal/auth"
	"github.com/sstent/zwiftsync/internal/reconcile"
	"github.com/sstent/zwiftsync/internal/store"
	"github.com/sstent/zwiftsync/internal/upload"
	"github.com/sstent/zwiftsync/internal/utils"
)

// Watcher is the part of process.Watcher a run needs.
type Watcher interface {
	Launch(ctx context.Context, path string, args ...string) error
	WaitForStart(ctx context.Context, marker string) error
	WaitForExit(ctx context.Context, marker string) error
}

// Options are the plain values a run works on.
type Options struct {
	StorePath     string
	ActivityDir   string
	LaunchPath    string
	LaunchArgs    []string
	ProcessMarker string
}

// Runner executes one run.
type Runner struct {
	Options    Options
	Client     upload.Client
	Auth       *auth.Manager
	Reconciler *reconcile.Reconciler
	Pipeline   *upload.Pipeline
	Watcher    Watcher
	Log        logrus.FieldLogger
}

// Result describes a finished run.
type Result struct {
	Created bool
	// Past counts the activities found by the first scan of a new store.
	Past        int
	PreScan     int
	PostScan    int
	Upload      upload.Summary
	LastChecked time.Time
}

// Run authorizes the client, records the files already present, launches the
// application and waits for it to exit, then records and uploads the files it
// produced. The store is saved after every phase.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	return r.run(ctx, true)
}

// Sync is Run without launching or waiting for the application.
func (r *Runner) Sync(ctx context.Context) (Result, error) {
	return r.run(ctx, false)
}

func (r *Runner) run(ctx context.Context, launch bool) (Result, error) {
	log := utils.OrDefault(r.Log)
	var res Result

	manager := r.Auth
	if manager == nil {
		manager = auth.NewManager(log)
	}
	log.Info("Checking for authorisation and access")
	if err := manager.EnsureValid(ctx, r.Client); err != nil {
		return res, err
	}

	lock, err := utils.NewFileLock(r.Options.StorePath)
	if err != nil {
		return res, err
	}
	if err := lock.Lock(); err != nil {
		return res, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.WithError(err).Warn("Failed to release store lock")
		}
	}()

	log.WithField("path", r.Options.StorePath).Info("Loading activity store")
	s, created, err := store.LoadOrCreate(r.Options.StorePath)
	if err != nil {
		return res, err
	}
	res.Created = created

	if launch {
		// Files present before launch are recorded now so that only what the
		// application produces during this session is queued.
		if res.PreScan, err = r.scan(s, "pre-run"); err != nil {
			return res, err
		}
		if created {
			res.Past = res.PreScan
		}

		if err := r.Watcher.Launch(ctx, r.Options.LaunchPath, r.Options.LaunchArgs...); err != nil {
			return res, err
		}
		if err := r.Watcher.WaitForStart(ctx, r.Options.ProcessMarker); err != nil {
			return res, fmt.Errorf("failed waiting for application start: %w", err)
		}
		log.Info("Application started")
		if err := r.Watcher.WaitForExit(ctx, r.Options.ProcessMarker); err != nil {
			return res, fmt.Errorf("failed waiting for application exit: %w", err)
		}
		log.Info("Application exited")
	}

	if res.PostScan, err = r.scan(s, "post-run"); err != nil {
		return res, err
	}
	if created && !launch {
		res.Past = res.PostScan
	}

	pipeline := r.Pipeline
	if pipeline == nil {
		pipeline = &upload.Pipeline{Log: log}
	}
	res.Upload, err = pipeline.Run(ctx, s, r.Client, r.Options.ActivityDir)
	if saveErr := store.Save(s, r.Options.StorePath); saveErr != nil {
		if err != nil {
			log.WithError(saveErr).Error("Failed to save activity store")
			return res, err
		}
		return res, saveErr
	}
	if err != nil {
		return res, err
	}

	if s.LastChecked != nil {
		res.LastChecked = *s.LastChecked
	}
	log.WithFields(logrus.Fields{
		"attempted": res.Upload.Attempted,
		"uploaded":  res.Upload.Uploaded,
		"failed":    res.Upload.Failed,
	}).Info("Run complete")
	return res, nil
}

func (r *Runner) scan(s *store.Store, phase string) (int, error) {
	n, err := r.Reconciler.Scan(s, r.Options.ActivityDir)
	if err != nil {
		return n, fmt.Errorf("%s scan failed: %w", phase, err)
	}
	if err := store.Save(s, r.Options.StorePath); err != nil {
		return n, err
	}
	utils.OrDefault(r.Log).WithFields(logrus.Fields{"phase": phase, "new": n}).Info("Scanned activity directory")
	return n, nil
}
