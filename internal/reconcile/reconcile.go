// Package reconcile diffs an activity directory against the activity store.
package reconcile

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sstent/zwiftsync/internal/store"
	"github.com/sstent/zwiftsync/internal/utils"
)

const (
	// DefaultExtension is the suffix of activity files.
	DefaultExtension = ".fit"
	// DefaultInProgress is the file the application writes while a session is
	// still running.
	DefaultInProgress = "inProgressActivity.fit"
)

// Reconciler appends untracked activity files to a store.
type Reconciler struct {
	// Extension filters directory entries, compared case-insensitively.
	// Empty means every regular file is a candidate.
	Extension string
	// Exclude lists filenames that are never tracked.
	Exclude map[string]bool
	// UploadPast queues files found on a store's first scan instead of
	// marking them as already handled.
	UploadPast bool

	Now func() time.Time
	Log logrus.FieldLogger
}

// New returns a Reconciler for files ending in ext, skipping exclude.
func New(ext string, exclude ...string) *Reconciler {
	r := &Reconciler{
		Extension: ext,
		Exclude:   make(map[string]bool, len(exclude)),
		Now:       time.Now,
	}
	for _, name := range exclude {
		r.Exclude[name] = true
	}
	return r
}

// Scan appends a record for every candidate file in dir not yet tracked by s
// and returns how many were added. Files found before the store's first scan
// predate tracking and are recorded as processed so they are not uploaded.
// LastChecked is advanced to now.
func (r *Reconciler) Scan(s *store.Store, dir string) (int, error) {
	log := utils.OrDefault(r.Log)

	names, err := r.candidates(dir)
	if err != nil {
		return 0, err
	}

	firstScan := s.LastChecked == nil
	processed := firstScan && !r.UploadPast

	added := 0
	for _, name := range names {
		if s.Contains(name) {
			continue
		}
		if err := s.Append(store.Record{Filename: name, Processed: processed}); err != nil {
			return added, fmt.Errorf("failed to track %s: %w", name, err)
		}
		added++
		log.WithFields(logrus.Fields{
			"activity": name,
			"queued":   !processed,
		}).Debug("Found new activity")
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	s.Touch(now())
	return added, nil
}

func (r *Reconciler) candidates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity directory: %w", err)
	}

	ext := strings.ToLower(r.Extension)
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if r.Exclude[name] {
			continue
		}
		if ext != "" && !strings.HasSuffix(strings.ToLower(name), ext) {
			continue
		}
		names = append(names, name)
	}
	// os.ReadDir already sorts by name; keep it explicit.
	sort.Strings(names)
	return names, nil
}
