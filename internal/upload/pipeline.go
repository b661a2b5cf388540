package upload

import (
	"context"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sstent/zwiftsync/internal/store"
	"github.com/sstent/zwiftsync/internal/utils"
)

// Attempt is one upload decision, as handed to a History.
type Attempt struct {
	Filename    string
	Destination string
	AttemptedAt time.Time
	Success     bool
	Error       string
}

// History records upload attempts.
type History interface {
	RecordAttempt(a Attempt) error
}

// NotesFunc returns the notes sent along with the activity at path.
type NotesFunc func(path string) string

// Summary counts the outcome of a pipeline run.
type Summary struct {
	Attempted int
	Uploaded  int
	Failed    int
}

// Pipeline uploads every queued record of a store exactly once.
type Pipeline struct {
	Notes   NotesFunc
	History History
	// Pause is waited between two uploads.
	Pause time.Duration

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	Log   logrus.FieldLogger
}

// Run attempts the upload of every record that is neither processed nor
// uploaded, in store order. A failed upload is recorded as processed and not
// uploaded, and is not retried on later runs. Only context cancellation stops
// the loop early.
func (p *Pipeline) Run(ctx context.Context, s *store.Store, client Client, dir string) (Summary, error) {
	log := utils.OrDefault(p.Log).WithField("destination", client.Name())
	now := p.Now
	if now == nil {
		now = time.Now
	}

	var sum Summary
	for n, i := range s.Pending() {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if n > 0 && p.Pause > 0 {
			if err := p.sleep(ctx, p.Pause); err != nil {
				return sum, err
			}
		}

		rec := s.Activities[i]
		path := filepath.Join(dir, rec.Filename)
		notes := ""
		if p.Notes != nil {
			notes = p.Notes(path)
		}

		entry := log.WithField("activity", rec.Filename)
		entry.Info("Uploading activity")
		sum.Attempted++

		err := client.Upload(ctx, path, notes)
		attempt := Attempt{
			Filename:    rec.Filename,
			Destination: client.Name(),
			AttemptedAt: now(),
			Success:     err == nil,
		}
		if err != nil {
			if ctx.Err() != nil {
				// cancelled mid-upload: leave the record queued
				return sum, ctx.Err()
			}
			s.MarkFailed(i)
			sum.Failed++
			attempt.Error = err.Error()
			entry.WithError(err).Error("Upload failed, activity will not be retried automatically")
		} else {
			s.MarkUploaded(i)
			sum.Uploaded++
			entry.Info("Upload succeeded")
		}

		if p.History != nil {
			if herr := p.History.RecordAttempt(attempt); herr != nil {
				entry.WithError(herr).Warn("Failed to record upload history")
			}
		}
	}

	s.Touch(now())
	return sum, nil
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
