// Package store persists the set of known activity files and their upload
// status between runs.
package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrStoreCorrupt is returned when the persisted store cannot be trusted.
// It is never repaired automatically: resetting the store would re-upload or
// drop history.
var ErrStoreCorrupt = errors.New("activity store is corrupt")

// Record tracks one activity file.
// Uploaded implies Processed; Processed without Uploaded means the single
// upload attempt failed.
type Record struct {
	Filename  string
	Uploaded  bool
	Processed bool
}

// Store is the in-memory record set. LastChecked is nil until the first scan.
type Store struct {
	LastChecked *time.Time
	Activities  []Record

	index map[string]int
}

// New returns an empty store that has never been scanned.
func New() *Store {
	return &Store{Activities: []Record{}, index: map[string]int{}}
}

func (s *Store) reindex() error {
	s.index = make(map[string]int, len(s.Activities))
	for i, r := range s.Activities {
		if r.Filename == "" {
			return fmt.Errorf("%w: record %d has no filename", ErrStoreCorrupt, i)
		}
		if _, dup := s.index[r.Filename]; dup {
			return fmt.Errorf("%w: duplicate activity %q", ErrStoreCorrupt, r.Filename)
		}
		if r.Uploaded && !r.Processed {
			return fmt.Errorf("%w: activity %q is uploaded but not processed", ErrStoreCorrupt, r.Filename)
		}
		s.index[r.Filename] = i
	}
	return nil
}

// Contains reports whether filename is already tracked.
func (s *Store) Contains(filename string) bool {
	_, ok := s.index[filename]
	return ok
}

// Get returns the record for filename.
func (s *Store) Get(filename string) (Record, bool) {
	i, ok := s.index[filename]
	if !ok {
		return Record{}, false
	}
	return s.Activities[i], true
}

// Append adds a record. Filenames are unique keys.
func (s *Store) Append(r Record) error {
	if r.Filename == "" {
		return errors.New("record has no filename")
	}
	if s.Contains(r.Filename) {
		return fmt.Errorf("activity %q is already tracked", r.Filename)
	}
	if r.Uploaded {
		r.Processed = true
	}
	if s.index == nil {
		s.index = map[string]int{}
	}
	s.index[r.Filename] = len(s.Activities)
	s.Activities = append(s.Activities, r)
	return nil
}

// Pending returns the indexes of records still waiting for their upload
// attempt, in insertion order.
func (s *Store) Pending() []int {
	var out []int
	for i, r := range s.Activities {
		if !r.Processed && !r.Uploaded {
			out = append(out, i)
		}
	}
	return out
}

// MarkUploaded records a successful upload of the record at i.
func (s *Store) MarkUploaded(i int) {
	s.Activities[i].Uploaded = true
	s.Activities[i].Processed = true
}

// MarkFailed records a failed upload of the record at i. The record will not
// be retried until it is Reset.
func (s *Store) MarkFailed(i int) {
	s.Activities[i].Uploaded = false
	s.Activities[i].Processed = true
}

// Reset re-queues a record whose upload failed.
func (s *Store) Reset(filename string) error {
	i, ok := s.index[filename]
	if !ok {
		return fmt.Errorf("activity %q is not tracked", filename)
	}
	if s.Activities[i].Uploaded {
		return fmt.Errorf("activity %q is already uploaded", filename)
	}
	s.Activities[i].Processed = false
	return nil
}

// Touch advances LastChecked to now. It never moves backwards.
func (s *Store) Touch(now time.Time) {
	now = now.Truncate(time.Second)
	if s.LastChecked != nil && now.Before(*s.LastChecked) {
		return
	}
	s.LastChecked = &now
}

// Counts returns the number of uploaded, failed and pending records.
func (s *Store) Counts() (uploaded, failed, pending int) {
	for _, r := range s.Activities {
		switch {
		case r.Uploaded:
			uploaded++
		case r.Processed:
			failed++
		default:
			pending++
		}
	}
	return uploaded, failed, pending
}
