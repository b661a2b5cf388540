package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sstent/zwiftsync/internal/utils"
)

type fileRecord struct {
	Activity  string `json:"activity"`
	Uploaded  bool   `json:"uploaded"`
	Processed bool   `json:"processed"`
}

type fileStore struct {
	LastChecked *int64       `json:"last_checked"`
	Activities  []fileRecord `json:"activities"`
}

// LoadOrCreate reads the store at path. When no file exists an empty store is
// created and saved right away, so a crash after creation still leaves valid
// state behind.
func LoadOrCreate(path string) (*Store, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s := New()
		if err := Save(s, path); err != nil {
			return nil, false, err
		}
		return s, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read activity store: %w", err)
	}

	s, err := decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", path, err)
	}
	return s, false, nil
}

func decode(data []byte) (*Store, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrStoreCorrupt)
	}

	var fs fileStore
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}

	s := &Store{Activities: make([]Record, 0, len(fs.Activities))}
	if fs.LastChecked != nil {
		t := time.Unix(*fs.LastChecked, 0)
		s.LastChecked = &t
	}
	for _, r := range fs.Activities {
		s.Activities = append(s.Activities, Record{
			Filename:  r.Activity,
			Uploaded:  r.Uploaded,
			Processed: r.Processed,
		})
	}
	if err := s.reindex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the full store to path, atomically replacing any previous file.
func Save(s *Store, path string) error {
	fs := fileStore{Activities: make([]fileRecord, 0, len(s.Activities))}
	if s.LastChecked != nil {
		ts := s.LastChecked.Unix()
		fs.LastChecked = &ts
	}
	for _, r := range s.Activities {
		fs.Activities = append(fs.Activities, fileRecord{
			Activity:  r.Filename,
			Uploaded:  r.Uploaded,
			Processed: r.Processed,
		})
	}

	data, err := json.MarshalIndent(fs, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode activity store: %w", err)
	}
	data = append(data, '\n')

	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save activity store: %w", err)
	}
	return nil
}
