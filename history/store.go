// Package history records the outcome of every compression job in Pebble.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pebble "github.com/cockroachdb/pebble"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Record is the stored outcome of one job.
type Record struct {
	JobID      string    `json:"job_id"`
	Status     Status    `json:"status"`
	Source     string    `json:"source"`
	Output     string    `json:"output,omitempty"`
	Tier       string    `json:"tier"`
	CRF        string    `json:"crf"`
	InputSize  int64     `json:"input_size"`
	OutputSize int64     `json:"output_size,omitempty"`
	Sink       string    `json:"sink,omitempty"`
	Location   string    `json:"location,omitempty"`
	Error      string    `json:"error,omitempty"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished"`
}

var ErrClosed = errors.New("history store not initialized")

type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Put stores rec under its job id, replacing any earlier record.
func (s *Store) Put(rec Record) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if rec.JobID == "" {
		return fmt.Errorf("record has no job id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return s.db.Set([]byte(rec.JobID), data, pebble.Sync)
}

// Get returns the record for jobID, or nil when there is none.
func (s *Store) Get(jobID string) (*Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	data, closer, err := s.db.Get([]byte(jobID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	defer closer.Close()

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

func (s *Store) Delete(jobID string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	return s.db.Delete([]byte(jobID), pebble.Sync)
}

// List returns every record, optionally only those with the given status.
func (s *Store) List(status Status) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	records := []Record{}
	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue // skip invalid records
		}
		if status != "" && rec.Status != status {
			continue
		}
		records = append(records, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}
	return records, nil
}

// CleanupOldRecords removes records that finished more than maxAge ago.
func (s *Store) CleanupOldRecords(maxAge time.Duration) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	cutoff := time.Now().Add(-maxAge)

	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	var stale [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		if rec.Finished.Before(cutoff) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			stale = append(stale, key)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	for _, key := range stale {
		if err := s.db.Delete(key, pebble.Sync); err != nil {
			return 0, fmt.Errorf("failed to delete old record: %w", err)
		}
	}
	return len(stale), nil
}

// CheckHealth verifies the database answers reads.
func (s *Store) CheckHealth() error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, closer, err := s.db.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}
