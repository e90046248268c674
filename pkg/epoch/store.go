// Package epoch persists the node epoch, the only control state that
// survives a restart.
package epoch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	stateFileName       = "node-epoch.json"
	currentStateVersion = 1
)

var (
	ErrEpochRegression  = errors.New("epoch must not decrease")
	ErrUnsupportedState = errors.New("unsupported epoch state version")
)

// Record is the JSON document kept on disk.
type Record struct {
	Version   int       `json:"version" yaml:"version"`
	NodeID    string    `json:"node_id" yaml:"node_id"`
	Epoch     int64     `json:"epoch" yaml:"epoch"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Store reads and writes the epoch record under a state directory.
type Store struct {
	dir    string
	nodeID string

	mu      sync.Mutex
	current int64
}

// Open creates the state directory if needed and loads any existing record.
func Open(dir, nodeID string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	s := &Store{dir: dir, nodeID: nodeID}
	rec, err := ReadFile(s.FilePath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		s.current = rec.Epoch
	}
	return s, nil
}

// ReadFile decodes an epoch record without opening a Store.
func ReadFile(path string) (Record, error) {
	var rec Record
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("unmarshal epoch state: %w", err)
	}
	if rec.Version != currentStateVersion {
		return rec, fmt.Errorf("%w: %d", ErrUnsupportedState, rec.Version)
	}
	return rec, nil
}

// Load returns the last persisted epoch (0 on a fresh node).
func (s *Store) Load() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Save durably records epoch. Saving a lower epoch than the stored one fails;
// saving the same value is a no-op.
func (s *Store) Save(epoch int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch < s.current {
		return fmt.Errorf("%w: have %d, got %d", ErrEpochRegression, s.current, epoch)
	}
	if epoch == s.current && s.exists() {
		return nil
	}

	rec := Record{
		Version:   currentStateVersion,
		NodeID:    s.nodeID,
		Epoch:     epoch,
		UpdatedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal epoch state: %w", err)
	}

	path := s.FilePath()
	tempPath := path + ".tmp"

	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename epoch state: %w", err)
	}

	s.current = epoch
	return nil
}

// FilePath returns the location of the epoch record.
func (s *Store) FilePath() string {
	return filepath.Join(s.dir, stateFileName)
}

func (s *Store) exists() bool {
	_, err := os.Stat(s.FilePath())
	return err == nil
}
