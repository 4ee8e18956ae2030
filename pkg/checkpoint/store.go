// Package checkpoint persists per-configuration submission progress so
// interrupted runs resume at the first unrequested batch.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// State is the persisted progress of one named configuration. Requested
// is monotonically non-decreasing for a given config hash; it drops back
// to zero only after an explicit reset confirmation.
type State struct {
	// Hash is the sha256 hex digest of the raw configuration file bytes
	// that produced this state, used to detect configuration drift.
	Hash string `yaml:"hash"`

	// Requested counts the batches already submitted successfully.
	Requested int `yaml:"requested"`
}

// Store loads and saves checkpoint state per configuration name. The
// orchestrator takes a Store rather than touching files itself, so the
// retry loop is testable without a filesystem.
type Store interface {
	// Load returns the stored state for name. The second return is
	// false when no state exists yet (fresh start).
	Load(name string) (State, bool, error)

	// Save persists the state for name. It is called after every
	// successful submission, so a crash loses at most the in-flight
	// request.
	Save(name string, state State) error
}

// HashConfig digests raw configuration bytes for drift detection.
func HashConfig(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileStore keeps one YAML state file per configuration name in a
// directory, named "<name>_state.yml".
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed checkpoint store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+"_state.yml")
}

// Load reads the state file for name, reporting absence without error.
func (s *FileStore) Load(name string) (State, bool, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return State{}, false, fmt.Errorf("decode checkpoint %s: %w", s.path(name), err)
	}
	return state, true, nil
}

// Save writes the state file for name, creating the directory if needed.
func (s *FileStore) Save(name string, state State) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	// Write to a temp file and rename, so an interrupted save never
	// truncates the state the next run resumes from.
	target := s.path(name)
	tmp, err := os.CreateTemp(filepath.Dir(target), name+"_state.yml.part-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("chmod checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("finalize checkpoint: %w", err)
	}
	return nil
}

// MemoryStore is an in-memory Store for tests and dry runs.
type MemoryStore struct {
	states map[string]State
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

// Load returns the stored state for name.
func (s *MemoryStore) Load(name string) (State, bool, error) {
	state, ok := s.states[name]
	return state, ok, nil
}

// Save stores the state for name.
func (s *MemoryStore) Save(name string, state State) error {
	s.states[name] = state
	return nil
}
