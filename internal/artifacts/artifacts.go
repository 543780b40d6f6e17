package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	CandidatesFile = "candidates.json"
	BeatsFile      = "beats.json"
	SelectionFile  = "selection.json"
	EDLFile        = "edl.json"
	RunFile        = "run.json"
)

// Store keeps JSON documents under <base>/<run_id>/.
type Store struct {
	basePath string
}

func NewStore(basePath string) (*Store, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, errors.New("artifact store: base path is empty")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

func (s *Store) Base() string { return s.basePath }

// RunDir returns the run's directory. runID must be a single path segment.
func (s *Store) RunDir(runID string) (string, error) {
	clean := filepath.Clean(strings.TrimSpace(runID))
	if clean == "" || clean == "." || strings.Contains(clean, "..") || strings.ContainsAny(clean, `/\`) {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(s.basePath, clean), nil
}

func (s *Store) Path(runID, name string) (string, error) {
	dir, err := s.RunDir(runID)
	if err != nil {
		return "", err
	}
	clean := filepath.Clean(name)
	if strings.Contains(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(dir, clean), nil
}

func (s *Store) Write(runID, name string, v any) (string, error) {
	path, err := s.Path(runID, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, WriteJSON(path, v)
}

func (s *Store) Read(runID, name string, v any) error {
	path, err := s.Path(runID, name)
	if err != nil {
		return err
	}
	return ReadJSON(path, v)
}

// Exists reports whether the run has the named artifact.
func (s *Store) Exists(runID, name string) bool {
	path, err := s.Path(runID, name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// WriteJSON writes v indented, replacing path atomically.
func WriteJSON(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func ReadJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
