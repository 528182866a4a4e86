// Package checkpoint persists and restores training state: the global
// iteration counter, every model parameter, and the optimizer moments.
//
// Snapshots are JSON files named checkpoint_<iteration>.json inside one
// directory, with a plain-text "latest" pointer file naming the most
// recent one. Writes go through a temp file and rename, so a crash during
// save never corrupts an existing snapshot or the pointer.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cadenza-ml/cadenza/internal/model"
)

const latestFile = "latest"

// ParamState is one parameter's persisted values.
type ParamState struct {
	Name  string    `json:"name"`
	Value []float64 `json:"value"`
}

// Snapshot is the complete restorable state of a training run.
type Snapshot struct {
	Iteration int             `json:"iteration"`
	Params    []ParamState    `json:"params"`
	Optimizer model.AdamState `json:"optimizer"`
}

// Capture copies the current training state into a snapshot.
func Capture(iteration int, params []*model.Param, opt *model.Adam) *Snapshot {
	snap := &Snapshot{
		Iteration: iteration,
		Params:    make([]ParamState, len(params)),
		Optimizer: opt.State(),
	}
	for i, p := range params {
		snap.Params[i] = ParamState{
			Name:  p.Name,
			Value: append([]float64(nil), p.Value...),
		}
	}
	return snap
}

// Apply restores a snapshot into the given parameters and optimizer.
// Parameters are matched by name; a missing or mis-sized parameter fails
// the restore before anything is written, so state is never half-applied.
func (s *Snapshot) Apply(params []*model.Param, opt *model.Adam) error {
	byName := make(map[string]ParamState, len(s.Params))
	for _, ps := range s.Params {
		byName[ps.Name] = ps
	}

	for _, p := range params {
		ps, ok := byName[p.Name]
		if !ok {
			return fmt.Errorf("snapshot has no parameter %q", p.Name)
		}
		if len(ps.Value) != len(p.Value) {
			return fmt.Errorf("snapshot parameter %q has size %d, model expects %d",
				p.Name, len(ps.Value), len(p.Value))
		}
	}

	for _, p := range params {
		copy(p.Value, byName[p.Name].Value)
	}
	if opt != nil {
		if err := opt.Restore(s.Optimizer); err != nil {
			return fmt.Errorf("failed to restore optimizer state: %w", err)
		}
	}
	return nil
}

// Store reads and writes snapshots under one directory.
type Store struct {
	dir string
}

// NewStore creates the checkpoint directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes the snapshot and advances the latest pointer, returning the
// snapshot's path.
func (s *Store) Save(snap *Snapshot) (string, error) {
	name := fmt.Sprintf("checkpoint_%d.json", snap.Iteration)
	path := filepath.Join(s.dir, name)

	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := writeAtomic(filepath.Join(s.dir, latestFile), []byte(name+"\n")); err != nil {
		return "", fmt.Errorf("failed to update latest pointer: %w", err)
	}
	return path, nil
}

// Load reads the snapshot saved at the given iteration.
func (s *Store) Load(iteration int) (*Snapshot, error) {
	return s.load(fmt.Sprintf("checkpoint_%d.json", iteration))
}

// LoadLatest reads the most recently saved snapshot. It returns
// (nil, nil) when the store holds no snapshot yet, so a fresh run and a
// resumed run share one call site.
func (s *Store) LoadLatest() (*Snapshot, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, latestFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest pointer: %w", err)
	}
	name := strings.TrimSpace(string(raw))
	if name == "" {
		return nil, nil
	}
	return s.load(name)
}

func (s *Store) load(name string) (*Snapshot, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", name, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", name, err)
	}
	return &snap, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
