package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/energystats/pkg/types"
)

// FileProvider implements the Database interface with one JSON file per site
// in a directory.
type FileProvider struct {
	mu  sync.Mutex
	dir string
}

// NewFileProvider creates a provider writing into dir.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir}
}

func configuredFile() *FileProvider {
	dir := lflag.String("storage-dir", "data", "Directory for the file storage provider")

	f := &FileProvider{}

	lflag.Do(func() {
		f.dir = *dir
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FileProvider) Validate() error {
	if f.dir == "" {
		return errors.New("storage-dir cannot be empty")
	}
	return nil
}

type fileState struct {
	Version int                  `json:"version"`
	State   types.PersistedState `json:"state"`
}

func (f *FileProvider) path(siteID string) (string, error) {
	if siteID == "" {
		return "", fmt.Errorf("siteID cannot be empty")
	}
	if strings.ContainsAny(siteID, `/\`) || siteID == "." || siteID == ".." {
		return "", fmt.Errorf("invalid siteID: %s", siteID)
	}
	return filepath.Join(f.dir, "energy_stats_"+siteID+".json"), nil
}

// GetState reads the state file of siteID.
func (f *FileProvider) GetState(ctx context.Context, siteID string) (types.PersistedState, bool, error) {
	p, err := f.path(siteID)
	if err != nil {
		return types.PersistedState{}, false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.PersistedState{}, false, nil
		}
		return types.PersistedState{}, false, fmt.Errorf("failed to read state file: %w", err)
	}

	var fst fileState
	if err := json.Unmarshal(b, &fst); err != nil {
		return types.PersistedState{}, false, fmt.Errorf("failed to unmarshal state file %s: %w", p, err)
	}
	if fst.Version > types.CurrentStateVersion {
		return types.PersistedState{}, false, fmt.Errorf("state version %d is newer than supported version %d", fst.Version, types.CurrentStateVersion)
	}
	return fst.State, true, nil
}

// SetState writes the state file of siteID. The file is replaced atomically.
func (f *FileProvider) SetState(ctx context.Context, siteID string, state types.PersistedState) error {
	p, err := f.path(siteID)
	if err != nil {
		return err
	}
	b, err := json.Marshal(fileState{Version: types.CurrentStateVersion, State: state})
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create storage dir: %w", err)
	}
	tmp, err := os.CreateTemp(f.dir, ".energy_stats_*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Close implements Database. Files are not held open.
func (f *FileProvider) Close() error {
	return nil
}
