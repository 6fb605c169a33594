package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"weex-grid-bot-go/internal/models"
)

// fileRepository stores the state as a JSON document on disk. Writes go to a
// temp file in the same directory followed by a rename, so a crash mid-write
// cannot truncate the previous record.
type fileRepository struct {
	path string
}

// NewFileRepository returns a repository backed by a single JSON file.
func NewFileRepository(path string) (StateRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	return &fileRepository{path: path}, nil
}

func (r *fileRepository) Save(state *models.StrategyState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func (r *fileRepository) Load() (*models.StrategyState, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var state models.StrategyState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return &state, nil
}

func (r *fileRepository) Erase() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}

func (r *fileRepository) Close() error {
	return nil
}
