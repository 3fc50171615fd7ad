package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/rating"
)

// FileBackend persists the session state as a single JSON document,
// written atomically via a temp file rename.
type FileBackend struct {
	mu    sync.Mutex
	path  string
	state State
}

// NewFileBackend creates a backend writing to path. Existing state on disk
// is picked up lazily by the Load methods.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New("state path must not be empty")
	}
	b := &FileBackend{path: path}
	if err := b.readFile(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return b, nil
}

func (b *FileBackend) readFile() error {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &b.state)
}

// writeFile must be called with b.mu held.
func (b *FileBackend) writeFile() error {
	data, err := json.MarshalIndent(b.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// SaveRatings persists the ratings section.
func (b *FileBackend) SaveRatings(ctx context.Context, ratings map[model.EntityID]rating.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Ratings = ratings
	return b.writeFile()
}

// LoadRatings returns the persisted ratings, or nil when none exist.
func (b *FileBackend) LoadRatings(ctx context.Context) (map[model.EntityID]rating.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Ratings, nil
}

// SaveHistory persists the outcome history section.
func (b *FileBackend) SaveHistory(ctx context.Context, history []model.OutcomeRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.History = history
	return b.writeFile()
}

// LoadHistory returns the persisted history, or nil when none exists.
func (b *FileBackend) LoadHistory(ctx context.Context) ([]model.OutcomeRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.History, nil
}

// SaveTasks persists the refinement queue section.
func (b *FileBackend) SaveTasks(ctx context.Context, tasks []model.RefinementTask) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Tasks = tasks
	return b.writeFile()
}

// LoadTasks returns the persisted refinement tasks, or nil when none exist.
func (b *FileBackend) LoadTasks(ctx context.Context) ([]model.RefinementTask, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Tasks, nil
}

// SaveFrozen persists the freeze flag section.
func (b *FileBackend) SaveFrozen(ctx context.Context, frozen []repository.FreezeKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Frozen = frozen
	return b.writeFile()
}

// LoadFrozen returns the persisted freeze flags, or nil when none exist.
func (b *FileBackend) LoadFrozen(ctx context.Context) ([]repository.FreezeKey, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Frozen, nil
}

// Path returns the backing file path.
func (b *FileBackend) Path() string {
	return filepath.Clean(b.path)
}
