package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/okian/versus/internal/domain/model"
)

// fileEntry is the on-disk catalog row.
type fileEntry struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

// LoadFile reads a JSON entity catalog: an array of {id, name, tags}.
func LoadFile(path string) (*InMemoryProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}

	var rows []fileEntry
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}

	entities := make([]model.EntityAttributes, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			return nil, fmt.Errorf("catalog %s: entry without id", path)
		}
		entities = append(entities, model.EntityAttributes{
			ID:   model.EntityID(row.ID),
			Name: row.Name,
			Tags: row.Tags,
		})
	}
	return NewInMemoryProvider(entities), nil
}
