package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

type overlayRecord struct {
	ID      string `json:"id"`
	Slug    string `json:"slug"`
	Enabled *bool  `json:"enabled"`
}

// LoadOverlayFile reads the catalog editor's persisted form: a JSON list of
// {id, enabled} records (older files use "slug" instead of "id"). Records
// without an enabled flag are treated as enabled.
func LoadOverlayFile(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []overlayRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse overlay %s: %w", path, err)
	}

	overlay := make(map[string]bool, len(records))
	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = rec.Slug
		}
		if id == "" {
			continue
		}
		enabled := true
		if rec.Enabled != nil {
			enabled = *rec.Enabled
		}
		overlay[id] = enabled
	}
	return overlay, nil
}
