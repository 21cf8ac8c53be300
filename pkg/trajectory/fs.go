package trajectory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// SaveToFile writes t as JSON to <root>/<uuid>.json per spec.md §6's
// trajectory filesystem layout.
func SaveToFile(root string, t *Trajectory) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create trajectory root: %w", err)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal trajectory: %w", err)
	}
	path := filepath.Join(root, t.ID.String()+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write trajectory file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize trajectory file: %w", err)
	}
	return nil
}

// LoadFromFile reads <root>/<id>.json and verifies the loaded trajectory's
// id matches the requested one.
func LoadFromFile(root string, id uuid.UUID) (*Trajectory, error) {
	path := filepath.Join(root, id.String()+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trajectory file: %w", err)
	}
	var t Trajectory
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal trajectory: %w", err)
	}
	if t.ID != id {
		return nil, fmt.Errorf("loaded trajectory id %s does not match requested id %s", t.ID, id)
	}
	return &t, nil
}
