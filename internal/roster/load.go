package roster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/kingrea/layers/internal/errs"
)

// File is the on-disk roster document.
type File struct {
	Agents []WorkerConfig `json:"agents"`
}

// Load reads and validates the roster at path. The document may be either
// {"agents": [...]} or a bare array, and may contain JSONC comments and
// trailing commas. Every failure is a config error naming path.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Config(path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, errs.Config(path, err)
	}
	return r, nil
}

// Parse decodes and validates a roster document.
func Parse(data []byte) (*Roster, error) {
	stripped := bytes.TrimSpace(jsonc.ToJSON(data))
	var workers []WorkerConfig
	if bytes.HasPrefix(stripped, []byte("[")) {
		if err := json.Unmarshal(stripped, &workers); err != nil {
			return nil, fmt.Errorf("failed to parse roster: %w", err)
		}
	} else {
		var file File
		if err := json.Unmarshal(stripped, &file); err != nil {
			return nil, fmt.Errorf("failed to parse roster: %w", err)
		}
		workers = file.Agents
	}
	return New(workers)
}

// Save writes the roster envelope to path, creating parent directories.
func Save(path string, r *Roster) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(File{Agents: r.Workers()}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
