package store

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// JSONBackend keeps the whole state in one indented JSON file.
type JSONBackend struct {
	path string
}

func NewJSONBackend(path string) *JSONBackend {
	return &JSONBackend{path: path}
}

func (b *JSONBackend) Load() (Data, bool, error) {
	var data Data

	raw, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return data, false, nil
		}
		return data, false, err
	}

	if err := json.Unmarshal(raw, &data); err != nil {
		return data, false, err
	}
	return data, true, nil
}

func (b *JSONBackend) Save(data Data) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	// make sure the data directory exists
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return err
	}

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}

func (b *JSONBackend) Close() error {
	return nil
}
