// Package storage holds the disk-facing adapters: the registry snapshot, the
// CSV observation/interaction logs, and the sqlite audit store.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lcalzada-xor/trapwire/internal/core/domain"
	"github.com/lcalzada-xor/trapwire/internal/core/ports"
)

// JSONRegistryStore persists the device registry as one JSON document, the
// mapping from MAC to device record. The whole file is rewritten each save;
// acceptable for registries well under a thousand devices.
type JSONRegistryStore struct {
	path string
}

// NewJSONRegistryStore writes to the given path.
func NewJSONRegistryStore(path string) *JSONRegistryStore {
	return &JSONRegistryStore{path: path}
}

// Save rewrites the snapshot atomically (temp file + rename), so a crash
// mid-write never leaves a torn registry on disk.
func (s *JSONRegistryStore) Save(devices map[string]domain.Device) error {
	data, err := json.MarshalIndent(devices, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

// Load reads the snapshot. A missing file returns an empty registry; a
// corrupt one returns an error and the caller starts empty.
func (s *JSONRegistryStore) Load() (map[string]domain.Device, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]domain.Device{}, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}

	devices := make(map[string]domain.Device)
	if err := json.Unmarshal(data, &devices); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return devices, nil
}

var _ ports.RegistryStore = (*JSONRegistryStore)(nil)
