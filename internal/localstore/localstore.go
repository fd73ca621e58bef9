// Package localstore implements the external collaborators §6 leaves to the
// embedder: loading Templates and id-tag lists from local JSON files, and
// persisting each station's ChargingStationConfiguration document as JSON on
// disk. Adapted from the teacher's local archive/retention file layout.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ocppsim/simulator/pkg/models"
)

// TemplateFileLoader implements contracts.TemplateLoader by reading a
// Template as JSON from the given path.
type TemplateFileLoader struct{}

func NewTemplateFileLoader() TemplateFileLoader { return TemplateFileLoader{} }

func (TemplateFileLoader) LoadTemplate(path string) (*models.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	var t models.Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}
	return &t, nil
}

// IDTagFileLoader implements contracts.IDTagListLoader by reading a JSON
// array of UnifiedIdentifiers from the given path.
type IDTagFileLoader struct{}

func NewIDTagFileLoader() IDTagFileLoader { return IDTagFileLoader{} }

func (IDTagFileLoader) LoadIDTagList(path string) ([]models.UnifiedIdentifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read idtag list %s: %w", path, err)
	}
	var tags []models.UnifiedIdentifier
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("parse idtag list %s: %w", path, err)
	}
	return tags, nil
}

// ConfigurationFileStore implements contracts.ConfigurationStore, persisting
// one JSON file per station under basePath/{hashId}.json.
//
//	{basePath}/{hashId}.json
type ConfigurationFileStore struct {
	basePath string
	mu       sync.Mutex
}

// NewConfigurationFileStore creates a file-based configuration store. If
// basePath is empty it defaults to "~/.ocppsim/stations".
func NewConfigurationFileStore(basePath string) *ConfigurationFileStore {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			basePath = "/tmp/ocppsim/stations"
		} else {
			basePath = filepath.Join(home, ".ocppsim", "stations")
		}
	}
	return &ConfigurationFileStore{basePath: basePath}
}

func (c *ConfigurationFileStore) path(hashID string) string {
	return filepath.Join(c.basePath, hashID+".json")
}

// Load returns nil, nil if no configuration has been persisted yet for
// hashID (§6: "load(hashId) -> ChargingStationConfiguration | null").
func (c *ConfigurationFileStore) Load(_ context.Context, hashID string) (*models.ChargingStationConfiguration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := os.ReadFile(c.path(hashID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read configuration %s: %w", hashID, err)
	}
	var cfg models.ChargingStationConfiguration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse configuration %s: %w", hashID, err)
	}
	return &cfg, nil
}

func (c *ConfigurationFileStore) Save(_ context.Context, hashID string, cfg *models.ChargingStationConfiguration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.basePath, 0o755); err != nil {
		return fmt.Errorf("create configuration dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode configuration %s: %w", hashID, err)
	}
	if err := os.WriteFile(c.path(hashID), data, 0o644); err != nil {
		return fmt.Errorf("write configuration %s: %w", hashID, err)
	}
	return nil
}
