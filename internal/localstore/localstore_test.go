package localstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocppsim/simulator/pkg/models"
)

func TestTemplateFileLoaderLoadsJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tpl.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"baseName":"wallbox","ocppVersion":"1.6"}`), 0o644))

	loader := NewTemplateFileLoader()
	tpl, err := loader.LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "wallbox", tpl.BaseName)
	assert.Equal(t, models.OCPPVersion16, tpl.OCPPVersion)
}

func TestTemplateFileLoaderMissingFile(t *testing.T) {
	loader := NewTemplateFileLoader()
	_, err := loader.LoadTemplate(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestIDTagFileLoaderLoadsArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tags.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"type":"ID_TAG","value":"TAG1"},{"type":"ID_TAG","value":"TAG2"}]`), 0o644))

	loader := NewIDTagFileLoader()
	tags, err := loader.LoadIDTagList(path)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "TAG1", tags[0].Value)
}

func TestConfigurationFileStoreLoadMissingReturnsNilNil(t *testing.T) {
	store := NewConfigurationFileStore(t.TempDir())
	cfg, err := store.Load(context.Background(), "CP-1")
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestConfigurationFileStoreSaveThenLoadRoundTrips(t *testing.T) {
	store := NewConfigurationFileStore(t.TempDir())
	original := &models.ChargingStationConfiguration{
		ConfigurationHash: "abc123",
	}
	require.NoError(t, store.Save(context.Background(), "CP-1", original))

	loaded, err := store.Load(context.Background(), "CP-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "abc123", loaded.ConfigurationHash)
}

func TestConfigurationFileStoreCreatesBasePathDirectory(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "stations")
	store := NewConfigurationFileStore(base)
	require.NoError(t, store.Save(context.Background(), "CP-2", &models.ChargingStationConfiguration{}))
	_, err := os.Stat(filepath.Join(base, "CP-2.json"))
	require.NoError(t, err)
}
