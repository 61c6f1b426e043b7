package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `{
	"db": {"host": "localhost", "name": "taghive", "user": "taghive", "password": "secret"},
	"app": {"default_user": {"login": "admin", "password": "changeme1"}}
}`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, int64(8<<20), cfg.MaxBodyBytes)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, "public", cfg.DB.Schema)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenLifetime())
	assert.False(t, cfg.Auxillary.EnableSearchablesUpdates)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing db host", `{"db": {"name": "x", "user": "x", "password": "x"},
			"app": {"default_user": {"login": "a", "password": "b"}}}`},
		{"missing default user", `{"db": {"host": "h", "name": "x", "user": "x", "password": "x"}}`},
		{"malformed json", `{"db": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestConnStringCarriesSchema(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	conn := cfg.ConnString()
	assert.Contains(t, conn, "@localhost:5432/taghive")
	assert.Contains(t, conn, "search_path=public")
}
