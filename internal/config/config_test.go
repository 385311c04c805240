package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Listen, cfg.Listen)
	assert.Len(t, cfg.Categories, 8)
	assert.Len(t, cfg.Popular, 16)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Categories, again.Categories)
}

func TestLoad_PartialConfigIsNormalized(t *testing.T) {
	path := createTempConfigFile(t, `
listen: "0.0.0.0:9000"
categories:
  - tag: jobs
    file: jobs.json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, 15, cfg.FetchTimeoutSeconds)
	assert.Equal(t, "*/5 * * * *", cfg.SessionSweep)
	require.Len(t, cfg.Categories, 1)
	assert.Equal(t, "jobs", cfg.Categories[0].Label)
	assert.Len(t, cfg.Popular, 16)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "category without file",
			yaml:    "categories:\n  - tag: jobs\n",
			wantErr: "empty file",
		},
		{
			name:    "popular entry without id or title",
			yaml:    "categories:\n  - tag: jobs\n    file: jobs.json\npopular:\n  - key: x\n    label: X\n",
			wantErr: ErrPopularNoMatch.Error(),
		},
		{
			name:    "malformed yaml",
			yaml:    "categories: [",
			wantErr: "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(createTempConfigFile(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	_, err := Load("")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestCategoryModels(t *testing.T) {
	cfg := DefaultConfig()
	cats := cfg.CategoryModels()
	require.Len(t, cats, len(cfg.Categories))
	assert.Equal(t, "conferences", cats[0].Tag)
	assert.Equal(t, "conferences.json", cats[0].Locator)
}
