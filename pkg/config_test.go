package pkg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ConfigName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
name: app
version: 1.2.0
compression: gz

dist:
  dir: out
  exclude:
    - tmp

image:
  context: stage
  dockerfile: Dockerfile
  tag: app:latest

docs:
  source: documentation
  output: site
  title: The App
`))
	require.NoError(t, err)

	assert.Equal(t, "app", cfg.Name)
	assert.Equal(t, "1.2.0", cfg.Version)
	assert.Equal(t, "gz", cfg.Compression)
	assert.Equal(t, "out", cfg.Dist.Dir)
	assert.Equal(t, []string{"tmp"}, cfg.Dist.Exclude)
	assert.Equal(t, "app:latest", cfg.Image.Tag)
	assert.Equal(t, "The App", cfg.Docs.Title)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "name: app\nversion: 0.1.0\n"))
	require.NoError(t, err)

	assert.Equal(t, "xz", cfg.Compression)
	assert.Equal(t, "dist", cfg.Dist.Dir)
	assert.Equal(t, "build/docker", cfg.Image.Context)
	assert.Equal(t, "docker/Dockerfile", cfg.Image.Dockerfile)
	assert.Equal(t, "docs", cfg.Docs.Source)
	assert.Equal(t, "docs/_html", cfg.Docs.Output)
	// the docs title falls back to the project name
	assert.Equal(t, "app", cfg.Docs.Title)
}

func TestLoadConfigMissingName(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "version: 0.1.0\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}

func TestLoadConfigMissingVersion(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "name: app\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestLoadConfigBadCompression(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "name: app\nversion: 0.1.0\ncompression: zip\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compression")
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		ConfigName:      "name: app\nversion: 0.1.0\n",
		"pkg/deep/x.go": "package deep\n",
	})

	found, err := FindProjectRoot(filepath.Join(root, "pkg", "deep"))
	require.NoError(t, err)
	assert.Equal(t, root, found)
}

func TestFindProjectRootMissing(t *testing.T) {
	// a bare temp dir has neither project.yml nor .git above it, except the
	// system temp root could be inside a repo; nest deep enough to be sure
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, os.MkdirAll(dir, 0770))

	_, err := FindProjectRoot(dir)
	if err == nil {
		t.Skip("a parent of the temp dir is itself a project")
	}
	assert.Contains(t, err.Error(), "not found")
}
