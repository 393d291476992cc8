package pkg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// keep progress bars out of the test output
	os.Setenv("CI", "true")
	os.Exit(m.Run())
}

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for path, content := range files {
		dest := filepath.Join(dir, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0770))
		require.NoError(t, os.WriteFile(dest, []byte(content), 0644))
	}
}

func TestPackAndExtractRoundTrip(t *testing.T) {
	for _, suffix := range []string{".tar.xz", ".tar.gz", ".tar.br", ".tar"} {
		t.Run(suffix, func(t *testing.T) {
			src := t.TempDir()
			writeTree(t, src, map[string]string{
				"main.go":          "package main\n",
				"pkg/lib.go":       "package pkg\n",
				"docs/index.md":    "# hello\n",
				".hidden":          "skip me",
				"build/stale.txt":  "skip me too",
				"assets/logo.webp": "binary-ish content",
			})

			archive := filepath.Join(t.TempDir(), "app-1.0.0"+suffix)
			compression, err := CompressionForPath(archive)
			require.NoError(t, err)

			manifest, err := PackDist(archive, src, "app", "1.0.0", compression, []string{"build"})
			require.NoError(t, err)

			assert.Equal(t, "app", manifest.Name)
			assert.Equal(t, "1.0.0", manifest.Version)
			assert.NotEmpty(t, manifest.BuildID)
			assert.Len(t, manifest.Files, 4)

			dest := t.TempDir()
			extracted, err := ExtractDist(archive, dest)
			require.NoError(t, err)
			assert.Equal(t, manifest.BuildID, extracted.BuildID)

			content, err := os.ReadFile(filepath.Join(dest, "pkg", "lib.go"))
			require.NoError(t, err)
			assert.Equal(t, "package pkg\n", string(content))

			_, err = os.Stat(filepath.Join(dest, ".hidden"))
			assert.True(t, os.IsNotExist(err))
			_, err = os.Stat(filepath.Join(dest, "build"))
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestPackDistSkipsArchiveInsideTree(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"main.go": "package main\n",
	})

	// the archive lands inside the packed tree, it must not pack itself
	archive := filepath.Join(src, "dist", "app-1.0.0.tar.gz")
	manifest, err := PackDist(archive, src, "app", "1.0.0", "gz", []string{"dist"})
	require.NoError(t, err)
	require.Len(t, manifest.Files, 1)
	assert.Equal(t, "main.go", manifest.Files[0].Path)
}

func TestPackDistEmptyTree(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "app.tar")
	_, err := PackDist(archive, t.TempDir(), "app", "1.0.0", "none", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to pack")
}

func TestExtractDistDetectsCorruption(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"data.txt": "original content that is long enough to corrupt",
	})

	archive := filepath.Join(t.TempDir(), "app-1.0.0.tar")
	_, err := PackDist(archive, src, "app", "1.0.0", "none", nil)
	require.NoError(t, err)

	// flip a byte inside the packed file body
	content, err := os.ReadFile(archive)
	require.NoError(t, err)
	// tar headers are 512 bytes, the first file body starts right after
	content[520] ^= 0xff
	require.NoError(t, os.WriteFile(archive, content, 0644))

	_, err = ExtractDist(archive, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestExtractDistRequiresManifest(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "plain.tar")

	// a tar without the manifest entry is rejected
	writer, err := NewDistWriter(archive, "app", "1.0.0", "none")
	require.NoError(t, err)
	require.NoError(t, writer.archive.Close())
	require.NoError(t, writer.handle.Close())

	_, err = ExtractDist(archive, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ManifestName)
}

func TestCompressionForPath(t *testing.T) {
	cases := map[string]string{
		"dist/app-1.0.0.tar.xz": "xz",
		"dist/app-1.0.0.tar.gz": "gz",
		"dist/app-1.0.0.tar.br": "br",
		"dist/app-1.0.0.tar":    "none",
	}

	for path, expected := range cases {
		kind, err := CompressionForPath(path)
		require.NoError(t, err)
		assert.Equal(t, expected, kind)
	}

	_, err := CompressionForPath("dist/app-1.0.0.zip")
	require.Error(t, err)
}
