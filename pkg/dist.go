package pkg

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"
	"gopkg.in/yaml.v3"

	"github.com/aidarkhanov/nanoid"
)

// ManifestName is the manifest entry stored as the last file of every
// package artifact
const ManifestName = "MANIFEST.yml"

// ManifestFile records a single packed file
type ManifestFile struct {
	Path   string `yaml:"path"`
	Size   int64  `yaml:"size"`
	Sha256 string `yaml:"sha256"`
}

// Manifest describes a package artifact
type Manifest struct {
	Name      string         `yaml:"name"`
	Version   string         `yaml:"version"`
	BuildID   string         `yaml:"buildId"`
	CreatedAt time.Time      `yaml:"createdAt"`
	Files     []ManifestFile `yaml:"files"`
}

// CompressionForPath derives the compression kind from an archive filename
func CompressionForPath(path string) (string, error) {
	switch {
	case strings.HasSuffix(path, ".tar.xz"):
		return "xz", nil
	case strings.HasSuffix(path, ".tar.gz"):
		return "gz", nil
	case strings.HasSuffix(path, ".tar.br"):
		return "br", nil
	case strings.HasSuffix(path, ".tar"):
		return "none", nil
	}

	return "", eris.Errorf("can't derive the compression from %s (expected .tar, .tar.xz, .tar.gz or .tar.br)", path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func newCompressor(w io.Writer, kind string) (io.WriteCloser, error) {
	switch kind {
	case "xz":
		return xz.NewWriter(w)
	case "gz":
		return gzip.NewWriter(w), nil
	case "br":
		return brotli.NewWriterLevel(w, brotli.BestCompression), nil
	case "none":
		return nopWriteCloser{w}, nil
	}

	return nil, eris.Errorf("unsupported compression %q", kind)
}

func newDecompressor(r io.Reader, kind string) (io.Reader, error) {
	switch kind {
	case "xz":
		return xz.NewReader(r)
	case "gz":
		return gzip.NewReader(r)
	case "br":
		return brotli.NewReader(r), nil
	case "none":
		return r, nil
	}

	return nil, eris.Errorf("unsupported compression %q", kind)
}

// DistWriter writes a package artifact: a compressed tar stream whose last
// entry is the manifest.
type DistWriter struct {
	handle     *os.File
	compressor io.WriteCloser
	archive    *tar.Writer
	manifest   Manifest
	buffer     []byte
}

// NewDistWriter creates the archive file and prepares the manifest
func NewDistWriter(filename, name, version, compression string) (*DistWriter, error) {
	handle, err := os.Create(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create %s", filename)
	}

	compressor, err := newCompressor(handle, compression)
	if err != nil {
		handle.Close()
		return nil, err
	}

	return &DistWriter{
		handle:     handle,
		compressor: compressor,
		archive:    tar.NewWriter(compressor),
		buffer:     make([]byte, 32*1024),
		manifest: Manifest{
			Name:      name,
			Version:   version,
			BuildID:   nanoid.New(),
			CreatedAt: time.Now().UTC(),
		},
	}, nil
}

// AddFile packs a single file under the given archive path
func (w *DistWriter) AddFile(archivePath string, src *os.File) error {
	info, err := src.Stat()
	if err != nil {
		return eris.Wrapf(err, "failed to stat %s", src.Name())
	}

	archivePath = filepath.ToSlash(archivePath)
	err = w.archive.WriteHeader(&tar.Header{
		Name:    archivePath,
		Mode:    int64(info.Mode().Perm()),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	})
	if err != nil {
		return eris.Wrapf(err, "failed to write header for %s", archivePath)
	}

	hash := sha256.New()
	written, err := io.CopyBuffer(io.MultiWriter(w.archive, hash), src, w.buffer)
	if err != nil {
		return eris.Wrapf(err, "failed to pack %s", archivePath)
	}

	w.manifest.Files = append(w.manifest.Files, ManifestFile{
		Path:   archivePath,
		Size:   written,
		Sha256: hex.EncodeToString(hash.Sum(nil)),
	})
	return nil
}

// Manifest returns the manifest collected so far
func (w *DistWriter) Manifest() *Manifest {
	return &w.manifest
}

// Close writes the manifest entry and finishes the archive
func (w *DistWriter) Close() error {
	encoded, err := yaml.Marshal(w.manifest)
	if err != nil {
		w.handle.Close()
		return eris.Wrap(err, "failed to encode the manifest")
	}

	err = w.archive.WriteHeader(&tar.Header{
		Name:    ManifestName,
		Mode:    0644,
		Size:    int64(len(encoded)),
		ModTime: w.manifest.CreatedAt,
	})
	if err == nil {
		_, err = w.archive.Write(encoded)
	}
	if err != nil {
		w.handle.Close()
		return eris.Wrap(err, "failed to write the manifest")
	}

	err = w.archive.Close()
	if err == nil {
		err = w.compressor.Close()
	}
	if err != nil {
		w.handle.Close()
		return eris.Wrap(err, "failed to finish the archive")
	}

	return w.handle.Close()
}

func getProgressBar(length int64, desc string) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}

func isExcluded(relPath string, excludes []string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, pattern := range excludes {
		pattern = strings.TrimSuffix(filepath.ToSlash(pattern), "/")
		if relPath == pattern || strings.HasPrefix(relPath, pattern+"/") {
			return true
		}

		if match, err := filepath.Match(pattern, relPath); err == nil && match {
			return true
		}
	}
	return false
}

// PackDist packs the given directory into a package artifact. Hidden files
// and the configured excludes are left out.
func PackDist(archivePath, srcDir, name, version, compression string, excludes []string) (*Manifest, error) {
	srcDir, err := filepath.Abs(srcDir)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve %s", srcDir)
	}

	absArchive, err := filepath.Abs(archivePath)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve %s", archivePath)
	}

	// collect the file list first so the progress bar has a total
	files := make([]string, 0)
	var total int64
	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if path == srcDir {
			return nil
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		if strings.HasPrefix(filepath.Base(path), ".") || isExcluded(relPath, excludes) || path == absArchive {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.Mode().IsRegular() {
			files = append(files, relPath)
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to scan %s", srcDir)
	}

	if len(files) == 0 {
		return nil, eris.Errorf("nothing to pack in %s", srcDir)
	}

	err = os.MkdirAll(filepath.Dir(absArchive), 0770)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create %s", filepath.Dir(absArchive))
	}

	writer, err := NewDistWriter(archivePath, name, version, compression)
	if err != nil {
		return nil, err
	}

	bar := getProgressBar(total, "         pack")
	for _, relPath := range files {
		handle, err := os.Open(filepath.Join(srcDir, relPath))
		if err != nil {
			writer.handle.Close()
			return nil, eris.Wrapf(err, "failed to open %s", relPath)
		}

		err = writer.AddFile(relPath, handle)
		handle.Close()
		if err != nil {
			writer.handle.Close()
			return nil, err
		}

		info, err := os.Stat(filepath.Join(srcDir, relPath))
		if err == nil {
			bar.Add64(info.Size())
		}
	}
	bar.Finish()

	manifest := writer.manifest
	err = writer.Close()
	if err != nil {
		return nil, err
	}

	return &manifest, nil
}

// ExtractDist unpacks a package artifact and verifies every file against
// the embedded manifest.
func ExtractDist(archivePath, destDir string) (*Manifest, error) {
	compression, err := CompressionForPath(archivePath)
	if err != nil {
		return nil, err
	}

	handle, err := os.Open(archivePath)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", archivePath)
	}
	defer handle.Close()

	info, err := handle.Stat()
	if err != nil {
		return nil, eris.Wrapf(err, "failed to stat %s", archivePath)
	}

	reader, err := newDecompressor(handle, compression)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", archivePath)
	}

	bar := getProgressBar(info.Size(), "      extract")
	archive := tar.NewReader(reader)
	digests := map[string]string{}
	var manifest *Manifest

	for {
		entry, err := archive.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, eris.Wrapf(err, "failed to read %s", archivePath)
		}

		if entry.Name == ManifestName {
			manifest = new(Manifest)
			err = yaml.NewDecoder(archive).Decode(manifest)
			if err != nil {
				return nil, eris.Wrap(err, "failed to parse the manifest")
			}
			continue
		}

		dest := filepath.Join(destDir, filepath.FromSlash(entry.Name))
		err = os.MkdirAll(filepath.Dir(dest), 0770)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to create %s", filepath.Dir(dest))
		}

		destHandle, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(entry.Mode))
		if err != nil {
			return nil, eris.Wrapf(err, "failed to create %s", dest)
		}

		hash := sha256.New()
		_, err = io.Copy(io.MultiWriter(destHandle, hash), archive)
		destHandle.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "failed to extract %s", entry.Name)
		}

		digests[entry.Name] = hex.EncodeToString(hash.Sum(nil))

		if pos, err := handle.Seek(0, io.SeekCurrent); err == nil {
			bar.Set64(pos)
		}
	}
	bar.Finish()

	if manifest == nil {
		return nil, eris.Errorf("%s does not contain a %s entry", archivePath, ManifestName)
	}

	for _, file := range manifest.Files {
		digest, ok := digests[file.Path]
		if !ok {
			return nil, eris.Errorf("%s is listed in the manifest but missing from the archive", file.Path)
		}

		if digest != file.Sha256 {
			return nil, eris.Errorf("checksum mismatch for %s", file.Path)
		}
	}

	return manifest, nil
}
