package pkg

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// StageImage prepares a clean container build context: it recreates the
// context directory and copies the package artifact and the Dockerfile into
// it. The image build itself is left to the container tool.
func StageImage(artifact, contextDir, dockerfile string) error {
	_, err := os.Stat(artifact)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return eris.Errorf("package artifact %s does not exist, run the wheel task first", artifact)
		}
		return eris.Wrapf(err, "failed to check %s", artifact)
	}

	_, err = os.Stat(dockerfile)
	if err != nil {
		return eris.Wrapf(err, "failed to check %s", dockerfile)
	}

	err = os.RemoveAll(contextDir)
	if err != nil {
		return eris.Wrapf(err, "failed to clean %s", contextDir)
	}

	err = os.MkdirAll(contextDir, 0770)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", contextDir)
	}

	err = copyFile(artifact, filepath.Join(contextDir, filepath.Base(artifact)))
	if err != nil {
		return err
	}

	return copyFile(dockerfile, filepath.Join(contextDir, "Dockerfile"))
}

func copyFile(src, dest string) error {
	srcHandle, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", src)
	}
	defer srcHandle.Close()

	info, err := srcHandle.Stat()
	if err != nil {
		return eris.Wrapf(err, "failed to stat %s", src)
	}

	destHandle, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}

	_, err = io.Copy(destHandle, srcHandle)
	if err != nil {
		destHandle.Close()
		return eris.Wrapf(err, "failed to copy %s to %s", src, dest)
	}

	return destHandle.Close()
}
