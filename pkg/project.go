package pkg

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
)

// FindProjectRoot walks up from the given directory until it finds a
// project.yml or a .git directory.
func FindProjectRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", eris.Wrap(err, "failed to resolve start directory")
	}

	for {
		for _, marker := range []string{ConfigName, ".git"} {
			_, err := os.Stat(filepath.Join(dir, marker))
			if err == nil {
				return dir, nil
			}
			if !eris.Is(err, os.ErrNotExist) {
				return "", eris.Wrapf(err, "failed to check %s", filepath.Join(dir, marker))
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", eris.New("project root not found")
		}
		dir = parent
	}
}

// PrintTask prints a top-level progress banner
func PrintTask(msg string) {
	colorstring.Printf("[blue][bold]==>[default] %s\n", msg)
}

// PrintStep prints a sub-step below the current banner
func PrintStep(msg string) {
	colorstring.Printf("[green][bold]  ->[reset] %s\n", msg)
}

// PrintError prints an error below the current banner
func PrintError(msg string) {
	colorstring.Printf("[red][bold]  ->[reset] %s\n", msg)
}
