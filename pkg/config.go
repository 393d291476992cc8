package pkg

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ConfigName is the project configuration file distkit looks for
const ConfigName = "project.yml"

// DistConfig describes the package artifact
type DistConfig struct {
	Dir     string   `yaml:"dir"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// ImageConfig describes the container image build
type ImageConfig struct {
	Context    string `yaml:"context"`
	Dockerfile string `yaml:"dockerfile"`
	Tag        string `yaml:"tag,omitempty"`
}

// DocsConfig describes the documentation build
type DocsConfig struct {
	Source string `yaml:"source"`
	Output string `yaml:"output"`
	Title  string `yaml:"title,omitempty"`
}

// Config is the parsed project.yml
type Config struct {
	Name        string      `yaml:"name"`
	Version     string      `yaml:"version"`
	Compression string      `yaml:"compression,omitempty"`
	Dist        DistConfig  `yaml:"dist,omitempty"`
	Image       ImageConfig `yaml:"image,omitempty"`
	Docs        DocsConfig  `yaml:"docs,omitempty"`
}

func defaultConfig() Config {
	return Config{
		Compression: "xz",
		Dist: DistConfig{
			Dir: "dist",
		},
		Image: ImageConfig{
			Context:    "build/docker",
			Dockerfile: "docker/Dockerfile",
		},
		Docs: DocsConfig{
			Source: "docs",
			Output: "docs/_html",
		},
	}
}

// LoadConfig reads and validates the given project.yml
func LoadConfig(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "could not open %s", path)
	}

	cfg := defaultConfig()
	err = yaml.Unmarshal(content, &cfg)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", path)
	}

	if cfg.Name == "" {
		return nil, eris.Errorf("%s does not set a project name", path)
	}

	if cfg.Version == "" {
		return nil, eris.Errorf("%s does not set a version", path)
	}

	switch cfg.Compression {
	case "xz", "gz", "br", "none":
	default:
		return nil, eris.Errorf("unsupported compression %q in %s (expected xz, gz, br or none)", cfg.Compression, path)
	}

	if cfg.Docs.Title == "" {
		cfg.Docs.Title = cfg.Name
	}

	return &cfg, nil
}
