package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"distkit/pkg"
)

var packDistCmd = &cobra.Command{
	Use:   "pack-dist archive_name project_directory",
	Short: "Packs the project tree into a distributable package artifact",
	Long: `Packs the given directory into a compressed tar archive with an embedded
manifest (name, version, build id and a checksum for every file). Name,
version and excludes default to the values from the project's project.yml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return eris.New("expected 2 arguments")
		}

		archivePath := args[0]
		srcDir := args[1]

		name, err := cmd.Flags().GetString("name")
		if err != nil {
			return err
		}

		version, err := cmd.Flags().GetString("version")
		if err != nil {
			return err
		}

		compression, err := cmd.Flags().GetString("compression")
		if err != nil {
			return err
		}

		excludes, err := cmd.Flags().GetStringArray("exclude")
		if err != nil {
			return err
		}

		cfgPath := filepath.Join(srcDir, pkg.ConfigName)
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			cfg, err := pkg.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			if name == "" {
				name = cfg.Name
			}
			if version == "" {
				version = cfg.Version
			}
			excludes = append(excludes, cfg.Dist.Dir)
			excludes = append(excludes, cfg.Dist.Exclude...)
			excludes = append(excludes, cfg.Image.Context, cfg.Docs.Output)
		}

		if name == "" || version == "" {
			return eris.Errorf("pass --name and --version or add a %s to %s", pkg.ConfigName, srcDir)
		}

		if compression == "" {
			compression, err = pkg.CompressionForPath(archivePath)
			if err != nil {
				return err
			}
		}

		pkg.PrintTask(fmt.Sprintf("Packing %s %s", name, version))
		manifest, err := pkg.PackDist(archivePath, srcDir, name, version, compression, excludes)
		if err != nil {
			return err
		}

		pkg.PrintStep(fmt.Sprintf("%d files -> %s (build %s)", len(manifest.Files), archivePath, manifest.BuildID))
		return nil
	},
}

func init() {
	packDistCmd.Flags().String("name", "", "artifact name (defaults to project.yml)")
	packDistCmd.Flags().String("version", "", "artifact version (defaults to project.yml)")
	packDistCmd.Flags().String("compression", "", "compression to use: xz, gz, br or none (defaults to the archive suffix)")
	packDistCmd.Flags().StringArray("exclude", nil, "paths or patterns to leave out of the artifact")

	rootCmd.AddCommand(packDistCmd)
}
