package cmd

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"distkit/pkg"
)

var unpackDistCmd = &cobra.Command{
	Use:   "unpack-dist archive_name destination",
	Short: "Unpacks a package artifact and verifies its checksums",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return eris.New("expected 2 arguments")
		}

		pkg.PrintTask(fmt.Sprintf("Unpacking %s", args[0]))
		manifest, err := pkg.ExtractDist(args[0], args[1])
		if err != nil {
			return err
		}

		pkg.PrintStep(fmt.Sprintf("%s %s (build %s), %d files verified",
			manifest.Name, manifest.Version, manifest.BuildID, len(manifest.Files)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(unpackDistCmd)
}
