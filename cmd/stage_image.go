package cmd

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"distkit/pkg"
)

var stageImageCmd = &cobra.Command{
	Use:   "stage-image artifact context_directory",
	Short: "Prepares the container build context from a package artifact",
	Long: `Recreates the context directory and copies the package artifact and the
Dockerfile into it. Run the container build tool against the context
afterwards, e.g. docker build.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return eris.New("expected 2 arguments")
		}

		dockerfile, err := cmd.Flags().GetString("dockerfile")
		if err != nil {
			return err
		}

		pkg.PrintTask(fmt.Sprintf("Staging %s into %s", args[0], args[1]))
		err = pkg.StageImage(args[0], args[1], dockerfile)
		if err != nil {
			return err
		}

		pkg.PrintStep("Build context ready")
		return nil
	},
}

func init() {
	stageImageCmd.Flags().String("dockerfile", "docker/Dockerfile", "Dockerfile to copy into the context")

	rootCmd.AddCommand(stageImageCmd)
}
