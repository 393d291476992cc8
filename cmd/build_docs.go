package cmd

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"distkit/pkg"
)

var buildDocsCmd = &cobra.Command{
	Use:   "build-docs source_directory output_directory",
	Short: "Renders a Markdown tree into HTML documentation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return eris.New("expected 2 arguments")
		}

		title, err := cmd.Flags().GetString("title")
		if err != nil {
			return err
		}
		if title == "" {
			title = "Documentation"
		}

		pkg.PrintTask(fmt.Sprintf("Rendering docs from %s", args[0]))
		pages, err := pkg.RenderDocs(args[0], args[1], title)
		if err != nil {
			return err
		}

		pkg.PrintStep(fmt.Sprintf("%d pages -> %s", len(pages), args[1]))
		return nil
	},
}

func init() {
	buildDocsCmd.Flags().String("title", "", "site title used in the page headers")

	rootCmd.AddCommand(buildDocsCmd)
}
