package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "distkit",
	Short: "Release build tool",
	Long: `distkit runs the build tasks declared in a project's tasks.star file and
provides the native steps of the release pipeline: packing the distributable
artifact, staging the container build context and rendering the HTML docs.`,
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
