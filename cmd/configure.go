package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"distkit/pkg/buildsys"
)

var configureCmd = &cobra.Command{
	Use:   "configure [name=value ...]",
	Short: "Stores option values for later runs",
	Long: `Saves the given name=value pairs so that following run invocations use
them without repeating them on the command line. Without arguments the
declared options and their current values are printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := zerolog.New(NewConsoleWriter())
		ctx := buildsys.WithLogger(context.Background(), &logger)

		taskPath, err := findTaskFile()
		if err != nil {
			return err
		}

		projectRoot := filepath.Dir(taskPath)
		cachePath := filepath.Join(projectRoot, CacheFileName)

		stored, err := buildsys.LoadOptions(cachePath)
		if err != nil {
			return err
		}

		_, values := splitTaskArgs(args)
		if len(values) > 0 {
			for name, value := range values {
				stored[name] = value
			}

			return buildsys.SaveOptions(cachePath, stored)
		}

		declared, err := buildsys.DeclaredOptions(ctx, taskPath, projectRoot)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(declared))
		for name := range declared {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Println("Available options:")
		for _, name := range names {
			value, ok := stored[name]
			if !ok {
				value = declared[name].Default() + " (default)"
			}

			fmt.Printf(" * %s = %s\n", name, value)
			if declared[name].Help != "" {
				fmt.Printf("     %s\n", declared[name].Help)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configureCmd)
}
