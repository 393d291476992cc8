package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"distkit/pkg/buildsys"
)

// TaskFileName is the task file distkit searches for
const TaskFileName = "tasks.star"

// CacheFileName stores option values between runs (see the configure
// subcommand)
const CacheFileName = ".distkit.cache"

// findTaskFile walks up from the working directory until it finds a
// tasks.star file
func findTaskFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", eris.Wrap(err, "failed to retrieve the current working directory")
	}

	for {
		taskPath := filepath.Join(dir, TaskFileName)
		_, err := os.Stat(taskPath)
		if err == nil {
			return taskPath, nil
		}
		if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrapf(err, "failed to check %s", taskPath)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", eris.Errorf("no %s file found", TaskFileName)
		}
		dir = parent
	}
}

func splitTaskArgs(args []string) ([]string, map[string]string) {
	taskNames := make([]string, 0, len(args))
	options := make(map[string]string)

	for _, arg := range args {
		pos := strings.Index(arg, "=")
		if pos > -1 {
			options[arg[:pos]] = arg[pos+1:]
		} else {
			taskNames = append(taskNames, arg)
		}
	}

	return taskNames, options
}

func listTasks(tasks buildsys.TaskList) {
	fmt.Println("Available tasks:")

	names := make([]string, 0, len(tasks))
	maxLen := 0
	for _, task := range tasks {
		if len(task.Name) > maxLen {
			maxLen = len(task.Name)
		}
		names = append(names, task.Name)
	}
	sort.Strings(names)

	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxLen+3)
	for _, name := range names {
		fmt.Printf(lineFmt, name+":", tasks[name].Desc)
	}
}

var runCmd = &cobra.Command{
	Use:   "run [task ...] [name=value ...]",
	Short: "Runs tasks from the nearest tasks.star file",
	Long: `Parses the first tasks.star file found in the current directory or any
directory above it and executes the given tasks after their dependencies.
name=value arguments override task file options. Without task arguments the
available tasks are listed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		logger := zerolog.New(NewConsoleWriter())
		ctx := buildsys.WithLogger(context.Background(), &logger)

		taskPath, err := findTaskFile()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to locate the task file")
		}

		projectRoot := filepath.Dir(taskPath)
		taskNames, options := splitTaskArgs(args)

		cached, err := buildsys.LoadOptions(filepath.Join(projectRoot, CacheFileName))
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to read the option cache")
		}
		for name, value := range options {
			cached[name] = value
		}

		tasks, _, err := buildsys.Parse(ctx, taskPath, projectRoot, cached)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to parse the task file")
		}

		if len(taskNames) == 0 {
			listTasks(tasks)
			return nil
		}

		for _, name := range taskNames {
			err = buildsys.RunTask(ctx, projectRoot, name, tasks, buildsys.RunOptions{
				DryRun: dryRun,
				Force:  force,
			})
			if err != nil {
				logger.Fatal().Err(err).Msgf("Task %s failed:", name)
			}
		}

		return nil
	},
}

func init() {
	runCmd.Flags().BoolP("dry", "n", false, "only print the commands, don't execute anything")
	runCmd.Flags().BoolP("force", "f", false, "always run the requested tasks even if they are up to date")

	rootCmd.AddCommand(runCmd)
}
