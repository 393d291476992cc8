package buildsys

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// RunOptions control how tasks are executed
type RunOptions struct {
	// DryRun only logs the commands instead of executing them
	DryRun bool
	// Force skips the up-to-date checks for the requested task
	Force bool
}

type taskState int

const (
	statePending taskState = iota
	stateRunning
	stateDone
)

type runState struct {
	states      map[string]taskState
	projectRoot string
}

type runStateKey struct{}

func getRunState(ctx context.Context) *runState {
	return ctx.Value(runStateKey{}).(*runState)
}

var defaultExecHandler = interp.DefaultExecHandler(2)

// execHandler reroutes mv, rm and mkdir to distkit's own implementations so
// they behave the same on every platform
func execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "mv", "rm", "mkdir":
			args = append([]string{"distkit"}, args...)
		}
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func taskEnv(task *Task) expand.Environ {
	env := os.Environ()
	for name, value := range task.Env {
		env = append(env, fmt.Sprintf("%s=%s", name, value))
	}

	return expand.ListEnviron(env...)
}

// anchorPattern resolves a task-relative pattern. "//" anchors at the
// project root, everything else is relative to the task directory.
func anchorPattern(projectRoot, dir, pattern string) string {
	if strings.HasPrefix(pattern, "//") {
		return filepath.Join(projectRoot, pattern[2:])
	}
	if filepath.IsAbs(pattern) {
		return filepath.Clean(pattern)
	}
	return filepath.Join(dir, pattern)
}

func shellReadDir(path string) ([]os.FileInfo, error) {
	if path == "" {
		path = "."
	}

	handle, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	return handle.Readdir(0)
}

// expandPatterns resolves a glob pattern list to existing paths. Patterns
// that match nothing are dropped.
func expandPatterns(ctx context.Context, dir string, patterns []string) ([]string, error) {
	result := []string{}
	cfg := expand.Config{
		ReadDir:  shellReadDir,
		GlobStar: true,
	}

	parser := syntax.NewParser()
	projectRoot := getRunState(ctx).projectRoot

	for _, pattern := range patterns {
		pattern = filepath.ToSlash(anchorPattern(projectRoot, dir, pattern))

		words := make([]*syntax.Word, 0)
		err := parser.Words(strings.NewReader(pattern), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse pattern %s", pattern)
		}

		matches, err := expand.Fields(&cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve pattern %s", pattern)
		}

		for _, match := range matches {
			// unmatched patterns are returned verbatim, skip those
			if !strings.Contains(match, "*") {
				result = append(result, match)
			}
		}
	}
	return result, nil
}

// RunTask executes the named task after all of its dependencies. Each task
// runs at most once per RunTask call.
func RunTask(ctx context.Context, projectRoot, name string, tasks TaskList, opts RunOptions) error {
	task, found := tasks[name]
	if !found {
		return eris.Errorf("task %s not found", name)
	}

	state := runState{
		projectRoot: projectRoot,
		states:      make(map[string]taskState),
	}
	ctx = context.WithValue(ctx, runStateKey{}, &state)

	return runTask(ctx, task, tasks, opts, true)
}

func runTask(ctx context.Context, task *Task, tasks TaskList, opts RunOptions, canSkip bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	state := getRunState(ctx)
	switch state.states[task.Name] {
	case stateDone:
		log(ctx).Debug().Msgf("task %s already ran", task.Name)
		return nil
	case stateRunning:
		return eris.Errorf("task %s depends on itself", task.Name)
	}

	state.states[task.Name] = stateRunning

	for _, dep := range task.Deps {
		depTask, found := tasks[dep]
		if !found {
			return eris.Errorf("task %s not found (dependency of %s)", dep, task.Name)
		}

		// dependencies always get their up-to-date checks, even under --force
		err := runTask(ctx, depTask, tasks, RunOptions{DryRun: opts.DryRun}, true)
		if err != nil {
			return eris.Wrapf(err, "task %s failed due to its dependency %s", task.Name, dep)
		}
	}

	skip, err := shouldSkip(ctx, task, opts, canSkip)
	if err != nil {
		return err
	}
	if skip {
		state.states[task.Name] = stateDone
		return nil
	}

	runner, err := interp.New(
		interp.Dir(task.Dir),
		interp.Env(taskEnv(task)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, os.Stdout, os.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "failed to initialize shell runner")
	}

	parser := syntax.NewParser()
	printer := syntax.NewPrinter(syntax.Minify(true))
	buffer := strings.Builder{}

	for _, cmd := range task.Cmds {
		stmts, err := cmd.ShellStmts(parser)
		if err != nil {
			return eris.Wrap(err, "failed to parse shell command")
		}

		if stmts == nil {
			subTask := cmd.TaskRef()
			if subTask == nil {
				return eris.Errorf("unexpected task command %+v", cmd)
			}

			err = runTask(ctx, subTask, tasks, opts, true)
			if err != nil {
				return err
			}
			continue
		}

		for _, stmt := range stmts {
			buffer.Reset()
			printer.Print(&buffer, stmt)
			log(ctx).Info().
				Str("task", task.Name).
				Bool("command", true).
				Msg(buffer.String())

			if opts.DryRun {
				continue
			}

			err = runner.Run(ctx, stmt)
			if err != nil {
				return err
			}

			if runner.Exited() {
				return nil
			}
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	state.states[task.Name] = stateDone
	return nil
}

// shouldSkip implements the two up-to-date checks: skip_if_exists paths and
// the input/output mtime comparison.
func shouldSkip(ctx context.Context, task *Task, opts RunOptions, canSkip bool) (bool, error) {
	if opts.Force {
		return false, nil
	}

	if canSkip && len(task.SkipIfExists) > 0 {
		skipList, err := expandPatterns(ctx, task.Dir, task.SkipIfExists)
		if err != nil {
			return false, eris.Wrap(err, "failed to resolve skip_if_exists list")
		}

		found := 0
		for _, item := range skipList {
			_, err := os.Stat(item)
			if err == nil {
				found++
			} else if !eris.Is(err, os.ErrNotExist) {
				return false, eris.Wrapf(err, "failed to check %s", item)
			}
		}

		if found > 0 && found == len(skipList) {
			log(ctx).Info().
				Str("task", task.Name).
				Msg("skipped because all skip files exist")
			return true, nil
		}
	}

	inputs, err := expandPatterns(ctx, task.Dir, task.Inputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve inputs")
	}

	var newestInput time.Time
	for _, item := range inputs {
		info, err := os.Stat(item)
		if err != nil {
			return false, eris.Wrapf(err, "failed to check input %s", item)
		}

		if info.ModTime().After(newestInput) {
			newestInput = info.ModTime()
		}
	}

	if newestInput.IsZero() {
		return false, nil
	}

	outputs, err := expandPatterns(ctx, task.Dir, task.Outputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve outputs")
	}

	var newestOutput time.Time
	for _, item := range outputs {
		info, err := os.Stat(item)
		if err != nil {
			if eris.Is(err, os.ErrNotExist) {
				return false, nil
			}
			return false, eris.Wrapf(err, "failed to check output %s", item)
		}

		if info.ModTime().After(newestOutput) {
			newestOutput = info.ModTime()
		}
	}

	if len(outputs) > 0 && newestOutput.After(newestInput) {
		log(ctx).Info().
			Str("task", task.Name).
			Msgf("nothing to do (output is %.0f seconds newer)", newestOutput.Sub(newestInput).Seconds())
		return true, nil
	}

	return false, nil
}
