package buildsys

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"mvdan.cc/sh/v3/syntax"
)

// scriptCtx carries everything the builtins need while a task file executes
type scriptCtx struct {
	ctx          context.Context
	options      map[string]Option
	optionValues map[string]string
	envOverrides map[string]string
	yamlCache    map[string]interface{}
	filename     string
	projectRoot  string
	tasks        []*Task
	initPhase    bool
}

func getScriptCtx(thread *starlark.Thread) *scriptCtx {
	return thread.Local("scriptCtx").(*scriptCtx)
}

func scriptLog(thread *starlark.Thread, warning bool, msg string, args ...interface{}) {
	ctx := getScriptCtx(thread)
	pos := thread.CallFrame(1).Pos

	event := log(ctx.ctx).Info()
	if warning {
		event = log(ctx.ctx).Warn()
	}

	event.Msgf("%s:%d:%d: %s", displayPath(ctx, ctx.filename), pos.Line, pos.Col, fmt.Sprintf(msg, args...))
}

// cmdFromParts converts a tuple command like ("docker", "build", ctx_dir)
// into a shell call expression. Leading "NAME=value" strings become
// environment assignments for that command.
func cmdFromParts(parts starlark.Tuple, parser *syntax.Parser, taskDir string) (*syntax.CallExpr, error) {
	assigns := 0
	for _, part := range parts {
		value, ok := part.(starlark.String)
		if !ok || !strings.Contains(value.GoString(), "=") {
			break
		}
		assigns++
	}

	var call *syntax.CallExpr
	if assigns > 0 {
		assignSrc := make([]string, assigns)
		for idx := 0; idx < assigns; idx++ {
			assignSrc[idx] = parts[idx].(starlark.String).GoString()
		}

		joined := strings.Join(assignSrc, " ")
		parsed, err := parser.Parse(strings.NewReader(joined), "env assignments")
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse env assignments %q", joined)
		}

		if len(parsed.Stmts) != 1 {
			return nil, eris.Errorf("malformed env assignments %q", joined)
		}

		var ok bool
		call, ok = parsed.Stmts[0].Cmd.(*syntax.CallExpr)
		if !ok || call.Assigns == nil {
			return nil, eris.Errorf("malformed env assignments %q", joined)
		}
	} else {
		call = new(syntax.CallExpr)
	}

	call.Args = make([]*syntax.Word, len(parts)-assigns)
	for idx, arg := range parts[assigns:] {
		var text string

		switch value := arg.(type) {
		case starlark.String:
			text = value.GoString()
		case Path:
			text = string(value)

			// keep commands portable; absolute paths break on Windows
			if filepath.IsAbs(text) {
				if relValue, err := filepath.Rel(taskDir, text); err == nil {
					text = relValue
				}
			}
			text = filepath.ToSlash(text)
		default:
			return nil, eris.Errorf("command arguments must be strings or paths, got %s: %s", arg.Type(), arg.String())
		}

		var part syntax.WordPart
		if strings.ContainsAny(text, " $'") {
			part = &syntax.SglQuoted{Value: text}
		} else {
			part = &syntax.Lit{Value: text}
		}

		call.Args[idx] = &syntax.Word{Parts: []syntax.WordPart{part}}
	}

	return call, nil
}

func printMinified(printer *syntax.Printer, node syntax.Node) (string, error) {
	buffer := strings.Builder{}
	err := printer.Print(&buffer, node)
	if err != nil {
		return "", eris.Wrap(err, "failed to print shell command")
	}

	return buffer.String(), nil
}

// taskBuiltin implements task()
func taskBuiltin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var deps, inputs, outputs, skipIfExists, cmds *starlark.List
	var env *starlark.Dict

	task := new(Task)
	err := starlark.UnpackArgs(fn.Name(), args, kwargs,
		"name?", &task.Name, "desc?", &task.Desc, "deps?", &deps, "dir?", &task.Dir,
		"env?", &env, "inputs?", &inputs, "outputs?", &outputs,
		"skip_if_exists?", &skipIfExists, "cmds?", &cmds, "hidden?", &task.Hidden)
	if err != nil {
		return nil, err
	}

	ctx := getScriptCtx(thread)
	if ctx.initPhase {
		return nil, eris.New("task() can only be called from configure()")
	}

	if task.Name == "" {
		task.Hidden = true
		task.Name = "anon#" + nanoid.New()
	}

	if task.Name == "configure" {
		return nil, eris.New(`"configure" is a reserved task name`)
	}

	if task.Dir == "" {
		task.Dir = "."
	}
	task.Dir = normalizePath(ctx, task.Dir)

	task.Deps, err = stringsFromIterable(deps, "deps")
	if err != nil {
		return nil, err
	}

	task.Inputs, err = stringsFromIterable(inputs, "inputs")
	if err != nil {
		return nil, err
	}

	task.Outputs, err = stringsFromIterable(outputs, "outputs")
	if err != nil {
		return nil, err
	}

	task.SkipIfExists, err = stringsFromIterable(skipIfExists, "skip_if_exists")
	if err != nil {
		return nil, err
	}

	task.Env = map[string]string{}
	if env != nil {
		for _, rawKey := range env.Keys() {
			key, ok := rawKey.(starlark.String)
			if !ok {
				return nil, eris.Errorf("env keys must be strings, found %s", rawKey.Type())
			}

			rawValue, _, err := env.Get(rawKey)
			if err != nil {
				return nil, err
			}

			value, ok := rawValue.(starlark.String)
			if !ok {
				return nil, eris.Errorf("env value for %s must be a string, found %s", key.GoString(), rawValue.Type())
			}

			task.Env[key.GoString()] = value.GoString()
		}
	}

	task.Cmds, err = collectCmds(thread, task, cmds)
	if err != nil {
		return nil, err
	}

	if len(task.Inputs) > 0 && len(task.Outputs) == 0 {
		scriptLog(thread, true, "task %s declares inputs but no outputs", task.Name)
	}

	if !task.Hidden {
		ctx.tasks = append(ctx.tasks, task)
	}
	return task, nil
}

func collectCmds(thread *starlark.Thread, task *Task, cmds *starlark.List) ([]TaskCmd, error) {
	result := make([]TaskCmd, 0)
	if cmds == nil {
		return result, nil
	}

	parser := syntax.NewParser()
	printer := syntax.NewPrinter(syntax.Minify(true))

	iter := cmds.Iterate()
	defer iter.Done()

	var item starlark.Value
	idx := 0
	for iter.Next(&item) {
		switch value := item.(type) {
		case starlark.String:
			result = append(result, ShellCmd{TaskName: task.Name, Source: value.GoString(), Index: idx})
		case starlark.Tuple:
			call, err := cmdFromParts(value, parser, task.Dir)
			if err != nil {
				return nil, eris.Wrapf(err, "failed to process command #%d", idx)
			}

			source, err := printMinified(printer, call)
			if err != nil {
				return nil, eris.Wrapf(err, "failed to process command #%d", idx)
			}

			result = append(result, ShellCmd{TaskName: task.Name, Source: source, Index: idx})
		case *starlark.List:
			parts := make(starlark.Tuple, 0, value.Len())
			subIter := value.Iterate()
			var part starlark.Value
			for subIter.Next(&part) {
				parts = append(parts, part)
			}
			subIter.Done()

			call, err := cmdFromParts(parts, parser, task.Dir)
			if err != nil {
				return nil, eris.Wrapf(err, "failed to process command #%d", idx)
			}

			source, err := printMinified(printer, call)
			if err != nil {
				return nil, eris.Wrapf(err, "failed to process command #%d", idx)
			}

			result = append(result, ShellCmd{TaskName: task.Name, Source: source, Index: idx})
		case *Task:
			result = append(result, TaskRefCmd{Target: value})
		default:
			return nil, eris.Errorf("cmds entries must be strings, tuples, lists or tasks, found %s", item.Type())
		}

		idx++
	}

	return result, nil
}

// optionBuiltin implements option(). Options can only be declared in the
// global scope so that they are all known before configure() runs.
func optionBuiltin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue starlark.String
	var help string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	ctx := getScriptCtx(thread)
	if !ctx.initPhase {
		return nil, eris.New("option() can only be called in the global scope")
	}

	ctx.options[name] = Option{
		DefaultValue: defaultValue,
		Help:         help,
	}

	if value, ok := ctx.optionValues[name]; ok {
		return starlark.String(value), nil
	}
	return defaultValue, nil
}

func scriptBuiltins() starlark.StringDict {
	return starlark.StringDict{
		"OS":           starlark.String(runtime.GOOS),
		"ARCH":         starlark.String(runtime.GOARCH),
		"info":         starlark.NewBuiltin("info", infoBuiltin),
		"warn":         starlark.NewBuiltin("warn", warnBuiltin),
		"fail":         starlark.NewBuiltin("fail", failBuiltin),
		"option":       starlark.NewBuiltin("option", optionBuiltin),
		"getenv":       starlark.NewBuiltin("getenv", getenvBuiltin),
		"setenv":       starlark.NewBuiltin("setenv", setenvBuiltin),
		"prepend_path": starlark.NewBuiltin("prepend_path", prependPathBuiltin),
		"resolve_path": starlark.NewBuiltin("resolve_path", resolvePathBuiltin),
		"glob":         starlark.NewBuiltin("glob", globBuiltin),
		"read_yaml":    starlark.NewBuiltin("read_yaml", readYamlBuiltin),
		"isdir":        starlark.NewBuiltin("isdir", isdirBuiltin),
		"isfile":       starlark.NewBuiltin("isfile", isfileBuiltin),
		"run":          starlark.NewBuiltin("run", runBuiltin),
		"task":         starlark.NewBuiltin("task", taskBuiltin),
	}
}

// Parse executes the given task file, calls its configure() function and
// returns the declared tasks and options.
func Parse(ctx context.Context, filename, projectRoot string, options map[string]string) (TaskList, map[string]Option, error) {
	return parseFile(ctx, filename, projectRoot, options, true)
}

// DeclaredOptions executes only the global scope of the task file and
// returns the option declarations.
func DeclaredOptions(ctx context.Context, filename, projectRoot string) (map[string]Option, error) {
	_, options, err := parseFile(ctx, filename, projectRoot, nil, false)
	return options, err
}

func parseFile(ctx context.Context, filename, projectRoot string, options map[string]string, doConfigure bool) (TaskList, map[string]Option, error) {
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, nil, err
	}

	filename, err = filepath.Abs(filename)
	if err != nil {
		return nil, nil, err
	}

	if options == nil {
		options = map[string]string{}
	}

	threadCtx := scriptCtx{
		ctx:          ctx,
		filename:     filename,
		projectRoot:  projectRoot,
		options:      make(map[string]Option),
		optionValues: options,
		envOverrides: make(map[string]string),
		yamlCache:    make(map[string]interface{}),
		tasks:        make([]*Task, 0),
		initPhase:    true,
	}

	thread := &starlark.Thread{
		Name: "taskfile",
		Print: func(thread *starlark.Thread, msg string) {
			log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	thread.SetLocal("scriptCtx", &threadCtx)

	script, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "failed to read %s", filename)
	}

	globals, err := starlark.ExecFile(thread, displayPath(&threadCtx, filename), script, scriptBuiltins())
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, nil, eris.Errorf("failed to execute %s:\n%s", displayPath(&threadCtx, filename), evalError.Backtrace())
		}
		return nil, nil, eris.Wrapf(err, "failed to execute %s", displayPath(&threadCtx, filename))
	}

	tasks := TaskList{}
	if doConfigure {
		configure, ok := globals["configure"]
		if !ok {
			return nil, nil, eris.Errorf("%s does not declare a configure function", displayPath(&threadCtx, filename))
		}

		configureFunc, ok := configure.(starlark.Callable)
		if !ok {
			return nil, nil, eris.Errorf("%s declares configure but it is not a function", displayPath(&threadCtx, filename))
		}

		threadCtx.initPhase = false
		_, err = starlark.Call(thread, configureFunc, nil, nil)
		if err != nil {
			if evalError, ok := err.(*starlark.EvalError); ok {
				return nil, nil, eris.New(evalError.Backtrace())
			}
			return nil, nil, eris.Wrapf(err, "configure() failed in %s", displayPath(&threadCtx, filename))
		}

		for _, task := range threadCtx.tasks {
			tasks[task.Name] = task

			// setenv() calls apply to every task that doesn't override the
			// variable itself
			for name, value := range threadCtx.envOverrides {
				if _, present := task.Env[name]; !present {
					task.Env[name] = value
				}
			}
		}
	}

	return tasks, threadCtx.options, nil
}
