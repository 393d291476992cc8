package buildsys

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

func infoBuiltin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	scriptLog(thread, false, "%s", message)
	return starlark.None, nil
}

func warnBuiltin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	scriptLog(thread, true, "%s", message)
	return starlark.None, nil
}

func failBuiltin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

func getenvBuiltin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name)
	if err != nil {
		return nil, err
	}

	value, ok := getScriptCtx(thread).envOverrides[name]
	if !ok {
		value = os.Getenv(name)
	}

	return starlark.String(value), nil
}

func setenvBuiltin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, value string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &name, &value)
	if err != nil {
		return nil, err
	}

	getScriptCtx(thread).envOverrides[name] = value
	return starlark.None, nil
}

func prependPathBuiltin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) != 1 {
		return nil, eris.Errorf("got %d arguments, want 1", len(args))
	}

	var dir string
	switch value := args[0].(type) {
	case starlark.String:
		dir = value.GoString()
	case Path:
		dir = string(value)
	default:
		return nil, eris.Errorf("for parameter 1: got %s, want path or string", args[0].Type())
	}

	ctx := getScriptCtx(thread)
	path, ok := ctx.envOverrides["PATH"]
	if !ok {
		path = os.Getenv("PATH")
	}

	ctx.envOverrides["PATH"] = normalizePath(ctx, dir) + string(os.PathListSeparator) + path
	return starlark.String(ctx.envOverrides["PATH"]), nil
}

func resolvePathBuiltin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) < 1 {
		return nil, eris.New("expects at least one argument")
	}

	ctx := getScriptCtx(thread)
	base := ""
	for _, kv := range kwargs {
		key := kv[0].(starlark.String).GoString()
		if key != "base" {
			return nil, eris.Errorf("unexpected keyword argument %s", key)
		}

		switch value := kv[1].(type) {
		case starlark.String:
			base = normalizePath(ctx, value.GoString())
		case Path:
			base = normalizePath(ctx, string(value))
		default:
			return nil, eris.Errorf("invalid type %s for keyword base, expected string or path", kv[1].Type())
		}
	}

	elements := make([]string, len(args))
	for idx, arg := range args {
		switch value := arg.(type) {
		case starlark.String:
			elements[idx] = value.GoString()
		case Path:
			elements[idx] = string(value)
		default:
			return nil, eris.Errorf("only accepts string arguments but argument %d was a %s", idx, arg.Type())
		}
	}

	result := normalizePath(ctx, elements...)
	if base != "" {
		var err error
		result, err = filepath.Rel(base, result)
		if err != nil {
			return nil, err
		}
	}

	return Path(result), nil
}

func globBuiltin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) < 1 {
		return nil, eris.New("expects at least one pattern")
	}

	ctx := getScriptCtx(thread)
	matches := []string{}
	for idx, arg := range args {
		pattern, ok := arg.(starlark.String)
		if !ok {
			return nil, eris.Errorf("pattern %d must be a string, got %s", idx, arg.Type())
		}

		found, err := filepath.Glob(normalizePath(ctx, pattern.GoString()))
		if err != nil {
			return nil, eris.Wrapf(err, "invalid pattern %s", pattern.GoString())
		}

		matches = append(matches, found...)
	}

	sort.Strings(matches)
	result := make([]starlark.Value, len(matches))
	for idx, match := range matches {
		result[idx] = Path(match)
	}

	return starlark.NewList(result), nil
}

func readYamlBuiltin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var file, key string
	var fallback starlark.Value

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &file, &key, &fallback)
	if err != nil {
		return nil, err
	}
	if fallback == nil {
		fallback = starlark.None
	}

	ctx := getScriptCtx(thread)
	file = normalizePath(ctx, file)

	doc, cached := ctx.yamlCache[file]
	if !cached {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to read %s", file)
		}

		err = yaml.Unmarshal(content, &doc)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse %s", file)
		}
		ctx.yamlCache[file] = doc
	}

	value := doc
	for _, element := range strings.Split(key, ".") {
		switch current := value.(type) {
		case map[string]interface{}:
			value = current[element]
		case []interface{}:
			idx, err := strconv.Atoi(element)
			if err != nil || idx < 0 || idx >= len(current) {
				value = nil
			} else {
				value = current[idx]
			}
		default:
			value = nil
		}

		if value == nil {
			return fallback, nil
		}
	}

	return goValueToStarlark(value)
}

func isdirBuiltin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(normalizePath(getScriptCtx(thread), path))
	return starlark.Bool(err == nil && info.IsDir()), nil
}

func isfileBuiltin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(normalizePath(getScriptCtx(thread), path))
	return starlark.Bool(err == nil && info.Mode().IsRegular()), nil
}

// runBuiltin implements run() which executes a command during parsing and
// returns its output (optionally decoded as JSON). It returns False if the
// command fails.
func runBuiltin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var command starlark.Value
	var format string
	var showError bool

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "command", &command, "format?", &format, "show_error?", &showError)
	if err != nil {
		return nil, err
	}

	if format == "" {
		format = "text"
	}
	if format != "text" && format != "json" {
		return nil, eris.Errorf("unsupported format %s", format)
	}

	ctx := getScriptCtx(thread)
	base := filepath.Dir(ctx.filename)
	parser := syntax.NewParser()

	var stmts []syntax.Node
	switch command := command.(type) {
	case starlark.String:
		cmd := ShellCmd{TaskName: fn.Name(), Source: command.GoString()}
		parsed, err := cmd.ShellStmts(parser)
		if err != nil {
			return nil, err
		}

		stmts = make([]syntax.Node, len(parsed))
		for idx, stmt := range parsed {
			stmts[idx] = stmt
		}
	case starlark.Tuple:
		call, err := cmdFromParts(command, parser, base)
		if err != nil {
			return nil, err
		}

		stmts = []syntax.Node{call}
	default:
		return nil, eris.Errorf("command must be a string or tuple, got %s", command.Type())
	}

	output := strings.Builder{}
	var errOut io.Writer
	if showError {
		errOut = os.Stderr
	}

	runner, err := interp.New(
		interp.Dir(base),
		interp.Env(expand.ListEnviron(scriptEnv(ctx)...)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, &output, errOut),
		interp.Params("-e"),
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to initialize shell runner")
	}

	for _, stmt := range stmts {
		err := runner.Run(ctx.ctx, stmt)
		if err != nil {
			if showError {
				log(ctx.ctx).Error().Err(err).Msg("shell error")
			}
			return starlark.False, nil
		}
	}

	if format == "json" {
		var decoded interface{}
		err = json.Unmarshal([]byte(output.String()), &decoded)
		if err != nil {
			return nil, eris.Wrap(err, "failed to parse command output")
		}

		return goValueToStarlark(decoded)
	}

	return starlark.String(output.String()), nil
}
