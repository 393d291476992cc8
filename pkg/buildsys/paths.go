package buildsys

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

// normalizePath joins the given elements relative to the task file's
// directory. A leading "//" anchors the path at the project root instead.
func normalizePath(ctx *scriptCtx, elements ...string) string {
	result := filepath.Dir(ctx.filename)

	for _, element := range elements {
		switch {
		case strings.HasPrefix(element, "//"):
			result = filepath.Join(ctx.projectRoot, element[2:])
		case filepath.IsAbs(element):
			result = element
		default:
			result = filepath.Join(result, element)
		}
	}

	return filepath.Clean(result)
}

// displayPath renders a path relative to the project root for log messages
func displayPath(ctx *scriptCtx, path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	if strings.HasPrefix(absPath, ctx.projectRoot) {
		return "//" + filepath.ToSlash(absPath[len(ctx.projectRoot)+1:])
	}
	return path
}

// scriptEnv merges the process environment with the overrides collected
// through setenv() and prepend_path().
func scriptEnv(ctx *scriptCtx) []string {
	osEnv := os.Environ()
	merged := make([]string, 0, len(osEnv)+len(ctx.envOverrides))

	for _, entry := range osEnv {
		name := strings.SplitN(entry, "=", 2)[0]
		if runtime.GOOS == "windows" {
			name = strings.ToUpper(name)
		}

		if _, overridden := ctx.envOverrides[name]; !overridden {
			merged = append(merged, entry)
		}
	}

	for name, value := range ctx.envOverrides {
		merged = append(merged, fmt.Sprintf("%s=%s", name, value))
	}

	return merged
}

func stringsFromIterable(input starlark.Iterable, field string) ([]string, error) {
	if list, ok := input.(*starlark.List); ok && list == nil {
		return []string{}, nil
	}

	result := []string{}
	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		switch value := item.(type) {
		case starlark.String:
			result = append(result, value.GoString())
		case Path:
			result = append(result, string(value))
		default:
			return nil, eris.Errorf("expected only strings in %s but found %s", field, item.Type())
		}
	}
	return result, nil
}

// goValueToStarlark converts decoded YAML/JSON values into their Starlark
// counterparts
func goValueToStarlark(value interface{}) (starlark.Value, error) {
	switch value := value.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(value), nil
	case int:
		return starlark.MakeInt(value), nil
	case int64:
		return starlark.MakeInt64(value), nil
	case bool:
		return starlark.Bool(value), nil
	case float64:
		return starlark.Float(value), nil
	}

	refValue := reflect.ValueOf(value)
	switch refValue.Kind() {
	case reflect.Slice, reflect.Array:
		items := make(starlark.Tuple, refValue.Len())
		for idx := 0; idx < refValue.Len(); idx++ {
			converted, err := goValueToStarlark(refValue.Index(idx).Interface())
			if err != nil {
				return nil, err
			}
			items[idx] = converted
		}
		return items, nil
	case reflect.Map:
		dict := starlark.NewDict(refValue.Len())
		iter := refValue.MapRange()
		for iter.Next() {
			key, err := goValueToStarlark(iter.Key().Interface())
			if err != nil {
				return nil, err
			}

			converted, err := goValueToStarlark(iter.Value().Interface())
			if err != nil {
				return nil, err
			}

			if err := dict.SetKey(key, converted); err != nil {
				return nil, err
			}
		}
		return dict, nil
	}

	return nil, eris.Errorf("can't convert value of kind %v", refValue.Kind())
}
