package buildsys

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
	"mvdan.cc/sh/v3/syntax"
)

// Task holds the processed values a task file passed to task()
type Task struct {
	Env          map[string]string
	Name         string
	Desc         string
	Dir          string
	Deps         []string
	Inputs       []string
	Outputs      []string
	SkipIfExists []string
	Cmds         []TaskCmd
	Hidden       bool
}

// TaskList maps task names to their definitions
type TaskList map[string]*Task

// TaskCmd is a single entry of a task's cmds list, either a shell fragment
// or a reference to another task.
type TaskCmd interface {
	TaskRef() *Task
	ShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error)
}

// ShellCmd is a shell fragment that belongs to a task
type ShellCmd struct {
	TaskName string
	Source   string
	Index    int
}

func (c ShellCmd) TaskRef() *Task { return nil }

func (c ShellCmd) ShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error) {
	result, err := parser.Parse(strings.NewReader(c.Source), fmt.Sprintf("%s:%d", c.TaskName, c.Index))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %q", c.Source)
	}

	return result.Stmts, nil
}

// TaskRefCmd points to another task that should run in this task's place
type TaskRefCmd struct {
	Target *Task
}

func (c TaskRefCmd) TaskRef() *Task { return c.Target }

func (c TaskRefCmd) ShellStmts(*syntax.Parser) ([]*syntax.Stmt, error) { return nil, nil }

// Option describes an option() declaration from a task file
type Option struct {
	DefaultValue starlark.String
	Help         string
}

func (o Option) Default() string {
	return o.DefaultValue.GoString()
}

// *Task implements starlark.Value so task() results can be assigned and
// passed around inside the task file.

func (t *Task) String() string {
	return fmt.Sprintf("<task %s: %s>", t.Name, t.Desc)
}

func (t *Task) Type() string { return "task" }

// Freeze is a no-op, tasks are never mutated after creation
func (t *Task) Freeze() {}

func (t *Task) Truth() starlark.Bool { return starlark.True }

func (t *Task) Hash() (uint32, error) {
	return 0, eris.New("task is not a hashable type")
}

// Path is a filesystem path produced by resolve_path(). It behaves like a
// string inside the task file but is re-anchored relative to the task's
// directory when it ends up in a command.
type Path string

func (p Path) String() string { return starlark.String(p).String() }

func (p Path) Type() string { return "path" }

func (p Path) Freeze() {}

func (p Path) Truth() starlark.Bool { return p != "" }

func (p Path) Hash() (uint32, error) { return starlark.String(p).Hash() }

func (p Path) Len() int { return len(p) }

func (p Path) Index(i int) starlark.Value { return starlark.String(p[i]) }

func (p Path) Slice(start, end, step int) starlark.Value {
	return starlark.String(p).Slice(start, end, step)
}

func (p Path) CompareSameType(op starsyntax.Token, other starlark.Value, depth int) (bool, error) {
	o := other.(Path)

	switch op {
	case starsyntax.EQL:
		return p == o, nil
	case starsyntax.NEQ:
		return p != o, nil
	case starsyntax.LT:
		return p < o, nil
	case starsyntax.LE:
		return p <= o, nil
	case starsyntax.GT:
		return p > o, nil
	case starsyntax.GE:
		return p >= o, nil
	}

	return false, eris.Errorf("unknown operator %v", op)
}
