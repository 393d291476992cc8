package buildsys

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() context.Context {
	logger := zerolog.Nop()
	return WithLogger(context.Background(), &logger)
}

func writeTaskFile(t *testing.T, script string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	taskPath := filepath.Join(dir, "tasks.star")
	require.NoError(t, os.WriteFile(taskPath, []byte(script), 0600))

	return taskPath, dir
}

func TestParseCollectsTasksAndOptions(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
flavor = option("flavor", "vanilla", help="build flavor")

def configure():
    task(
        "prep",
        desc="prepares the tree",
        outputs=["out/prep.txt"],
        cmds=["echo prep"],
    )

    task(
        "build",
        desc="builds everything",
        deps=["prep"],
        env={"FLAVOR": flavor},
        cmds=["echo build"],
    )
`)

	tasks, options, err := Parse(testContext(), taskPath, dir, nil)
	require.NoError(t, err)

	require.Len(t, tasks, 2)
	require.Contains(t, tasks, "prep")
	require.Contains(t, tasks, "build")

	build := tasks["build"]
	assert.Equal(t, "builds everything", build.Desc)
	assert.Equal(t, []string{"prep"}, build.Deps)
	assert.Equal(t, "vanilla", build.Env["FLAVOR"])
	assert.Len(t, build.Cmds, 1)

	require.Contains(t, options, "flavor")
	assert.Equal(t, "vanilla", options["flavor"].Default())
	assert.Equal(t, "build flavor", options["flavor"].Help)
}

func TestParseOptionOverride(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
flavor = option("flavor", "vanilla")

def configure():
    task("build", env={"FLAVOR": flavor}, cmds=[])
`)

	tasks, _, err := Parse(testContext(), taskPath, dir, map[string]string{"flavor": "chocolate"})
	require.NoError(t, err)
	assert.Equal(t, "chocolate", tasks["build"].Env["FLAVOR"])
}

func TestParseAnonymousTasksAreHidden(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
def configure():
    helper = task(cmds=["echo helper"])
    task("main", cmds=[helper])
`)

	tasks, _, err := Parse(testContext(), taskPath, dir, nil)
	require.NoError(t, err)

	require.Len(t, tasks, 1)
	require.Contains(t, tasks, "main")

	ref := tasks["main"].Cmds[0].TaskRef()
	require.NotNil(t, ref)
	assert.True(t, ref.Hidden)
	assert.NotEmpty(t, ref.Name)
}

func TestParseRejectsReservedTaskName(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
def configure():
    task("configure", cmds=[])
`)

	_, _, err := Parse(testContext(), taskPath, dir, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestParseRejectsTaskInGlobalScope(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
task("early", cmds=[])

def configure():
    pass
`)

	_, _, err := Parse(testContext(), taskPath, dir, nil)
	require.Error(t, err)
}

func TestParseRejectsOptionInConfigure(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
def configure():
    option("late", "x")
`)

	_, _, err := Parse(testContext(), taskPath, dir, nil)
	require.Error(t, err)
}

func TestParseRequiresConfigure(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `x = 1`)

	_, _, err := Parse(testContext(), taskPath, dir, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configure")
}

func TestParseTupleCommands(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
def configure():
    task(
        "build",
        cmds=[
            ("docker", "build", "-t", "app:latest", "build/docker"),
            ("CGO_ENABLED=0", "go", "build"),
        ],
    )
`)

	tasks, _, err := Parse(testContext(), taskPath, dir, nil)
	require.NoError(t, err)

	cmds := tasks["build"].Cmds
	require.Len(t, cmds, 2)

	first, ok := cmds[0].(ShellCmd)
	require.True(t, ok)
	assert.Equal(t, "docker build -t app:latest build/docker", first.Source)

	second, ok := cmds[1].(ShellCmd)
	require.True(t, ok)
	assert.Equal(t, "CGO_ENABLED=0 go build", second.Source)
}

func TestParseReadYaml(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta.yml"), []byte("app:\n  version: 1.2.3\n"), 0600))

	taskPath := filepath.Join(dir, "tasks.star")
	require.NoError(t, os.WriteFile(taskPath, []byte(`
version = read_yaml("meta.yml", "app.version", "0.0.0")
missing = read_yaml("meta.yml", "app.nope", "fallback")

def configure():
    task("build", env={"VERSION": version, "MISSING": missing}, cmds=[])
`), 0600))

	tasks, _, err := Parse(testContext(), taskPath, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", tasks["build"].Env["VERSION"])
	assert.Equal(t, "fallback", tasks["build"].Env["MISSING"])
}

func TestParseSetenvAppliesToTasks(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
setenv("BUILD_MODE", "release")

def configure():
    task("a", cmds=[])
    task("b", env={"BUILD_MODE": "debug"}, cmds=[])
`)

	tasks, _, err := Parse(testContext(), taskPath, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "release", tasks["a"].Env["BUILD_MODE"])
	assert.Equal(t, "debug", tasks["b"].Env["BUILD_MODE"])
}

func TestDeclaredOptionsSkipsConfigure(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
flavor = option("flavor", "vanilla")

def configure():
    fail("configure must not run")
`)

	options, err := DeclaredOptions(testContext(), taskPath, dir)
	require.NoError(t, err)
	require.Contains(t, options, "flavor")
}
