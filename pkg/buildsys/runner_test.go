package buildsys

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readOrder(t *testing.T, dir string) string {
	t.Helper()

	content, err := os.ReadFile(filepath.Join(dir, "order.txt"))
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(t, err)

	return string(content)
}

func TestRunTaskRunsDependenciesFirst(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
def configure():
    task("wheel", cmds=["echo wheel >> order.txt"])
    task("docker", deps=["wheel"], cmds=["echo docker >> order.txt"])
`)

	ctx := testContext()
	tasks, _, err := Parse(ctx, taskPath, dir, nil)
	require.NoError(t, err)

	require.NoError(t, RunTask(ctx, dir, "docker", tasks, RunOptions{}))
	assert.Equal(t, "wheel\ndocker\n", readOrder(t, dir))
}

func TestRunTaskRunsSharedDependencyOnce(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
def configure():
    task("wheel", cmds=["echo wheel >> order.txt"])
    task("stage", deps=["wheel"], cmds=["echo stage >> order.txt"])
    task("docker", deps=["wheel", "stage"], cmds=["echo docker >> order.txt"])
`)

	ctx := testContext()
	tasks, _, err := Parse(ctx, taskPath, dir, nil)
	require.NoError(t, err)

	require.NoError(t, RunTask(ctx, dir, "docker", tasks, RunOptions{}))
	assert.Equal(t, "wheel\nstage\ndocker\n", readOrder(t, dir))
}

func TestRunTaskDetectsDependencyCycle(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
def configure():
    task("a", deps=["b"], cmds=["echo a >> order.txt"])
    task("b", deps=["a"], cmds=["echo b >> order.txt"])
`)

	ctx := testContext()
	tasks, _, err := Parse(ctx, taskPath, dir, nil)
	require.NoError(t, err)

	err = RunTask(ctx, dir, "a", tasks, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depends on itself")
	assert.Equal(t, "", readOrder(t, dir))
}

func TestRunTaskFailingDependencyAbortsTask(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
def configure():
    task("wheel", cmds=["false"])
    task("docker", deps=["wheel"], cmds=["echo docker >> order.txt"])
`)

	ctx := testContext()
	tasks, _, err := Parse(ctx, taskPath, dir, nil)
	require.NoError(t, err)

	err = RunTask(ctx, dir, "docker", tasks, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wheel")
	assert.Equal(t, "", readOrder(t, dir))
}

func TestRunTaskUnknownDependency(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
def configure():
    task("docker", deps=["wheel"], cmds=["echo docker >> order.txt"])
`)

	ctx := testContext()
	tasks, _, err := Parse(ctx, taskPath, dir, nil)
	require.NoError(t, err)

	err = RunTask(ctx, dir, "docker", tasks, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wheel")
}

func TestRunTaskDryRunExecutesNothing(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
def configure():
    task("wheel", cmds=["echo wheel >> order.txt"])
`)

	ctx := testContext()
	tasks, _, err := Parse(ctx, taskPath, dir, nil)
	require.NoError(t, err)

	require.NoError(t, RunTask(ctx, dir, "wheel", tasks, RunOptions{DryRun: true}))
	assert.Equal(t, "", readOrder(t, dir))
}

func TestRunTaskSkipIfExists(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
def configure():
    task("wheel", skip_if_exists=["marker.txt"], cmds=["echo wheel >> order.txt"])
`)

	ctx := testContext()
	tasks, _, err := Parse(ctx, taskPath, dir, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0600))

	require.NoError(t, RunTask(ctx, dir, "wheel", tasks, RunOptions{}))
	assert.Equal(t, "", readOrder(t, dir))

	require.NoError(t, RunTask(ctx, dir, "wheel", tasks, RunOptions{Force: true}))
	assert.Equal(t, "wheel\n", readOrder(t, dir))
}

func TestRunTaskSkipsWhenOutputsAreNewer(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
def configure():
    task(
        "wheel",
        inputs=["input.txt"],
        outputs=["out.txt"],
        cmds=["echo wheel >> order.txt", "echo done > out.txt"],
    )
`)

	ctx := testContext()
	tasks, _, err := Parse(ctx, taskPath, dir, nil)
	require.NoError(t, err)

	input := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0600))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(input, past, past))

	require.NoError(t, RunTask(ctx, dir, "wheel", tasks, RunOptions{}))
	assert.Equal(t, "wheel\n", readOrder(t, dir))

	// the output is newer than the input now, a second run is a no-op
	require.NoError(t, RunTask(ctx, dir, "wheel", tasks, RunOptions{}))
	assert.Equal(t, "wheel\n", readOrder(t, dir))

	require.NoError(t, RunTask(ctx, dir, "wheel", tasks, RunOptions{Force: true}))
	assert.Equal(t, "wheel\nwheel\n", readOrder(t, dir))
}

func TestRunTaskHiddenTaskReference(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
def configure():
    helper = task(cmds=["echo helper >> order.txt"])
    task("main", cmds=[helper, "echo main >> order.txt"])
`)

	ctx := testContext()
	tasks, _, err := Parse(ctx, taskPath, dir, nil)
	require.NoError(t, err)

	require.NoError(t, RunTask(ctx, dir, "main", tasks, RunOptions{}))
	assert.Equal(t, "helper\nmain\n", readOrder(t, dir))
}

func TestRunTaskEnvReachesCommands(t *testing.T) {
	taskPath, dir := writeTaskFile(t, `
def configure():
    task("wheel", env={"GREETING": "hello"}, cmds=["echo $GREETING >> order.txt"])
`)

	ctx := testContext()
	tasks, _, err := Parse(ctx, taskPath, dir, nil)
	require.NoError(t, err)

	require.NoError(t, RunTask(ctx, dir, "wheel", tasks, RunOptions{}))
	assert.Equal(t, "hello\n", readOrder(t, dir))
}

func TestRunTaskUnknownTask(t *testing.T) {
	ctx := testContext()
	err := RunTask(ctx, t.TempDir(), "nope", TaskList{}, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}
