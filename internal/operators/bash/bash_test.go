package bashoperator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/taskcontext"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/xcom"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

func newOperator(t *testing.T, args operator.Args) (*Operator, taskcontext.Context) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}
	if _, ok := args["task_id"]; !ok {
		args["task_id"] = "execute_BashOperator"
	}
	op, err := New(args, operator.Deps{})
	require.NoError(t, err)

	start := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)
	tctx := taskcontext.Build(taskcontext.BuildInput{
		DAG:   taskcontext.NewDummyDAG(start),
		Task:  op,
		Start: start,
		Store: xcom.NewStore(),
	})
	return op.(*Operator), tctx
}

func TestExecuteReturnsLastLine(t *testing.T) {
	t.Parallel()

	op, tctx := newOperator(t, operator.Args{"bash_command": "echo 'Hello'; echo 'World'"})
	result, err := op.Execute(context.Background(), tctx)
	require.NoError(t, err)
	require.Equal(t, "World", result)
}

func TestExecuteFailsOnNonZeroExit(t *testing.T) {
	t.Parallel()

	op, tctx := newOperator(t, operator.Args{"bash_command": "echo boom >&2; exit 2"})
	_, err := op.Execute(context.Background(), tctx)

	var execErr *execerrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Contains(t, err.Error(), "exit code 2")
	require.Contains(t, err.Error(), "boom")
}

func TestExecuteSkipExitCode(t *testing.T) {
	t.Parallel()

	op, tctx := newOperator(t, operator.Args{"bash_command": "exit 99"})
	_, err := op.Execute(context.Background(), tctx)
	require.ErrorIs(t, err, operator.ErrTaskSkipped)

	op, tctx = newOperator(t, operator.Args{"bash_command": "exit 42", "skip_exit_code": 42})
	_, err = op.Execute(context.Background(), tctx)
	require.ErrorIs(t, err, operator.ErrTaskSkipped)
}

func TestExecuteEnvReplacesEnvironment(t *testing.T) {
	t.Setenv("BASH_OPERATOR_INHERITED", "leaked")

	op, tctx := newOperator(t, operator.Args{
		"bash_command": `echo "${GREETING}-${BASH_OPERATOR_INHERITED:-none}-${AIRFLOW_CTX_TASK_ID}"`,
		"env":          map[string]any{"GREETING": "hi"},
	})
	result, err := op.Execute(context.Background(), tctx)
	require.NoError(t, err)
	require.Equal(t, "hi-none-execute_BashOperator", result)
}

func TestExecuteAppendEnvKeepsEnvironment(t *testing.T) {
	t.Setenv("BASH_OPERATOR_INHERITED", "kept")

	op, tctx := newOperator(t, operator.Args{
		"bash_command": `echo "${GREETING}-${BASH_OPERATOR_INHERITED}"`,
		"env":          map[string]any{"GREETING": "hi"},
		"append_env":   true,
	})
	result, err := op.Execute(context.Background(), tctx)
	require.NoError(t, err)
	require.Equal(t, "hi-kept", result)
}

func TestExecuteWorkingDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0o600))

	op, tctx := newOperator(t, operator.Args{"bash_command": "ls", "cwd": dir})
	result, err := op.Execute(context.Background(), tctx)
	require.NoError(t, err)
	require.Equal(t, "marker.txt", result)

	op, tctx = newOperator(t, operator.Args{"bash_command": "ls", "cwd": filepath.Join(dir, "missing")})
	_, err = op.Execute(context.Background(), tctx)
	require.ErrorContains(t, err, "can not find the cwd")

	op, tctx = newOperator(t, operator.Args{"bash_command": "ls", "cwd": filepath.Join(dir, "marker.txt")})
	_, err = op.Execute(context.Background(), tctx)
	require.ErrorContains(t, err, "must be a directory")
}

func TestRenderTemplates(t *testing.T) {
	t.Parallel()

	op, tctx := newOperator(t, operator.Args{
		"bash_command": "echo {{ ds }}",
		"env":          map[string]any{"STAMP": "{{ ts_nodash }}"},
	})
	require.NoError(t, op.RenderTemplates(tctx.Renderer()))
	require.Equal(t, "echo 2024-03-05", op.Params.BashCommand)
	require.Equal(t, "20240305T070809", op.Params.Env["STAMP"])
}

func TestNewRequiresCommand(t *testing.T) {
	t.Parallel()

	_, err := New(operator.Args{"task_id": "t"}, operator.Deps{})
	var verr *execerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "bash_command", verr.Field)
}

func TestRegistered(t *testing.T) {
	t.Parallel()

	for _, ref := range []string{ClassName, "airflow.operators.bash:BashOperator", "airflow.operators.bash_operator:BashOperator"} {
		reg, err := operator.DefaultRegistry().Resolve(ref)
		require.NoError(t, err)
		require.Equal(t, ClassName, reg.ClassName)
	}
}
