package pythonoperator

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/taskcontext"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/xcom"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

const callables = `
def add(a, b):
    return a + b

def greet(name, **context):
    return {"greeting": "hello " + name, "ds": context["ds"]}

def nothing():
    print("side effect only")

def explode():
    raise RuntimeError("kaboom")
`

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath(defaultInterpreter); err != nil {
		t.Skip("python3 interpreter not available")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample_callables.py"), []byte(callables), 0o600))
	t.Setenv("PYTHONPATH", dir)
}

func run(t *testing.T, args operator.Args) (any, error) {
	t.Helper()
	args["task_id"] = "execute_PythonOperator"
	op, err := New(args, operator.Deps{})
	require.NoError(t, err)

	start := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)
	tctx := taskcontext.Build(taskcontext.BuildInput{
		DAG:   taskcontext.NewDummyDAG(start),
		Task:  op,
		Start: start,
		Store: xcom.NewStore(),
	})
	require.NoError(t, op.(*Operator).RenderTemplates(tctx.Renderer()))
	return op.Execute(context.Background(), tctx)
}

func TestExecutePositionalArguments(t *testing.T) {
	requirePython(t)

	result, err := run(t, operator.Args{"python_callable": "sample_callables:add", "op_args": []any{2, 3}})
	require.NoError(t, err)
	require.Equal(t, float64(5), result)
}

func TestExecuteKeywordArgumentsAndContext(t *testing.T) {
	requirePython(t)

	result, err := run(t, operator.Args{
		"python_callable": "sample_callables:greet",
		"op_kwargs":       map[string]any{"name": "{{ ds_nodash }}"},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"greeting": "hello 20240305", "ds": "2024-03-05"}, result)
}

func TestExecuteNoneResult(t *testing.T) {
	requirePython(t)

	result, err := run(t, operator.Args{"python_callable": "sample_callables:nothing"})
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestExecuteRaises(t *testing.T) {
	requirePython(t)

	_, err := run(t, operator.Args{"python_callable": "sample_callables:explode"})
	var execErr *execerrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Contains(t, err.Error(), "kaboom")
}

func TestNewRejectsMalformedCallable(t *testing.T) {
	t.Parallel()

	_, err := New(operator.Args{"task_id": "t", "python_callable": "no_colon"}, operator.Deps{})
	var verr *execerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "python_callable", verr.Field)
}

func TestNewDefaultsInterpreter(t *testing.T) {
	t.Parallel()

	op, err := New(operator.Args{"task_id": "t", "python_callable": "m:f"}, operator.Deps{})
	require.NoError(t, err)
	require.Equal(t, defaultInterpreter, op.(*Operator).Params.Python)
}
