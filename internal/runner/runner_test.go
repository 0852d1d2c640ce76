package runner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/secrets"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/taskcontext"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/xcom"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

var errBoom = errors.New("boom")

type echoParams struct {
	Message string `yaml:"message"`
	Fail    bool   `yaml:"fail"`
	Timeout bool   `yaml:"timeout"`
	Result  any    `yaml:"result"`
}

type echoOperator struct {
	operator.BaseOperator
	Params echoParams

	preCalls  int
	seenTask  taskcontext.Task
	seenStart time.Time
}

func newEcho(args operator.Args, deps operator.Deps) (operator.Operator, error) {
	base, err := operator.NewBase(args, deps, true)
	if err != nil {
		return nil, err
	}
	params := echoParams{}
	if err := args.Decode(&params); err != nil {
		return nil, err
	}
	return &echoOperator{BaseOperator: base, Params: params}, nil
}

func (e *echoOperator) RenderTemplates(render func(string) (string, error)) error {
	return operator.RenderAll(render, &e.Params.Message)
}

func (e *echoOperator) PreExecute(context.Context, taskcontext.Context) error {
	e.preCalls++
	return nil
}

func (e *echoOperator) Execute(_ context.Context, tctx taskcontext.Context) (any, error) {
	e.seenTask = tctx.Task()
	e.seenStart = tctx["data_interval_start"].(time.Time)
	switch {
	case e.Params.Fail:
		return nil, errBoom
	case e.Params.Timeout:
		return nil, fmt.Errorf("%w: task %s", operator.ErrSensorTimeout, e.ID)
	case e.Params.Result != nil:
		return e.Params.Result, nil
	case e.Params.Message != "":
		return e.Params.Message, nil
	}
	return nil, nil
}

func testRegistry(t *testing.T) *operator.Registry {
	t.Helper()
	reg := operator.NewRegistry()
	require.NoError(t, reg.Register(operator.Registration{
		ClassName: "EchoOperator",
		Aliases:   []string{"tests.echo:EchoOperator"},
		New:       newEcho,
	}))
	return reg
}

var fixedNow = time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)

func newRunner(t *testing.T, ref string, args operator.Args, opts ...Option) (*Runner, error) {
	t.Helper()
	opts = append([]Option{
		WithRegistry(testRegistry(t)),
		WithStore(xcom.NewStore()),
		WithClock(func() time.Time { return fixedNow }),
		WithSecrets(secrets.NewChain(nil, &secrets.EnvironmentBackend{Environ: func() []string { return nil }})),
	}, opts...)
	return New(ref, args, opts...)
}

func TestNewDefaultsTaskIDAndStartDate(t *testing.T) {
	t.Parallel()

	r, err := newRunner(t, "tests.echo:EchoOperator", nil)
	require.NoError(t, err)
	require.Equal(t, "execute_EchoOperator", r.Operator().TaskID())
	require.Equal(t, fixedNow, r.Operator().Base().StartDate)

	tctx := r.Context()
	require.Equal(t, "2024-03-05", tctx["ds"])
	require.Same(t, r.Operator(), tctx.Task())
	require.Same(t, tctx["ti"], tctx["task_instance"])
	require.Equal(t, taskcontext.DummyDagID, tctx.DAG().DagID)
	require.Nil(t, tctx["params"])
}

func TestNewStartDateForms(t *testing.T) {
	t.Parallel()

	r, err := newRunner(t, "EchoOperator", operator.Args{"start_date": "2023-01-02T03:04:05Z"})
	require.NoError(t, err)
	require.Equal(t, "2023-01-02", r.Context()["ds"])

	r, err = newRunner(t, "EchoOperator", operator.Args{"start_date": "2023-06-30"})
	require.NoError(t, err)
	require.Equal(t, "2023-06-30", r.Context()["ds"])

	_, err = newRunner(t, "EchoOperator", operator.Args{"start_date": "yesterday"})
	var verr *execerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "start_date", verr.Field)
}

func TestNewFailsFast(t *testing.T) {
	t.Parallel()

	var cfgErr *execerrors.ConfigError
	_, err := newRunner(t, "NotAnOperator", nil)
	require.ErrorAs(t, err, &cfgErr)
	require.Contains(t, err.Error(), "improperly formatted")

	_, err = newRunner(t, "some.module:Unknown", nil)
	require.ErrorAs(t, err, &cfgErr)
	require.Contains(t, err.Error(), "unsupported operator")
}

func TestNewDoesNotMutateArgs(t *testing.T) {
	t.Parallel()

	args := operator.Args{"message": "hi"}
	_, err := newRunner(t, "EchoOperator", args)
	require.NoError(t, err)
	require.Equal(t, operator.Args{"message": "hi"}, args)
}

func TestRunnersAreIndependent(t *testing.T) {
	t.Parallel()

	args := operator.Args{"task_id": "same", "message": "hi"}
	a, err := newRunner(t, "EchoOperator", args)
	require.NoError(t, err)
	b, err := newRunner(t, "EchoOperator", args)
	require.NoError(t, err)

	require.NotSame(t, a.Operator(), b.Operator())
	require.Same(t, a.Operator(), a.Context().Task())
	require.Same(t, b.Operator(), b.Context().Task())
	require.NotSame(t, a.Context().TaskInstance(), b.Context().TaskInstance())
	require.NotSame(t, a.Context().DAG(), b.Context().DAG())

	a.Context()["conf"] = "changed"
	require.Nil(t, b.Context()["conf"])
}

func TestExecuteRendersAndPushes(t *testing.T) {
	t.Parallel()

	store := xcom.NewStore()
	r, err := newRunner(t, "EchoOperator", operator.Args{"task_id": "echo", "message": "run {{ ds_nodash }}"}, WithStore(store))
	require.NoError(t, err)

	result, err := r.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run 20240305", result)

	stored, ok := store.GetOne(xcom.ReturnValueKey, "echo", taskcontext.DummyDagID)
	require.True(t, ok)
	require.Equal(t, "run 20240305", stored)
	require.Same(t, r.Store(), store)
}

func TestExecuteSkipsPushWhenDisabledOrNil(t *testing.T) {
	t.Parallel()

	store := xcom.NewStore()
	r, err := newRunner(t, "EchoOperator", operator.Args{"task_id": "quiet", "message": "x", "do_xcom_push": false}, WithStore(store))
	require.NoError(t, err)
	_, err = r.Execute(context.Background())
	require.NoError(t, err)
	_, ok := store.GetOne(xcom.ReturnValueKey, "quiet", taskcontext.DummyDagID)
	require.False(t, ok)

	r, err = newRunner(t, "EchoOperator", operator.Args{"task_id": "empty"}, WithStore(store))
	require.NoError(t, err)
	result, err := r.Execute(context.Background())
	require.NoError(t, err)
	require.Nil(t, result)
	_, ok = store.GetOne(xcom.ReturnValueKey, "empty", taskcontext.DummyDagID)
	require.False(t, ok)
}

func TestExecuteReturnsOperatorErrorsVerbatim(t *testing.T) {
	t.Parallel()

	r, err := newRunner(t, "EchoOperator", operator.Args{"fail": true})
	require.NoError(t, err)
	_, err = r.Execute(context.Background())
	require.Same(t, errBoom, err)

	r, err = newRunner(t, "EchoOperator", operator.Args{"timeout": true})
	require.NoError(t, err)
	_, err = r.Execute(context.Background())
	require.ErrorIs(t, err, operator.ErrSensorTimeout)
}

func TestExecuteTemplateError(t *testing.T) {
	t.Parallel()

	r, err := newRunner(t, "EchoOperator", operator.Args{"message": "{{ nope }}"})
	require.NoError(t, err)
	_, err = r.Execute(context.Background())
	var execErr *execerrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
}

func TestPreAndPostExecute(t *testing.T) {
	t.Parallel()

	r, err := newRunner(t, "EchoOperator", operator.Args{"params": map[string]any{"region": "eu"}})
	require.NoError(t, err)
	require.NoError(t, r.PreExecute(context.Background()))
	require.Equal(t, 1, r.Operator().(*echoOperator).preCalls)
	require.NoError(t, r.PostExecute(context.Background(), nil))
	require.Equal(t, map[string]any{"region": "eu"}, r.Context()["params"])
}

func TestDefaultRegistryRejectsUnknown(t *testing.T) {
	t.Parallel()

	_, err := New("airflow.operators.email:EmailOperator", nil, WithStore(xcom.NewStore()))
	var cfgErr *execerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
