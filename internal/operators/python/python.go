package pythonoperator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/execstream"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/taskcontext"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

// ClassName is the allow-listed name of the operator.
const ClassName = "PythonOperator"

const defaultInterpreter = "python3"

// bootstrap imports the callable named on stdin, calls it and writes the
// JSON-encoded return value to the path in argv[1]. Context values are only
// passed to callables that accept **kwargs.
const bootstrap = `import importlib, inspect, json, os, sys
payload = json.load(sys.stdin)
sys.path.insert(0, os.getcwd())
mod_name, _, func_name = payload["callable"].partition(":")
func = getattr(importlib.import_module(mod_name), func_name)
args = payload.get("args") or []
kwargs = dict(payload.get("kwargs") or {})
try:
    if any(p.kind == p.VAR_KEYWORD for p in inspect.signature(func).parameters.values()):
        for key, value in (payload.get("context") or {}).items():
            kwargs.setdefault(key, value)
except (TypeError, ValueError):
    pass
result = func(*args, **kwargs)
with open(sys.argv[1], "w") as fh:
    json.dump(result, fh, default=str)
`

// Params are the PythonOperator keyword arguments.
type Params struct {
	PythonCallable        string         `yaml:"python_callable" validate:"required"`
	OpArgs                []any          `yaml:"op_args"`
	OpKwargs              map[string]any `yaml:"op_kwargs"`
	Python                string         `yaml:"python"`
	ShowReturnValueInLogs *bool          `yaml:"show_return_value_in_logs"`
}

// Operator calls a Python function in a child interpreter.
type Operator struct {
	operator.BaseOperator
	Params Params
}

// New constructs the operator from its keyword arguments.
func New(args operator.Args, deps operator.Deps) (operator.Operator, error) {
	base, err := operator.NewBase(args, deps, true)
	if err != nil {
		return nil, err
	}
	var params Params
	if err := args.Decode(&params); err != nil {
		return nil, err
	}
	module, function, ok := strings.Cut(params.PythonCallable, ":")
	if !ok || module == "" || function == "" {
		return nil, execerrors.NewValidationError("python_callable", fmt.Sprintf("%q must be in module notation (my.module:function)", params.PythonCallable), nil)
	}
	if params.Python == "" {
		params.Python = defaultInterpreter
	}
	return &Operator{BaseOperator: base, Params: params}, nil
}

// Register adds the operator to reg.
func Register(reg *operator.Registry) error {
	return reg.Register(operator.Registration{
		ClassName: ClassName,
		Aliases: []string{
			"airflow.operators.python:PythonOperator",
			"airflow.operators.python_operator:PythonOperator",
		},
		Description: "Executes a Python callable.",
		New:         New,
	})
}

func init() {
	if err := Register(operator.DefaultRegistry()); err != nil {
		panic(err)
	}
}

// RenderTemplates renders string positional and keyword arguments.
func (o *Operator) RenderTemplates(render func(string) (string, error)) error {
	for i, arg := range o.Params.OpArgs {
		if s, ok := arg.(string); ok {
			out, err := render(s)
			if err != nil {
				return err
			}
			o.Params.OpArgs[i] = out
		}
	}
	for key, value := range o.Params.OpKwargs {
		if s, ok := value.(string); ok {
			out, err := render(s)
			if err != nil {
				return err
			}
			o.Params.OpKwargs[key] = out
		}
	}
	return nil
}

type payload struct {
	Callable string            `json:"callable"`
	Args     []any             `json:"args"`
	Kwargs   map[string]any    `json:"kwargs"`
	Context  map[string]string `json:"context"`
}

// Execute runs the callable and returns its JSON-decoded return value.
func (o *Operator) Execute(ctx context.Context, tctx taskcontext.Context) (any, error) {
	input, err := json.Marshal(payload{
		Callable: o.Params.PythonCallable,
		Args:     o.Params.OpArgs,
		Kwargs:   o.Params.OpKwargs,
		Context:  stringContext(tctx),
	})
	if err != nil {
		return nil, execerrors.NewExecutionError(o.ID, fmt.Errorf("encode callable arguments: %w", err))
	}

	dir, err := os.MkdirTemp("", "python-operator")
	if err != nil {
		return nil, execerrors.NewExecutionError(o.ID, err)
	}
	defer os.RemoveAll(dir)
	resultPath := filepath.Join(dir, "return.json")

	o.Log.Infof("calling %s", o.Params.PythonCallable)

	cmd := exec.CommandContext(ctx, o.Params.Python, "-c", bootstrap, resultPath)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = execstream.Env(tctx.EnvVars(o.Owner), false)

	res, err := execstream.Run(cmd)
	if err != nil {
		return nil, execerrors.NewExecutionError(o.ID, execstream.Failure(err, res))
	}

	raw, err := os.ReadFile(resultPath)
	if err != nil {
		return nil, execerrors.NewExecutionError(o.ID, fmt.Errorf("read return value: %w", err))
	}
	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, execerrors.NewExecutionError(o.ID, fmt.Errorf("decode return value: %w", err))
	}

	if o.Params.ShowReturnValueInLogs == nil || *o.Params.ShowReturnValueInLogs {
		o.Log.Infof("Done. Returned value was: %v", result)
	} else {
		o.Log.Info("Done. Returned value not shown")
	}
	return result, nil
}

func stringContext(tctx taskcontext.Context) map[string]string {
	out := map[string]string{}
	for key, value := range tctx {
		if s, ok := value.(string); ok {
			out[key] = s
		}
	}
	if ti := tctx.TaskInstance(); ti != nil {
		out["run_id"] = ti.RunID
	}
	return out
}
