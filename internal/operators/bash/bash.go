package bashoperator

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/execstream"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/taskcontext"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

// ClassName is the allow-listed name of the operator.
const ClassName = "BashOperator"

const defaultSkipExitCode = 99

// Params are the BashOperator keyword arguments.
type Params struct {
	BashCommand    string            `yaml:"bash_command" validate:"required"`
	Env            map[string]string `yaml:"env"`
	AppendEnv      bool              `yaml:"append_env"`
	OutputEncoding string            `yaml:"output_encoding"`
	SkipExitCode   *int              `yaml:"skip_exit_code"`
	Cwd            string            `yaml:"cwd"`
}

// Operator runs a bash command and returns the last line it printed.
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
	return &Operator{BaseOperator: base, Params: params}, nil
}

// Register adds the operator to reg.
func Register(reg *operator.Registry) error {
	return reg.Register(operator.Registration{
		ClassName: ClassName,
		Aliases: []string{
			"airflow.operators.bash:BashOperator",
			"airflow.operators.bash_operator:BashOperator",
		},
		Description: "Execute a Bash script, command or set of commands.",
		New:         New,
	})
}

func init() {
	if err := Register(operator.DefaultRegistry()); err != nil {
		panic(err)
	}
}

// RenderTemplates renders bash_command and env values.
func (o *Operator) RenderTemplates(render func(string) (string, error)) error {
	if err := operator.RenderAll(render, &o.Params.BashCommand); err != nil {
		return err
	}
	for key, value := range o.Params.Env {
		out, err := render(value)
		if err != nil {
			return err
		}
		o.Params.Env[key] = out
	}
	return nil
}

func (o *Operator) skipExitCode() int {
	if o.Params.SkipExitCode == nil {
		return defaultSkipExitCode
	}
	return *o.Params.SkipExitCode
}

// Execute runs the command. Exiting with skip_exit_code yields
// operator.ErrTaskSkipped; any other non-zero status is an execution error.
func (o *Operator) Execute(ctx context.Context, tctx taskcontext.Context) (any, error) {
	shell, shellArgs, err := execstream.Shell("")
	if err != nil {
		return nil, execerrors.NewExecutionError(o.ID, err)
	}

	cwd := o.Params.Cwd
	if cwd == "" {
		tmp, err := os.MkdirTemp("", "airflowtmp")
		if err != nil {
			return nil, execerrors.NewExecutionError(o.ID, err)
		}
		defer os.RemoveAll(tmp)
		cwd = tmp
	} else {
		info, err := os.Stat(cwd)
		if err != nil {
			return nil, execerrors.NewExecutionError(o.ID, fmt.Errorf("can not find the cwd: %s", cwd))
		}
		if !info.IsDir() {
			return nil, execerrors.NewExecutionError(o.ID, fmt.Errorf("the cwd %s must be a directory", cwd))
		}
	}

	env := tctx.EnvVars(o.Owner)
	for k, v := range o.Params.Env {
		env[k] = v
	}
	replace := o.Params.Env != nil && !o.Params.AppendEnv

	o.Log.WithFields(map[string]any{"cwd": cwd}).Infof("running command: %s", o.Params.BashCommand)

	cmd := exec.CommandContext(ctx, shell, append(shellArgs, o.Params.BashCommand)...)
	cmd.Dir = cwd
	cmd.Env = execstream.Env(env, replace)

	res, err := execstream.Run(cmd)
	if err != nil {
		if code := o.skipExitCode(); execstream.IsExitCode(err, code) {
			return nil, fmt.Errorf("%w: bash command returned exit code %d", operator.ErrTaskSkipped, code)
		}
		failure := fmt.Errorf("bash command failed, the command returned a non-zero exit code %d: %w", res.ExitCode, err)
		return nil, execerrors.NewExecutionError(o.ID, execstream.Failure(failure, res))
	}
	o.Log.Infof("command exited with return code %d", res.ExitCode)

	return execstream.Decode(execstream.LastLine(res.Stdout), o.Params.OutputEncoding)
}
