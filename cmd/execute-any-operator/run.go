package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/config"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/taskfile"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

type runOptions struct {
	operator   string
	args       []string
	file       string
	taskID     string
	preExecute bool
	xcom       bool
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run any supported operator from flags or a task file",
		Example: `  execute-any-operator run --operator airflow.operators.bash:BashOperator --arg bash_command='echo {{ ds }}'
  execute-any-operator run --file task.hcl --arg poke_interval=5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := opts.invocation()
			if err != nil {
				return err
			}
			return a.execute(cmd, inv)
		},
	}

	cmd.Flags().StringVarP(&opts.operator, "operator", "O", "", "Operator reference, module:Class or a short name (overrides the task file)")
	cmd.Flags().StringArrayVarP(&opts.args, "arg", "a", nil, "KEY=VALUE operator argument, values read as YAML scalars or flow collections (repeatable)")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "YAML or HCL task file")
	cmd.Flags().StringVar(&opts.taskID, "task-id", "", "Task id (default execute_<Operator>)")
	cmd.Flags().BoolVar(&opts.preExecute, "pre-execute", false, "Run the operator's pre-execute hook first")
	cmd.Flags().BoolVar(&opts.xcom, "xcom", false, "Print the XCom data after execution")

	return cmd
}

// invocation merges the task file, if any, with the flags. Flags win.
func (o *runOptions) invocation() (invocation, error) {
	inv := invocation{
		ref:        o.operator,
		args:       operator.Args{},
		preExecute: o.preExecute,
		dumpXCom:   o.xcom,
	}

	if o.file != "" {
		def, err := taskfile.Load(o.file)
		if err != nil {
			return invocation{}, err
		}
		if strings.TrimSpace(inv.ref) == "" {
			inv.ref = def.Operator
		}
		inv.args = def.Arguments()
		inv.preExecute = inv.preExecute || def.PreExecute
	}

	if strings.TrimSpace(inv.ref) == "" {
		return invocation{}, execerrors.NewValidationError("operator", "--operator or --file is required", nil)
	}

	pairs, err := config.ParseAssignments(o.args)
	if err != nil {
		return invocation{}, execerrors.NewValidationError("arg", err.Error(), err)
	}
	for key, value := range pairs {
		inv.args[key] = operator.ParseValue(value)
	}
	if o.taskID != "" {
		inv.args["task_id"] = o.taskID
	}
	return inv, nil
}
