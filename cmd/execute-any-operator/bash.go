package main

import (
	"github.com/spf13/cobra"

	bashoperator "github.com/alexisbeaulieu97/execute-any-operator/internal/operators/bash"
	pythonoperator "github.com/alexisbeaulieu97/execute-any-operator/internal/operators/python"
)

func newBashCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bash-operator BASH_COMMAND",
		Short: "Execute a Bash script, command or set of commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newArgSet(cmd)
			s.set("bash_command", args[0])
			s.task()
			s.assignments("env", "env")
			s.boolean("append-env", "append_env")
			s.str("output-encoding", "output_encoding")
			s.str("working-directory", "cwd")
			s.integer("skip-exit-code", "skip_exit_code")
			opArgs, err := s.result()
			if err != nil {
				return err
			}
			return a.execute(cmd, invocation{ref: bashoperator.ClassName, args: opArgs})
		},
	}

	addTaskFlags(cmd)
	cmd.Flags().StringArrayP("env", "e", nil, "KEY=VALUE environment for the command; replaces the inherited environment (repeatable)")
	cmd.Flags().Bool("append-env", false, "Add --env on top of the inherited environment instead of replacing it")
	cmd.Flags().StringP("output-encoding", "o", "utf-8", "Output encoding of the command")
	cmd.Flags().StringP("working-directory", "w", "", "Working directory (default a temporary directory)")
	cmd.Flags().Int("skip-exit-code", 99, "Exit code that marks the task skipped")

	return cmd
}

func newPythonCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "python-operator PYTHON_CALLABLE",
		Short: "Executes a Python callable given as module:function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newArgSet(cmd)
			s.set("python_callable", args[0])
			s.task()
			s.values("arguments", "op_args")
			s.typedAssignments("keyword-arguments", "op_kwargs")
			s.str("python", "python")
			s.boolean("show-return-value-in-logs", "show_return_value_in_logs")
			opArgs, err := s.result()
			if err != nil {
				return err
			}
			return a.execute(cmd, invocation{ref: pythonoperator.ClassName, args: opArgs})
		},
	}

	addTaskFlags(cmd)
	cmd.Flags().StringArrayP("arguments", "a", nil, "Positional argument passed to the callable (repeatable)")
	cmd.Flags().StringArrayP("keyword-arguments", "k", nil, "KEY=VALUE keyword argument passed to the callable (repeatable)")
	cmd.Flags().String("python", "python3", "Python interpreter")
	cmd.Flags().Bool("show-return-value-in-logs", true, "Log the callable's return value")

	return cmd
}
