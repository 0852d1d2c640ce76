package main

import (
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/runner"
)

type rootFlags struct {
	envVars    []string
	verbose    bool
	logFormat  string
	noProgress bool
}

// newRootCmd builds the command tree. Extra runner options are applied to
// every operator run, after the ones derived from the environment.
func newRootCmd(extra ...runner.Option) *cobra.Command {
	flags := &rootFlags{}
	a := &app{extra: extra}

	cmd := &cobra.Command{
		Use:           "execute-any-operator",
		Short:         "Executes Airflow operator classes as plain objects without running Airflow",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd, flags)
		},
	}

	cmd.PersistentFlags().StringArrayVar(&flags.envVars, "env-var", nil, "Export a variable as one KEY=VALUE argument (not KEY VALUE) before the operator runs; also readable as a Variable (repeatable)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log output format: console or json")
	cmd.PersistentFlags().BoolVar(&flags.noProgress, "no-progress", false, "Disable the sensor progress spinner")

	cmd.AddCommand(newBashCmd(a))
	cmd.AddCommand(newPythonCmd(a))
	cmd.AddCommand(newKubernetesPodCmd(a))
	cmd.AddCommand(newS3KeySensorCmd(a))
	cmd.AddCommand(newHdfsSensorCmd(a))
	cmd.AddCommand(newHiveCmd(a))
	cmd.AddCommand(newRemoteBashCmd(a))
	cmd.AddCommand(newSimpleHTTPCmd(a))
	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
