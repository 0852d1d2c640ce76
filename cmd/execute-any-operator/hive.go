package main

import (
	"github.com/spf13/cobra"

	hiveoperator "github.com/alexisbeaulieu97/execute-any-operator/internal/operators/hive"
)

func newHiveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hive-operator HQL",
		Short: "Executes hql code in a specific Hive database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newArgSet(cmd)
			s.set("hql", args[0])
			s.task()
			s.str("hive-cli-conn-id", "hive_cli_conn_id")
			s.str("schema", "schema")
			s.assignments("hiveconf", "hiveconfs")
			s.boolean("hiveconf-jinja-translate", "hiveconf_jinja_translate")
			s.str("mapred-queue", "mapred_queue")
			s.str("mapred-queue-priority", "mapred_queue_priority")
			s.str("mapred-job-name", "mapred_job_name")
			s.boolean("run-as-owner", "run_as_owner")
			s.str("beeline-path", "beeline_path")
			s.str("hive-path", "hive_path")
			opArgs, err := s.result()
			if err != nil {
				return err
			}
			return a.execute(cmd, invocation{ref: hiveoperator.ClassName, args: opArgs})
		},
	}

	addTaskFlags(cmd)
	flags := cmd.Flags()
	flags.String("hive-cli-conn-id", "hive_cli_default", "Connection id of the Hive connection")
	flags.String("schema", "default", "Hive database to run against")
	flags.StringArray("hiveconf", nil, "KEY=VALUE passed as --hiveconf (repeatable)")
	flags.Bool("hiveconf-jinja-translate", false, "Translate ${var} references into templates")
	flags.String("mapred-queue", "", "Queue the job is submitted to")
	flags.String("mapred-queue-priority", "", "VERY_HIGH, HIGH, NORMAL, LOW or VERY_LOW")
	flags.String("mapred-job-name", "", "Name of the MapReduce job")
	flags.Bool("run-as-owner", false, "Run the query as the task owner through a proxy user")
	flags.String("beeline-path", "beeline", "beeline binary")
	flags.String("hive-path", "hive", "hive binary")

	return cmd
}
