package main

import (
	"strconv"

	"github.com/spf13/cobra"

	remotebashoperator "github.com/alexisbeaulieu97/execute-any-operator/internal/operators/remotebash"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

func newRemoteBashCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote-bash-operator COMMAND CLUSTER USER JOB_NAME MEMORY VCORES",
		Short: "Execute a Bash command on a remote cluster",
		Args:  cobra.ExactArgs(6),
		RunE: func(cmd *cobra.Command, args []string) error {
			memory, err := strconv.Atoi(args[4])
			if err != nil {
				return execerrors.NewValidationError("memory", "must be an integer number of megabytes", err)
			}
			vcores, err := strconv.Atoi(args[5])
			if err != nil {
				return execerrors.NewValidationError("vcores", "must be an integer", err)
			}

			s := newArgSet(cmd)
			s.set("command", args[0])
			s.set("cluster", args[1])
			s.set("user", args[2])
			s.set("job_name", args[3])
			s.set("memory", memory)
			s.set("vcores", vcores)
			s.task()
			s.assignments("env", "env")
			s.str("output-encoding", "output_encoding")
			s.str("working-directory", "cwd")
			s.boolean("encode", "encode")
			s.slice("extra-clusters", "extra_clusters")
			s.slice("files", "files")
			s.str("pom-xml-path", "pom_xml_path")
			s.str("log4j-path", "log4j_path")
			s.str("yarn-queue", "yarn_queue")
			s.str("yarn-tags", "yarn_tags")
			opArgs, err := s.result()
			if err != nil {
				return err
			}
			return a.execute(cmd, invocation{ref: remotebashoperator.ClassName, args: opArgs, preExecute: true})
		},
	}

	addTaskFlags(cmd)
	flags := cmd.Flags()
	flags.StringArrayP("env", "e", nil, "KEY=VALUE exported before the command runs (repeatable)")
	flags.StringP("output-encoding", "o", "utf-8", "Output encoding of the command")
	flags.StringP("working-directory", "w", "", "Remote working directory")
	flags.Bool("encode", true, "Ship the command base64 encoded")
	flags.StringSlice("extra-clusters", nil, "Additional cluster connection ids")
	flags.StringSlice("files", nil, "Files to ship with the job")
	flags.String("pom-xml-path", "", "Path to the job's pom.xml")
	flags.String("log4j-path", "", "Path to the job's log4j configuration")
	flags.String("yarn-queue", "", "YARN queue")
	flags.String("yarn-tags", "", "YARN application tags")

	return cmd
}
