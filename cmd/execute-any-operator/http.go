package main

import (
	"github.com/spf13/cobra"

	httpoperator "github.com/alexisbeaulieu97/execute-any-operator/internal/operators/http"
)

func newSimpleHTTPCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simple-http-operator",
		Short: "Calls an endpoint on an HTTP system and prints the XCom data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newArgSet(cmd)
			s.task()
			s.str("endpoint", "endpoint")
			s.str("method", "method")
			s.typedAssignments("data", "data")
			s.str("body", "data")
			s.assignments("headers", "headers")
			s.str("response-check", "response_check")
			s.str("response-filter", "response_filter")
			s.value("extra-options", "extra_options")
			s.str("http-conn-id", "http_conn_id")
			s.boolean("log-response", "log_response")
			opArgs, err := s.result()
			if err != nil {
				return err
			}
			return a.execute(cmd, invocation{ref: httpoperator.ClassName, args: opArgs, dumpXCom: true})
		},
	}

	addTaskFlags(cmd)
	flags := cmd.Flags()
	flags.String("endpoint", "", "The relative part of the full url")
	flags.String("method", "POST", "The HTTP method to use")
	flags.StringArray("data", nil, "KEY=VALUE sent as the form body, or as query parameters for GET (repeatable)")
	flags.String("body", "", "Raw request body, instead of --data")
	flags.StringArray("headers", nil, "KEY=VALUE HTTP header (repeatable)")
	flags.String("response-check", "", "Regular expression the response body must match")
	flags.String("response-filter", "", "Dot path selecting the returned value from a JSON response")
	flags.String("extra-options", "", "Extra options such as {timeout: 30, check_response: false}")
	flags.String("http-conn-id", "http_default", "The HTTP connection to run the operator against")
	flags.Bool("log-response", false, "Log the response body")
	cmd.MarkFlagsMutuallyExclusive("data", "body")

	return cmd
}
