package main

import (
	"github.com/spf13/cobra"

	kubernetesoperator "github.com/alexisbeaulieu97/execute-any-operator/internal/operators/kubernetes"
)

func newKubernetesPodCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kubernetes-pod-operator",
		Short: "Execute a task in a Kubernetes Pod",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newArgSet(cmd)
			s.task()
			s.str("namespace", "namespace")
			s.str("image", "image")
			s.str("name", "name")
			s.boolean("random-name-suffix", "random_name_suffix")
			s.list("commands", "cmds")
			s.list("arguments", "arguments")
			s.assignments("labels", "labels")
			s.assignments("annotations", "annotations")
			s.assignments("env-vars", "env_vars")
			s.str("image-pull-policy", "image_pull_policy")
			s.str("service-account-name", "service_account_name")
			s.str("cluster-context", "cluster_context")
			s.str("config-file", "config_file")
			s.boolean("in-cluster", "in_cluster")
			s.integer("startup-timeout-seconds", "startup_timeout_seconds")
			s.boolean("is-delete-operator-pod", "is_delete_operator_pod")
			s.boolean("get-logs", "get_logs")
			s.boolean("do-xcom-push", "do_xcom_push")
			s.str("kubectl-path", "kubectl_path")
			opArgs, err := s.result()
			if err != nil {
				return err
			}
			return a.execute(cmd, invocation{ref: kubernetesoperator.ClassName, args: opArgs})
		},
	}

	addTaskFlags(cmd)
	flags := cmd.Flags()
	flags.StringP("namespace", "n", "default", "Namespace to run the pod in")
	flags.StringP("image", "i", "", "Container image")
	flags.StringP("name", "N", "", "Pod name")
	flags.Bool("random-name-suffix", true, "Append a random suffix to the pod name")
	flags.StringArrayP("commands", "c", nil, "Container entrypoint (repeatable)")
	flags.StringArrayP("arguments", "a", nil, "Container argument (repeatable)")
	flags.StringArrayP("labels", "l", nil, "KEY=VALUE pod label (repeatable)")
	flags.StringArrayP("annotations", "A", nil, "KEY=VALUE pod annotation (repeatable)")
	flags.StringArrayP("env-vars", "E", nil, "KEY=VALUE container environment variable (repeatable)")
	flags.String("image-pull-policy", "", "Always, IfNotPresent or Never")
	flags.String("service-account-name", "", "Service account for the pod")
	flags.String("cluster-context", "", "kubeconfig context to use")
	flags.StringP("config-file", "C", "", "Path to a kubeconfig file")
	flags.Bool("in-cluster", false, "Use the in-cluster service account configuration")
	flags.Int("startup-timeout-seconds", 120, "Time to wait for the pod to start")
	flags.Bool("is-delete-operator-pod", true, "Delete the pod once it finishes")
	flags.Bool("get-logs", true, "Stream the container logs")
	flags.Bool("do-xcom-push", false, "Push the last output line, decoded as JSON, to XCom")
	flags.String("kubectl-path", "kubectl", "kubectl binary")

	return cmd
}
