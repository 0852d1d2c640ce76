package kubernetesoperator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/execstream"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/taskcontext"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

// ClassName is the allow-listed name of the operator.
const ClassName = "KubernetesPodOperator"

const maxPodNameLength = 63

// Params are the KubernetesPodOperator keyword arguments.
type Params struct {
	Namespace             string            `yaml:"namespace"`
	Image                 string            `yaml:"image" validate:"required"`
	Name                  string            `yaml:"name" validate:"required"`
	RandomNameSuffix      *bool             `yaml:"random_name_suffix"`
	Cmds                  []string          `yaml:"cmds"`
	Arguments             []string          `yaml:"arguments"`
	Labels                map[string]string `yaml:"labels"`
	Annotations           map[string]string `yaml:"annotations"`
	EnvVars               map[string]string `yaml:"env_vars"`
	ImagePullPolicy       string            `yaml:"image_pull_policy" validate:"omitempty,oneof=Always IfNotPresent Never"`
	ServiceAccountName    string            `yaml:"service_account_name"`
	ClusterContext        string            `yaml:"cluster_context"`
	ConfigFile            string            `yaml:"config_file"`
	InCluster             bool              `yaml:"in_cluster"`
	StartupTimeoutSeconds int               `yaml:"startup_timeout_seconds" validate:"gte=0"`
	IsDeleteOperatorPod   *bool             `yaml:"is_delete_operator_pod"`
	GetLogs               *bool             `yaml:"get_logs"`
	Kubectl               string            `yaml:"kubectl_path"`
}

// Operator launches a pod through kubectl and waits for it to finish.
type Operator struct {
	operator.BaseOperator
	Params Params
}

// New constructs the operator from its keyword arguments. Results are only
// pushed to XCom when do_xcom_push is set explicitly.
func New(args operator.Args, deps operator.Deps) (operator.Operator, error) {
	base, err := operator.NewBase(args, deps, false)
	if err != nil {
		return nil, err
	}
	params := Params{
		Namespace:             "default",
		StartupTimeoutSeconds: 120,
		Kubectl:               "kubectl",
	}
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
			"airflow.providers.cncf.kubernetes.operators.kubernetes_pod:KubernetesPodOperator",
			"airflow.contrib.operators.kubernetes_pod_operator:KubernetesPodOperator",
		},
		Description: "Execute a task in a Kubernetes Pod.",
		New:         New,
	})
}

func init() {
	if err := Register(operator.DefaultRegistry()); err != nil {
		panic(err)
	}
}

// RenderTemplates renders the command, arguments, env values and labels.
func (o *Operator) RenderTemplates(render func(string) (string, error)) error {
	for _, list := range [][]string{o.Params.Cmds, o.Params.Arguments} {
		for i := range list {
			if err := operator.RenderAll(render, &list[i]); err != nil {
				return err
			}
		}
	}
	for _, m := range []map[string]string{o.Params.EnvVars, o.Params.Labels} {
		for key, value := range m {
			out, err := render(value)
			if err != nil {
				return err
			}
			m[key] = out
		}
	}
	return operator.RenderAll(render, &o.Params.Image)
}

func enabled(flag *bool) bool {
	return flag == nil || *flag
}

var invalidNameChars = regexp.MustCompile(`[^a-z0-9.-]+`)

// PodName returns a DNS-1123 compliant pod name, with a random suffix unless
// random_name_suffix is false.
func (o *Operator) PodName() string {
	name := invalidNameChars.ReplaceAllString(strings.ToLower(o.Params.Name), "-")
	name = strings.Trim(name, "-.")
	if enabled(o.Params.RandomNameSuffix) {
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		if len(name) > maxPodNameLength-len(suffix)-1 {
			name = strings.TrimRight(name[:maxPodNameLength-len(suffix)-1], "-.")
		}
		return name + "-" + suffix
	}
	if len(name) > maxPodNameLength {
		name = strings.TrimRight(name[:maxPodNameLength], "-.")
	}
	return name
}

// KubectlArgs builds the kubectl invocation for podName.
func (o *Operator) KubectlArgs(podName string, tctx taskcontext.Context) []string {
	p := o.Params
	var args []string
	if p.ClusterContext != "" {
		args = append(args, "--context", p.ClusterContext)
	}
	if p.ConfigFile != "" {
		args = append(args, "--kubeconfig", p.ConfigFile)
	}
	args = append(args,
		"run", podName,
		"--namespace", p.Namespace,
		"--image", p.Image,
		"--restart", "Never",
		"--attach",
		"--quiet",
		fmt.Sprintf("--pod-running-timeout=%ds", p.StartupTimeoutSeconds),
	)
	if enabled(p.IsDeleteOperatorPod) {
		args = append(args, "--rm")
	}
	if labels := o.labels(tctx); len(labels) > 0 {
		args = append(args, "--labels", joinPairs(labels, ","))
	}
	for _, pair := range sortedPairs(p.Annotations) {
		args = append(args, "--annotations", pair)
	}
	for _, pair := range sortedPairs(p.EnvVars) {
		args = append(args, "--env", pair)
	}
	if p.ImagePullPolicy != "" {
		args = append(args, "--image-pull-policy", p.ImagePullPolicy)
	}
	if p.ServiceAccountName != "" {
		overrides, _ := json.Marshal(map[string]any{
			"spec": map[string]any{"serviceAccountName": p.ServiceAccountName},
		})
		args = append(args, "--overrides", string(overrides))
	}
	if len(p.Cmds) > 0 {
		args = append(args, "--command", "--")
		args = append(args, p.Cmds...)
		args = append(args, p.Arguments...)
	} else if len(p.Arguments) > 0 {
		args = append(args, "--")
		args = append(args, p.Arguments...)
	}
	return args
}

func (o *Operator) labels(tctx taskcontext.Context) map[string]string {
	labels := map[string]string{"kubernetes_pod_operator": "True"}
	if ti := tctx.TaskInstance(); ti != nil {
		labels["dag_id"] = ti.DagID
		labels["task_id"] = ti.TaskID
		labels["run_id"] = ti.RunID
		labels["try_number"] = fmt.Sprint(ti.TryNumber)
	}
	for k, v := range o.Params.Labels {
		labels[k] = v
	}
	return labels
}

func sortedPairs(m map[string]string) []string {
	pairs := make([]string, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}

func joinPairs(m map[string]string, sep string) string {
	return strings.Join(sortedPairs(m), sep)
}

// Execute runs the pod to completion. With do_xcom_push the last line the
// container printed is returned, decoded as JSON when it parses.
func (o *Operator) Execute(ctx context.Context, tctx taskcontext.Context) (any, error) {
	podName := o.PodName()
	log := o.Log.WithFields(map[string]any{"pod": podName, "namespace": o.Params.Namespace})
	if o.Params.InCluster && o.Params.ConfigFile == "" {
		log.Debug("using in-cluster configuration")
	}
	log.Info("creating pod")

	cmd := exec.CommandContext(ctx, o.Params.Kubectl, o.KubectlArgs(podName, tctx)...)
	if !enabled(o.Params.GetLogs) {
		cmd.Stdout = io.Discard
	}
	res, err := execstream.Run(cmd)
	if err != nil {
		return nil, execerrors.NewExecutionError(o.ID, execstream.Failure(fmt.Errorf("pod %s returned a failure: %w", podName, err), res))
	}
	log.Info("pod finished")

	if !o.DoXComPush {
		return nil, nil
	}
	line := execstream.LastLine(res.Stdout)
	var decoded any
	if err := json.Unmarshal([]byte(line), &decoded); err == nil {
		return decoded, nil
	}
	return line, nil
}
