package hiveoperator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/execstream"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/secrets"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/taskcontext"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

// ClassName is the allow-listed name of the operator.
const ClassName = "HiveOperator"

const (
	defaultConnID     = "hive_cli_default"
	defaultSchema     = "default"
	defaultHivePort   = 10000
	queueConfName     = "mapreduce.job.queuename"
	legacyQueueConf   = "mapred.job.queue.name"
	priorityConfName  = "mapreduce.job.priority"
	jobNameConfName   = "mapred.job.name"
	airflowConfPrefix = "airflow.ctx."
)

// Params are the HiveOperator keyword arguments.
type Params struct {
	HQL                    string            `yaml:"hql" validate:"required"`
	HiveCLIConnID          string            `yaml:"hive_cli_conn_id"`
	Schema                 string            `yaml:"schema"`
	HiveConfs              map[string]string `yaml:"hiveconfs"`
	HiveConfJinjaTranslate bool              `yaml:"hiveconf_jinja_translate"`
	MapredQueue            string            `yaml:"mapred_queue"`
	MapredQueuePriority    string            `yaml:"mapred_queue_priority" validate:"omitempty,oneof=VERY_HIGH HIGH NORMAL LOW VERY_LOW"`
	MapredJobName          string            `yaml:"mapred_job_name"`
	RunAsOwner             bool              `yaml:"run_as_owner"`
	// Beeline and Hive override the client binaries looked up on PATH.
	Beeline string `yaml:"beeline_path"`
	Hive    string `yaml:"hive_path"`
}

// Operator runs HQL through the beeline or hive command line client.
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
	params := Params{
		HiveCLIConnID: defaultConnID,
		Schema:        defaultSchema,
		Beeline:       "beeline",
		Hive:          "hive",
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
			"airflow.providers.apache.hive.operators.hive:HiveOperator",
			"airflow.operators.hive_operator:HiveOperator",
		},
		Description: "Executes hql code or hive script in a specific Hive database.",
		New:         New,
	})
}

func init() {
	if err := Register(operator.DefaultRegistry()); err != nil {
		panic(err)
	}
}

var jinjaVar = regexp.MustCompile(`\$\{([ a-zA-Z0-9_]+)\}`)

// RenderTemplates renders hql, the schema and the job name. With
// hiveconf_jinja_translate, ${var} references become template lookups first.
func (o *Operator) RenderTemplates(render func(string) (string, error)) error {
	if o.Params.HiveConfJinjaTranslate {
		o.Params.HQL = jinjaVar.ReplaceAllStringFunc(o.Params.HQL, func(ref string) string {
			name := strings.TrimSpace(jinjaVar.FindStringSubmatch(ref)[1])
			return "{{ ." + name + " }}"
		})
	}
	return operator.RenderAll(render, &o.Params.HQL, &o.Params.Schema, &o.Params.MapredJobName)
}

// HiveConfs returns the -hiveconf pairs passed to the client: the task's
// airflow.ctx.* values, the queue and job settings, then user hiveconfs.
func (o *Operator) HiveConfs(tctx taskcontext.Context) map[string]string {
	confs := map[string]string{}
	for key, value := range tctx.EnvVars(o.Owner) {
		name := strings.ToLower(strings.TrimPrefix(key, "AIRFLOW_CTX_"))
		confs[airflowConfPrefix+name] = value
	}
	if o.Params.MapredQueue != "" {
		confs[queueConfName] = o.Params.MapredQueue
		confs[legacyQueueConf] = o.Params.MapredQueue
	}
	if o.Params.MapredQueuePriority != "" {
		confs[priorityConfName] = o.Params.MapredQueuePriority
	}
	if o.Params.MapredJobName != "" {
		confs[jobNameConfName] = o.Params.MapredJobName
	}
	for k, v := range o.Params.HiveConfs {
		confs[k] = v
	}
	return confs
}

// CommandArgs builds the client invocation that runs hqlFile against conn.
// Connections default to beeline unless their use_beeline extra is false.
func (o *Operator) CommandArgs(conn *secrets.Connection, hqlFile string, confs map[string]string) (string, []string) {
	var (
		bin  string
		args []string
	)
	if conn.ExtraBool("use_beeline", true) {
		bin = o.Params.Beeline
		args = append(args, "-u", JDBCURL(conn, o.Params.Schema))
		if conn.Login != "" {
			args = append(args, "-n", conn.Login)
		}
		if conn.Password != "" {
			args = append(args, "-p", conn.Password)
		}
	} else {
		bin = o.Params.Hive
		if o.Params.Schema != "" {
			args = append(args, "--database", o.Params.Schema)
		}
	}
	if o.Params.RunAsOwner && o.Owner != "" {
		args = append(args, "--hiveconf", "hive.server2.proxy.user="+o.Owner)
	}

	keys := make([]string, 0, len(confs))
	for k := range confs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--hiveconf", k+"="+confs[k])
	}
	return bin, append(args, "-f", hqlFile)
}

// JDBCURL builds the hive2 URL for conn, adding the principal or auth
// extras when the connection carries them.
func JDBCURL(conn *secrets.Connection, schema string) string {
	port := conn.Port
	if port == 0 {
		port = defaultHivePort
	}
	jdbc := fmt.Sprintf("jdbc:hive2://%s:%d/%s", conn.Host, port, schema)
	if principal := conn.ExtraString("principal", ""); principal != "" {
		jdbc += ";principal=" + principal
	} else if auth := conn.ExtraString("auth", ""); auth != "" {
		jdbc += ";auth=" + auth
	}
	if conn.ExtraBool("ssl", false) {
		jdbc += ";ssl=true"
	}
	return jdbc
}

// Execute writes hql to a temporary file and runs it through the client.
// The last line printed is returned.
func (o *Operator) Execute(ctx context.Context, tctx taskcontext.Context) (any, error) {
	conn, err := o.Connection(o.Params.HiveCLIConnID)
	if err != nil {
		return nil, execerrors.NewExecutionError(o.ID, err)
	}

	tmp, err := os.MkdirTemp("", "airflow_hiveop_")
	if err != nil {
		return nil, execerrors.NewExecutionError(o.ID, err)
	}
	defer os.RemoveAll(tmp)

	hqlFile := filepath.Join(tmp, "query.hql")
	if err := os.WriteFile(hqlFile, []byte(o.Params.HQL), 0o600); err != nil {
		return nil, execerrors.NewExecutionError(o.ID, err)
	}

	bin, args := o.CommandArgs(conn, hqlFile, o.HiveConfs(tctx))
	o.Log.WithFields(map[string]any{"schema": o.Params.Schema, "client": filepath.Base(bin)}).
		Infof("executing: %s", o.Params.HQL)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = tmp
	res, err := execstream.Run(cmd)
	if err != nil {
		return nil, execerrors.NewExecutionError(o.ID, execstream.Failure(fmt.Errorf("hive command failed: %w", err), res))
	}
	return execstream.LastLine(res.Stdout), nil
}
