package remotebashoperator

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/execstream"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/secrets"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/taskcontext"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

// ClassName is the allow-listed name of the operator.
const ClassName = "RemoteBashOperator"

const (
	defaultSSHPort     = 22
	defaultConnTimeout = 10 * time.Second
	remoteShell        = "bash -s"
)

// Params are the RemoteBashOperator keyword arguments.
type Params struct {
	Command        string            `yaml:"command" validate:"required"`
	Cluster        string            `yaml:"cluster"`
	User           string            `yaml:"user"`
	JobName        string            `yaml:"job_name"`
	Memory         int               `yaml:"memory"`
	VCores         int               `yaml:"vcores"`
	Env            map[string]string `yaml:"env"`
	OutputEncoding string            `yaml:"output_encoding"`
	Cwd            string            `yaml:"cwd"`
	Encode         *bool             `yaml:"encode"`
	ExtraClusters  []string          `yaml:"extra_clusters"`
	Files          []string          `yaml:"files"`
	PomXMLPath     string            `yaml:"pom_xml_path"`
	Log4jPath      string            `yaml:"log4j_path"`
	YarnQueue      string            `yaml:"yarn_queue"`
	YarnTags       string            `yaml:"yarn_tags"`
}

// Operator runs a bash command on a cluster edge node over SSH, exporting
// the YARN submission settings to it.
type Operator struct {
	operator.BaseOperator
	Params Params
}

// New constructs the operator from its keyword arguments. Submitter fields
// are checked by PreExecute.
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
		ClassName:   ClassName,
		Aliases:     []string{"remote_bash_operator.operator:RemoteBashOperator"},
		Description: "Execute a Bash script, command or set of commands on a remote cluster.",
		New:         New,
	})
}

func init() {
	if err := Register(operator.DefaultRegistry()); err != nil {
		panic(err)
	}
}

// RenderTemplates renders the command, job name and env values.
func (o *Operator) RenderTemplates(render func(string) (string, error)) error {
	if err := operator.RenderAll(render, &o.Params.Command, &o.Params.JobName); err != nil {
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

var (
	userPattern    = regexp.MustCompile(`^[a-z_][a-z0-9_.-]*$`)
	jobNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// PreExecute validates the submitter: who runs the job, where, and with
// which resources.
func (o *Operator) PreExecute(context.Context, taskcontext.Context) error {
	p := o.Params
	if !userPattern.MatchString(p.User) {
		return execerrors.NewValidationError("user", fmt.Sprintf("invalid user %q", p.User), nil)
	}
	if !jobNamePattern.MatchString(p.JobName) {
		return execerrors.NewValidationError("job_name", fmt.Sprintf("invalid job name %q", p.JobName), nil)
	}
	if p.Memory <= 0 {
		return execerrors.NewValidationError("memory", "memory must be a positive number of megabytes", nil)
	}
	if p.VCores <= 0 {
		return execerrors.NewValidationError("vcores", "vcores must be positive", nil)
	}
	if p.Cluster == "" {
		return execerrors.NewValidationError("cluster", "cluster is required", nil)
	}
	for _, cluster := range append([]string{p.Cluster}, p.ExtraClusters...) {
		if _, err := o.Connection(cluster); err != nil {
			return execerrors.NewValidationError("cluster", fmt.Sprintf("unknown cluster %s", cluster), err)
		}
	}
	return nil
}

// Env returns the variables exported on the remote host.
func (o *Operator) Env(tctx taskcontext.Context) map[string]string {
	p := o.Params
	env := tctx.EnvVars(o.Owner)
	env["HADOOP_USER_NAME"] = p.User
	env["YARN_JOB_NAME"] = p.JobName
	env["YARN_MEMORY_MB"] = strconv.Itoa(p.Memory)
	env["YARN_VCORES"] = strconv.Itoa(p.VCores)
	optional := map[string]string{
		"YARN_QUEUE":          p.YarnQueue,
		"YARN_TAGS":           p.YarnTags,
		"YARN_FILES":          strings.Join(p.Files, ","),
		"YARN_EXTRA_CLUSTERS": strings.Join(p.ExtraClusters, ","),
		"POM_XML_PATH":        p.PomXMLPath,
		"LOG4J_PATH":          p.Log4jPath,
	}
	for k, v := range optional {
		if v != "" {
			env[k] = v
		}
	}
	for k, v := range p.Env {
		env[k] = v
	}
	return env
}

// Script builds the shell script fed to the remote shell's stdin.
func (o *Operator) Script(env map[string]string) string {
	var b strings.Builder
	b.WriteString("set -e\n")

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "export %s=%s\n", k, quote(env[k]))
	}
	if o.Params.Cwd != "" {
		fmt.Fprintf(&b, "cd %s\n", quote(o.Params.Cwd))
	}
	b.WriteString("set +e\n")
	if o.Params.Encode == nil || *o.Params.Encode {
		encoded := base64.StdEncoding.EncodeToString([]byte(o.Params.Command))
		fmt.Fprintf(&b, "eval \"$(echo %s | base64 -d)\"\n", encoded)
	} else {
		b.WriteString(o.Params.Command + "\n")
	}
	return b.String()
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Execute runs the command on the cluster's host and returns the last line
// it printed.
func (o *Operator) Execute(ctx context.Context, tctx taskcontext.Context) (any, error) {
	conn, err := o.Connection(o.Params.Cluster)
	if err != nil {
		return nil, execerrors.NewExecutionError(o.ID, err)
	}
	client, err := Dial(ctx, conn, o.Params.User)
	if err != nil {
		return nil, execerrors.NewExecutionError(o.ID, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, execerrors.NewExecutionError(o.ID, fmt.Errorf("open ssh session: %w", err))
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdin = strings.NewReader(o.Script(o.Env(tctx)))
	session.Stdout = io.MultiWriter(os.Stdout, &stdout)
	session.Stderr = io.MultiWriter(os.Stderr, &stderr)

	o.Log.WithFields(map[string]any{"cluster": o.Params.Cluster, "host": conn.Host, "job_name": o.Params.JobName}).
		Infof("running remote command: %s", o.Params.Command)

	done := make(chan error, 1)
	go func() { done <- session.Run(remoteShell) }()

	select {
	case <-ctx.Done():
		_ = client.Close()
		return nil, ctx.Err()
	case err = <-done:
	}

	res := execstream.Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("remote command failed, the command returned a non-zero exit code %d", exitErr.ExitStatus())
		}
		return nil, execerrors.NewExecutionError(o.ID, execstream.Failure(err, res))
	}
	o.Log.Info("remote command finished")

	return execstream.Decode(execstream.LastLine(res.Stdout), o.Params.OutputEncoding)
}

// Dial opens an SSH connection to conn's host. The login defaults to user.
// Password auth is used when the connection has a password; key_file and
// private_key extras add public key auth. Host keys are checked against
// host_key or known_hosts unless no_host_key_check is set (the default).
func Dial(ctx context.Context, conn *secrets.Connection, user string) (*ssh.Client, error) {
	if conn.Host == "" {
		return nil, fmt.Errorf("connection %s has no host", conn.ConnID)
	}
	config, err := ClientConfig(conn, user)
	if err != nil {
		return nil, err
	}
	port := conn.Port
	if port == 0 {
		port = defaultSSHPort
	}
	addr := fmt.Sprintf("%s:%d", conn.Host, port)

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, config)
		ch <- dialResult{c, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("ssh dial %s: %w", addr, r.err)
		}
		return r.client, nil
	}
}

// ClientConfig derives the SSH client configuration from conn.
func ClientConfig(conn *secrets.Connection, user string) (*ssh.ClientConfig, error) {
	login := conn.Login
	if login == "" {
		login = user
	}

	var auth []ssh.AuthMethod
	if signer, err := privateKey(conn); err != nil {
		return nil, err
	} else if signer != nil {
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if conn.Password != "" {
		auth = append(auth, ssh.Password(conn.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("connection %s has no password, key_file or private_key", conn.ConnID)
	}

	hostKey, err := hostKeyCallback(conn)
	if err != nil {
		return nil, err
	}

	timeout := defaultConnTimeout
	if raw := conn.ExtraString("conn_timeout", ""); raw != "" {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid conn_timeout %q", raw)
		}
		timeout = time.Duration(seconds * float64(time.Second))
	}

	return &ssh.ClientConfig{
		User:            login,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}, nil
}

func privateKey(conn *secrets.Connection) (ssh.Signer, error) {
	pem := []byte(conn.ExtraString("private_key", ""))
	if path := conn.ExtraString("key_file", ""); path != "" {
		data, err := os.ReadFile(expandHome(path))
		if err != nil {
			return nil, fmt.Errorf("read key_file: %w", err)
		}
		pem = data
	}
	if len(pem) == 0 {
		return nil, nil
	}
	if passphrase := conn.ExtraString("private_key_passphrase", ""); passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(pem)
}

func hostKeyCallback(conn *secrets.Connection) (ssh.HostKeyCallback, error) {
	if raw := conn.ExtraString("host_key", ""); raw != "" {
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("parse host_key: %w", err)
		}
		return ssh.FixedHostKey(key), nil
	}
	if conn.ExtraBool("no_host_key_check", true) {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // matches the connection's no_host_key_check
	}
	return knownhosts.New(expandHome("~/.ssh/known_hosts"))
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
