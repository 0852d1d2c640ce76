package hdfssensor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/taskcontext"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

// ClassName is the allow-listed name of the sensor.
const ClassName = "HdfsSensor"

const (
	defaultConnID      = "hdfs_default"
	defaultWebHDFSPort = 9870
	megabyte           = 1024 * 1024
)

// Params are the HdfsSensor keyword arguments.
type Params struct {
	Filepath      string   `yaml:"filepath" validate:"required"`
	HdfsConnID    string   `yaml:"hdfs_conn_id"`
	IgnoredExt    []string `yaml:"ignored_ext"`
	IgnoreCopying *bool    `yaml:"ignore_copying"`
	FileSize      *float64 `yaml:"file_size" validate:"omitempty,gte=0"`
}

// Lister lists an HDFS path.
type Lister interface {
	Ls(ctx context.Context, p string) ([]FileStatus, error)
}

// Sensor waits for a file or folder to land in HDFS.
type Sensor struct {
	operator.BaseOperator
	operator.Sensor
	Params Params

	// Client overrides the WebHDFS client built from the connection.
	Client Lister
}

// New constructs the sensor from its keyword arguments.
func New(args operator.Args, deps operator.Deps) (operator.Operator, error) {
	base, err := operator.NewBase(args, deps, true)
	if err != nil {
		return nil, err
	}
	sensor, err := operator.NewSensor(args)
	if err != nil {
		return nil, err
	}
	params := Params{
		HdfsConnID: defaultConnID,
		IgnoredExt: []string{"_COPYING_"},
	}
	if err := args.Decode(&params); err != nil {
		return nil, err
	}
	return &Sensor{BaseOperator: base, Sensor: sensor, Params: params}, nil
}

// Register adds the sensor to reg.
func Register(reg *operator.Registry) error {
	return reg.Register(operator.Registration{
		ClassName: ClassName,
		TargetArg: "filepath",
		Aliases: []string{
			"ArrowHdfsSensor",
			"airflow.providers.apache.hdfs.sensors.hdfs:HdfsSensor",
			"airflow.sensors.hdfs_sensor:HdfsSensor",
		},
		Description: "Waits for a file or folder to land in HDFS.",
		New:         New,
	})
}

func init() {
	if err := Register(operator.DefaultRegistry()); err != nil {
		panic(err)
	}
}

// RenderTemplates renders filepath.
func (s *Sensor) RenderTemplates(render func(string) (string, error)) error {
	return operator.RenderAll(render, &s.Params.Filepath)
}

// Execute pokes until a matching file exists or the sensor times out.
func (s *Sensor) Execute(ctx context.Context, _ taskcontext.Context) (any, error) {
	client := s.Client
	if client == nil {
		c, err := s.newClient()
		if err != nil {
			return nil, execerrors.NewExecutionError(s.ID, err)
		}
		client = c
	}

	err := s.Wait(ctx, &s.BaseOperator, func(ctx context.Context) (bool, error) {
		return s.poke(ctx, client)
	})
	return nil, err
}

func (s *Sensor) poke(ctx context.Context, client Lister) (bool, error) {
	s.Log.Infof("Poking for file %s", s.Params.Filepath)
	entries, err := client.Ls(ctx, s.Params.Filepath)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	entries = s.filterForFilesize(entries)
	entries = s.filterForIgnoredExt(entries)
	return len(entries) > 0, nil
}

func (s *Sensor) filterForFilesize(entries []FileStatus) []FileStatus {
	if s.Params.FileSize == nil {
		return entries
	}
	threshold := int64(*s.Params.FileSize * megabyte)
	var kept []FileStatus
	for _, entry := range entries {
		if entry.Length >= threshold {
			kept = append(kept, entry)
			continue
		}
		s.Log.Info(fmt.Sprintf("Ignoring %s: %s is below the %s minimum", entry.Path, humanize.IBytes(uint64(max(entry.Length, 0))), humanize.IBytes(uint64(threshold))))
	}
	return kept
}

func (s *Sensor) filterForIgnoredExt(entries []FileStatus) []FileStatus {
	if s.Params.IgnoreCopying != nil && !*s.Params.IgnoreCopying {
		return entries
	}
	if len(s.Params.IgnoredExt) == 0 {
		return entries
	}
	quoted := make([]string, len(s.Params.IgnoredExt))
	for i, ext := range s.Params.IgnoredExt {
		quoted[i] = regexp.QuoteMeta(ext)
	}
	ignored := regexp.MustCompile(`^.*\.(` + strings.Join(quoted, "|") + `)$`)

	var kept []FileStatus
	for _, entry := range entries {
		if ignored.MatchString(entry.Path) {
			continue
		}
		kept = append(kept, entry)
	}
	return kept
}

func (s *Sensor) newClient() (*Client, error) {
	conn, err := s.Connection(s.Params.HdfsConnID)
	if err != nil {
		return nil, err
	}
	if conn.Host == "" {
		return nil, fmt.Errorf("connection %s has no host", s.Params.HdfsConnID)
	}
	scheme := "http"
	if conn.ExtraBool("use_ssl", false) {
		scheme = "https"
	}
	port := defaultWebHDFSPort
	if conn.Port != 0 {
		port = conn.Port
	}
	if p := conn.ExtraString("webhdfs_port", ""); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid webhdfs_port %q", p)
		}
		port = parsed
	}
	return NewClient(fmt.Sprintf("%s://%s:%d", scheme, conn.Host, port), conn.Login), nil
}
