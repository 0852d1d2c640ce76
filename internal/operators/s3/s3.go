package s3sensor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/secrets"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/taskcontext"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

// ClassName is the allow-listed name of the sensor.
const ClassName = "S3KeySensor"

const (
	defaultConnID   = "aws_default"
	defaultRegion   = "us-east-1"
	defaultEndpoint = "s3.amazonaws.com"
)

// Params are the S3KeySensor keyword arguments.
type Params struct {
	BucketKey     string `yaml:"bucket_key" validate:"required"`
	BucketName    string `yaml:"bucket_name"`
	WildcardMatch bool   `yaml:"wildcard_match"`
	AWSConnID     string `yaml:"aws_conn_id"`
	Verify        *bool  `yaml:"verify"`
}

// ObjectStore is the subset of the minio client the sensor pokes with.
type ObjectStore interface {
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// Sensor waits for a key to be present in an S3 bucket.
type Sensor struct {
	operator.BaseOperator
	operator.Sensor
	Params Params

	// Store overrides the client built from the connection.
	Store ObjectStore
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
	params := Params{AWSConnID: defaultConnID}
	if err := args.Decode(&params); err != nil {
		return nil, err
	}
	return &Sensor{BaseOperator: base, Sensor: sensor, Params: params}, nil
}

// Register adds the sensor to reg.
func Register(reg *operator.Registry) error {
	return reg.Register(operator.Registration{
		ClassName: ClassName,
		TargetArg: "bucket_key",
		Aliases: []string{
			"airflow.providers.amazon.aws.sensors.s3_key:S3KeySensor",
			"airflow.providers.amazon.aws.sensors.s3:S3KeySensor",
			"airflow.sensors.s3_key_sensor:S3KeySensor",
		},
		Description: "Waits for a key to be present in a S3 bucket.",
		New:         New,
	})
}

func init() {
	if err := Register(operator.DefaultRegistry()); err != nil {
		panic(err)
	}
}

// RenderTemplates renders bucket_key and bucket_name.
func (s *Sensor) RenderTemplates(render func(string) (string, error)) error {
	return operator.RenderAll(render, &s.Params.BucketKey, &s.Params.BucketName)
}

// Location splits the configured key into bucket and object key.
func (s *Sensor) Location() (bucket, key string, err error) {
	isURL := strings.HasPrefix(s.Params.BucketKey, "s3://")
	if s.Params.BucketName == "" {
		if !isURL {
			return "", "", execerrors.NewValidationError("bucket_key", "if bucket_name is not provided, bucket_key must be a full s3:// url", nil)
		}
		parsed, err := url.Parse(s.Params.BucketKey)
		if err != nil || parsed.Host == "" {
			return "", "", execerrors.NewValidationError("bucket_key", fmt.Sprintf("cannot parse s3 url %q", s.Params.BucketKey), err)
		}
		return parsed.Host, strings.TrimPrefix(parsed.Path, "/"), nil
	}
	if isURL {
		return "", "", execerrors.NewValidationError("bucket_key", "if bucket_name is provided, bucket_key should be relative path from root level, rather than a full s3:// url", nil)
	}
	return s.Params.BucketName, s.Params.BucketKey, nil
}

// Execute pokes until the key exists or the sensor times out.
func (s *Sensor) Execute(ctx context.Context, _ taskcontext.Context) (any, error) {
	bucket, key, err := s.Location()
	if err != nil {
		return nil, err
	}
	store := s.Store
	if store == nil {
		if store, err = s.newClient(); err != nil {
			return nil, execerrors.NewExecutionError(s.ID, err)
		}
	}

	err = s.Wait(ctx, &s.BaseOperator, func(ctx context.Context) (bool, error) {
		return s.poke(ctx, store, bucket, key)
	})
	return nil, err
}

func (s *Sensor) poke(ctx context.Context, store ObjectStore, bucket, key string) (bool, error) {
	s.Log.Infof("Poking for key : s3://%s/%s", bucket, key)
	if s.Params.WildcardMatch {
		return matchAny(ctx, store, bucket, key)
	}

	_, err := store.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if resp := minio.ToErrorResponse(err); resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" {
		return false, nil
	}
	return false, err
}

func matchAny(ctx context.Context, store ObjectStore, bucket, pattern string) (bool, error) {
	re, err := fnmatch(pattern)
	if err != nil {
		return false, err
	}
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range store.ListObjects(listCtx, bucket, minio.ListObjectsOptions{Prefix: wildcardPrefix(pattern), Recursive: true}) {
		if obj.Err != nil {
			return false, obj.Err
		}
		if re.MatchString(obj.Key) {
			return true, nil
		}
	}
	return false, nil
}

// wildcardPrefix is the literal part of a pattern before its first wildcard.
func wildcardPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, "*?["); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

// fnmatch compiles a shell-style pattern. Unlike path.Match, '*' also
// matches '/', since object keys are flat.
func fnmatch(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := pattern[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + strings.ReplaceAll(class, `\`, `\\`) + "]")
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func (s *Sensor) newClient() (*minio.Client, error) {
	conn, err := s.Connection(s.Params.AWSConnID)
	if err != nil && !errors.Is(err, secrets.ErrConnectionNotFound) {
		return nil, err
	}
	if conn == nil {
		s.Log.Warn(fmt.Sprintf("connection %s not found, using AWS credentials from the environment", s.Params.AWSConnID))
		conn = &secrets.Connection{ConnID: s.Params.AWSConnID, ConnType: "aws"}
	}

	opts, endpoint, err := ClientOptions(conn, s.Params.Verify)
	if err != nil {
		return nil, err
	}
	return minio.New(endpoint, opts)
}

// ClientOptions derives minio client options and the endpoint from an AWS
// connection. Keys come from login/password or the aws_access_key_id /
// aws_secret_access_key extras; without either the AWS environment variables
// are used.
func ClientOptions(conn *secrets.Connection, verify *bool) (*minio.Options, string, error) {
	accessKey := conn.Login
	if accessKey == "" {
		accessKey = conn.ExtraString("aws_access_key_id", "")
	}
	secretKey := conn.Password
	if secretKey == "" {
		secretKey = conn.ExtraString("aws_secret_access_key", "")
	}

	var creds *credentials.Credentials
	if accessKey != "" && secretKey != "" {
		creds = credentials.NewStaticV4(accessKey, secretKey, conn.ExtraString("aws_session_token", ""))
	} else {
		creds = credentials.NewEnvAWS()
	}

	endpoint := defaultEndpoint
	secure := true
	if raw := conn.ExtraString("endpoint_url", conn.ExtraString("host", "")); raw != "" {
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Host == "" {
			return nil, "", fmt.Errorf("invalid endpoint_url %q", raw)
		}
		endpoint = parsed.Host
		secure = parsed.Scheme != "http"
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if verify != nil && !*verify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // verify=false was requested
	}

	return &minio.Options{
		Creds:     creds,
		Secure:    secure,
		Region:    conn.ExtraString("region_name", defaultRegion),
		Transport: transport,
	}, endpoint, nil
}
