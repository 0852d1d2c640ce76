package s3sensor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/secrets"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

type fakeStore struct {
	mu      sync.Mutex
	keys    map[string]bool
	statErr error
	stats   int
	// appearAfter makes keys visible only from the nth stat call.
	appearAfter int
}

func (f *fakeStore) StatObject(_ context.Context, bucket, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats++
	if f.statErr != nil {
		return minio.ObjectInfo{}, f.statErr
	}
	if f.keys[bucket+"/"+key] && f.stats >= f.appearAfter {
		return minio.ObjectInfo{Key: key}, nil
	}
	return minio.ObjectInfo{}, minio.ErrorResponse{StatusCode: http.StatusNotFound, Code: "NoSuchKey"}
}

func (f *fakeStore) ListObjects(_ context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(f.keys))
	for full := range f.keys {
		b, key, _ := strings.Cut(full, "/")
		if b == bucket && strings.HasPrefix(key, opts.Prefix) {
			ch <- minio.ObjectInfo{Key: key}
		}
	}
	close(ch)
	return ch
}

func newSensor(t *testing.T, args operator.Args, store ObjectStore) *Sensor {
	t.Helper()
	args["task_id"] = "execute_S3KeySensor"
	if _, ok := args["poke_interval"]; !ok {
		args["poke_interval"] = 0.001
	}
	if _, ok := args["timeout"]; !ok {
		args["timeout"] = 0.05
	}
	op, err := New(args, operator.Deps{})
	require.NoError(t, err)
	sensor := op.(*Sensor)
	sensor.Store = store
	return sensor
}

func TestLocation(t *testing.T) {
	t.Parallel()

	s := newSensor(t, operator.Args{"bucket_key": "s3://landing/2024/data.csv"}, nil)
	bucket, key, err := s.Location()
	require.NoError(t, err)
	require.Equal(t, "landing", bucket)
	require.Equal(t, "2024/data.csv", key)

	s = newSensor(t, operator.Args{"bucket_key": "2024/data.csv", "bucket_name": "landing"}, nil)
	bucket, key, err = s.Location()
	require.NoError(t, err)
	require.Equal(t, "landing", bucket)
	require.Equal(t, "2024/data.csv", key)

	var verr *execerrors.ValidationError
	s = newSensor(t, operator.Args{"bucket_key": "2024/data.csv"}, nil)
	_, _, err = s.Location()
	require.ErrorAs(t, err, &verr)

	s = newSensor(t, operator.Args{"bucket_key": "s3://landing/x", "bucket_name": "landing"}, nil)
	_, _, err = s.Location()
	require.ErrorAs(t, err, &verr)
}

func TestExecuteFindsKey(t *testing.T) {
	t.Parallel()

	store := &fakeStore{keys: map[string]bool{"landing/data.csv": true}, appearAfter: 3}
	s := newSensor(t, operator.Args{"bucket_key": "s3://landing/data.csv", "timeout": 5}, store)

	result, err := s.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, result)
	require.Equal(t, 3, store.stats)
}

func TestExecuteTimesOutWhenKeyMissing(t *testing.T) {
	t.Parallel()

	s := newSensor(t, operator.Args{"bucket_key": "s3://landing/missing.csv"}, &fakeStore{})
	_, err := s.Execute(context.Background(), nil)
	require.ErrorIs(t, err, operator.ErrSensorTimeout)
}

func TestExecuteSoftFail(t *testing.T) {
	t.Parallel()

	s := newSensor(t, operator.Args{"bucket_key": "s3://landing/missing.csv", "soft_fail": true}, &fakeStore{})
	_, err := s.Execute(context.Background(), nil)
	require.ErrorIs(t, err, operator.ErrTaskSkipped)
}

func TestExecutePropagatesAccessErrors(t *testing.T) {
	t.Parallel()

	denied := minio.ErrorResponse{StatusCode: http.StatusForbidden, Code: "AccessDenied"}
	s := newSensor(t, operator.Args{"bucket_key": "s3://landing/data.csv"}, &fakeStore{statErr: denied})
	_, err := s.Execute(context.Background(), nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, operator.ErrSensorTimeout)
	require.Equal(t, "AccessDenied", minio.ToErrorResponse(err).Code)
}

func TestExecuteWildcard(t *testing.T) {
	t.Parallel()

	store := &fakeStore{keys: map[string]bool{
		"landing/exports/2024/part-0001.csv": true,
		"landing/other/part-0001.csv":        true,
	}}
	s := newSensor(t, operator.Args{"bucket_key": "s3://landing/exports/*.csv", "wildcard_match": true}, store)
	_, err := s.Execute(context.Background(), nil)
	require.NoError(t, err)

	s = newSensor(t, operator.Args{"bucket_key": "s3://landing/exports/*.json", "wildcard_match": true}, store)
	_, err = s.Execute(context.Background(), nil)
	require.ErrorIs(t, err, operator.ErrSensorTimeout)
}

func TestFnmatch(t *testing.T) {
	t.Parallel()

	cases := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"exports/*.csv", "exports/2024/a.csv", true},
		{"exports/?.csv", "exports/a.csv", true},
		{"exports/?.csv", "exports/ab.csv", false},
		{"part-[0-9].csv", "part-7.csv", true},
		{"part-[!0-9].csv", "part-7.csv", false},
		{"a+b.csv", "a+b.csv", true},
		{"broken[", "broken[", true},
	}
	for _, tc := range cases {
		re, err := fnmatch(tc.pattern)
		require.NoError(t, err, tc.pattern)
		require.Equal(t, tc.want, re.MatchString(tc.key), tc.pattern)
	}
	require.Equal(t, "exports/", wildcardPrefix("exports/*.csv"))
	require.Equal(t, "plain", wildcardPrefix("plain"))
}

func TestClientOptions(t *testing.T) {
	t.Parallel()

	conn, err := secrets.ParseURI("aws_default", "aws://AKIA:secret@/?endpoint_url=http%3A%2F%2Fminio.local%3A9000&region_name=eu-west-1")
	require.NoError(t, err)

	opts, endpoint, err := ClientOptions(conn, nil)
	require.NoError(t, err)
	require.Equal(t, "minio.local:9000", endpoint)
	require.False(t, opts.Secure)
	require.Equal(t, "eu-west-1", opts.Region)

	value, err := opts.Creds.Get()
	require.NoError(t, err)
	require.Equal(t, "AKIA", value.AccessKeyID)

	verify := false
	opts, endpoint, err = ClientOptions(&secrets.Connection{ConnID: "aws_default"}, &verify)
	require.NoError(t, err)
	require.Equal(t, defaultEndpoint, endpoint)
	require.True(t, opts.Secure)
	require.Equal(t, defaultRegion, opts.Region)
	require.True(t, opts.Transport.(*http.Transport).TLSClientConfig.InsecureSkipVerify)
}

func TestExecuteAgainstS3Endpoint(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path == "/landing/present.csv" {
			w.Header().Set("Last-Modified", "Mon, 04 Mar 2024 10:00:00 GMT")
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Length", "0")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	lookup := secrets.NewChain(nil, &secrets.EnvironmentBackend{Environ: func() []string {
		return []string{"AIRFLOW_CONN_MINIO=aws://key:secret@/?endpoint_url=" + strings.ReplaceAll(server.URL, ":", "%3A")}
	}})

	run := func(key string) error {
		op, err := New(operator.Args{
			"task_id":       "execute_S3KeySensor",
			"bucket_key":    "s3://landing/" + key,
			"aws_conn_id":   "minio",
			"poke_interval": 0.001,
			"timeout":       0.2,
		}, operator.Deps{Connections: lookup})
		require.NoError(t, err)
		_, err = op.Execute(context.Background(), nil)
		return err
	}

	require.NoError(t, run("present.csv"))
	require.ErrorIs(t, run("absent.csv"), operator.ErrSensorTimeout)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(operator.Args{"task_id": "t"}, operator.Deps{})
	var verr *execerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "bucket_key", verr.Field)

	op, err := New(operator.Args{"task_id": "t", "bucket_key": "s3://b/k"}, operator.Deps{})
	require.NoError(t, err)
	require.Equal(t, defaultConnID, op.(*Sensor).Params.AWSConnID)
	require.False(t, errors.Is(err, operator.ErrSensorTimeout))
}
