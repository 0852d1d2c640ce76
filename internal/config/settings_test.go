package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	os.Unsetenv(EnvLogLevel)
	t.Setenv(EnvLogFormat, "")
	os.Unsetenv(EnvLogFormat)
	t.Setenv(EnvSecretsBackend, "")
	t.Setenv(EnvSecretsBackendKwargs, "")

	s, err := FromEnv()
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	require.Equal(t, "info", s.LogLevel)
	require.Equal(t, "console", s.LogFormat)
	require.True(t, s.HumanReadable())
	require.Empty(t, s.SecretsBackend)
	require.Empty(t, s.SecretsBackendKwargs)
}

func TestFromEnvReadsSecretsBackend(t *testing.T) {
	t.Setenv(EnvLogFormat, "JSON")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvSecretsBackend, "local_filesystem")
	t.Setenv(EnvSecretsBackendKwargs, `{"connections_file_path": "/tmp/conns.yaml"}`)

	s, err := FromEnv()
	require.NoError(t, err)
	require.False(t, s.HumanReadable())
	require.Equal(t, "local_filesystem", s.SecretsBackend)
	require.Equal(t, "/tmp/conns.yaml", s.SecretsBackendKwargs["connections_file_path"])
}

func TestFromEnvMalformedKwargsAreEmpty(t *testing.T) {
	t.Setenv(EnvSecretsBackendKwargs, "{not json")

	s, err := FromEnv()
	require.NoError(t, err)
	require.NotNil(t, s.SecretsBackendKwargs)
	require.Empty(t, s.SecretsBackendKwargs)
}

func TestValidateRejectsUnknownFormat(t *testing.T) {
	t.Setenv(EnvLogFormat, "xml")

	s, err := FromEnv()
	require.NoError(t, err)
	require.Error(t, s.Validate())

	s.LogFormat = "json"
	require.NoError(t, s.Validate())
}

func TestParseAssignments(t *testing.T) {
	t.Parallel()

	vars, err := ParseAssignments([]string{"region=eu-west-1", "token=a=b"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"region": "eu-west-1", "token": "a=b"}, vars)

	_, err = ParseAssignments([]string{"novalue"})
	require.Error(t, err)

	_, err = ParseAssignments([]string{"=value"})
	require.Error(t, err)
}

func TestExportVariablesUppercasesKeys(t *testing.T) {
	t.Setenv("MY_BUCKET", "")

	require.NoError(t, ExportVariables(map[string]string{"my_bucket": "data"}))
	require.Equal(t, "data", os.Getenv("MY_BUCKET"))
}

func TestBoolParsesValues(t *testing.T) {
	t.Setenv("EXECUTE_ANY_FLAG", "true")
	v, err := Bool("EXECUTE_ANY_FLAG", false)
	require.NoError(t, err)
	require.True(t, v)

	t.Setenv("EXECUTE_ANY_FLAG", "maybe")
	_, err = Bool("EXECUTE_ANY_FLAG", false)
	require.Error(t, err)
}
