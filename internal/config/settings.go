package config

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// EnvLogLevel selects the zerolog level.
	EnvLogLevel = "EXECUTE_ANY_LOG_LEVEL"
	// EnvLogFormat selects "console" or "json" log output.
	EnvLogFormat = "EXECUTE_ANY_LOG_FORMAT"
	// EnvSecretsBackend names an alternate secrets backend consulted before the environment.
	EnvSecretsBackend = "AIRFLOW__SECRETS__BACKEND"
	// EnvSecretsBackendKwargs holds the alternate backend's constructor arguments as JSON.
	EnvSecretsBackendKwargs = "AIRFLOW__SECRETS__BACKEND_KWARGS"
	// EnvNoProgress disables the sensor progress spinner.
	EnvNoProgress = "EXECUTE_ANY_NO_PROGRESS"
)

// Settings are the process-wide knobs read once at startup.
type Settings struct {
	LogLevel             string `validate:"oneof=trace debug info warn error"`
	LogFormat            string `validate:"oneof=console json"`
	SecretsBackend       string
	SecretsBackendKwargs map[string]any
	NoProgress           bool
}

// HumanReadable reports whether logs should use the console writer.
func (s Settings) HumanReadable() bool {
	return s.LogFormat != "json"
}

// FromEnv loads Settings from the environment. Callers apply their overrides
// and then call Validate.
func FromEnv() (Settings, error) {
	s := Settings{
		LogLevel:       strings.ToLower(String(EnvLogLevel, "info")),
		LogFormat:      strings.ToLower(String(EnvLogFormat, "console")),
		SecretsBackend: strings.TrimSpace(String(EnvSecretsBackend, "")),
	}
	s.SecretsBackendKwargs = backendKwargs(String(EnvSecretsBackendKwargs, "{}"))

	noProgress, err := Bool(EnvNoProgress, false)
	if err != nil {
		return Settings{}, err
	}
	s.NoProgress = noProgress
	return s, nil
}

// Validate checks enumerated fields.
func (s Settings) Validate() error {
	return validatorInstance().Struct(s)
}

// backendKwargs decodes the kwargs document. A malformed document is treated
// as empty rather than failing startup.
func backendKwargs(raw string) map[string]any {
	kwargs := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return kwargs
	}
	if err := json.Unmarshal([]byte(raw), &kwargs); err != nil || kwargs == nil {
		return map[string]any{}
	}
	return kwargs
}

var settingsValidator = validator.New()

func validatorInstance() *validator.Validate {
	return settingsValidator
}
