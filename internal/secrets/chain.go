package secrets

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/logger"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

// BackendFactory builds a backend from its constructor keyword arguments.
type BackendFactory func(kwargs map[string]any) (Backend, error)

var backendFactories = map[string]BackendFactory{
	"local_filesystem": newLocalFromKwargs,
	"airflow.secrets.local_filesystem.LocalFilesystemBackend": newLocalFromKwargs,
}

// BackendNames lists the names accepted by NewBackend.
func BackendNames() []string {
	names := make([]string, 0, len(backendFactories))
	for name := range backendFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBackend constructs a registered backend by name.
func NewBackend(name string, kwargs map[string]any) (Backend, error) {
	factory, ok := backendFactories[name]
	if !ok {
		return nil, execerrors.NewConfigError(name, fmt.Sprintf("unknown secrets backend (known: %s)", strings.Join(BackendNames(), ", ")), nil)
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return factory(kwargs)
}

// VariableBackend is implemented by backends that also serve variables.
type VariableBackend interface {
	GetVariable(key string) (string, bool)
}

// Chain consults backends in order and returns the first non-empty answer.
// A failing backend is logged and skipped.
type Chain struct {
	backends []Backend
	log      *logger.Logger
}

// NewChain builds a chain over the given backends.
func NewChain(log *logger.Logger, backends ...Backend) *Chain {
	return &Chain{backends: backends, log: log}
}

// NewDefaultChain puts the named custom backend, if any, ahead of the
// environment backend.
func NewDefaultChain(log *logger.Logger, customName string, customKwargs map[string]any) (*Chain, error) {
	var backends []Backend
	if customName != "" {
		custom, err := NewBackend(customName, customKwargs)
		if err != nil {
			return nil, err
		}
		backends = append(backends, custom)
	}
	env := NewEnvironmentBackend()
	env.Log = log
	backends = append(backends, env)
	return NewChain(log, backends...), nil
}

// GetConnections implements Backend and ConnectionLookup.
func (c *Chain) GetConnections(connID string) ([]Connection, error) {
	for _, backend := range c.backends {
		conns, err := backend.GetConnections(connID)
		if err != nil {
			c.log.With("backend", fmt.Sprintf("%T", backend)).Error(err, "unable to retrieve connection from secrets backend, checking subsequent backend")
			continue
		}
		if len(conns) > 0 {
			return conns, nil
		}
	}
	return nil, nil
}

// GetConnection returns the first connection for connID.
func (c *Chain) GetConnection(connID string) (*Connection, error) {
	conns, err := c.GetConnections(connID)
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}
	conn := conns[0]
	return &conn, nil
}

// GetVariable consults variable-capable backends before the environment.
func (c *Chain) GetVariable(key string) (string, bool) {
	for _, backend := range c.backends {
		if vb, ok := backend.(VariableBackend); ok {
			if value, found := vb.GetVariable(key); found {
				return value, true
			}
		}
	}
	return EnvVariables{}.Get(key)
}

// Get makes Chain usable as a VariableLookup.
func (c *Chain) Get(key string) (string, bool) {
	return c.GetVariable(key)
}

// VariableLookup resolves configuration variables.
type VariableLookup interface {
	Get(key string) (string, bool)
}

// EnvVariables resolves a variable from the environment variable named by
// upper-casing its key.
type EnvVariables struct{}

// Get implements VariableLookup.
func (EnvVariables) Get(key string) (string, bool) {
	return os.LookupEnv(strings.ToUpper(key))
}
