// Package secrets resolves connections and variables without a metadata
// database. Lookups go through Backend strategies so callers never depend on
// where a connection string actually lives.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/logger"
)

// ConnEnvPrefix prefixes environment variables that hold connection strings.
const ConnEnvPrefix = "AIRFLOW_CONN_"

// ErrConnectionNotFound is returned when no backend knows a connection id.
var ErrConnectionNotFound = errors.New("connection not found")

// Backend resolves connection ids. An empty id lists every connection the
// backend knows; an id containing a wildcard returns every match.
type Backend interface {
	GetConnections(connID string) ([]Connection, error)
}

// ConnectionLookup is what operators depend on to obtain connections.
type ConnectionLookup interface {
	GetConnection(connID string) (*Connection, error)
	GetConnections(connID string) ([]Connection, error)
}

// IsWildcard reports whether connID should be treated as a pattern.
func IsWildcard(connID string) bool {
	return strings.ContainsAny(connID, "%*")
}

// WildcardRegexp translates a SQL-style pattern into an anchored regular
// expression: '%' and '*' match any run of characters, '_' matches exactly one
// character, everything else is literal.
func WildcardRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%', '*':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// EnvironmentBackend reads connections from AIRFLOW_CONN_<ID> variables.
type EnvironmentBackend struct {
	// Environ defaults to os.Environ.
	Environ func() []string
	// Log receives entries skipped by pattern lookups because they do not parse.
	Log *logger.Logger
}

// NewEnvironmentBackend returns a backend over the process environment.
func NewEnvironmentBackend() *EnvironmentBackend {
	return &EnvironmentBackend{Environ: os.Environ}
}

// GetConnections implements Backend. An exact id that does not parse is an
// error; pattern lookups skip such entries and return the rest.
func (b *EnvironmentBackend) GetConnections(connID string) ([]Connection, error) {
	if connID != "" && !IsWildcard(connID) {
		value, ok := b.lookup(ConnEnvPrefix + strings.ToUpper(connID))
		if !ok {
			return nil, nil
		}
		conn, err := ParseConnection(connID, value)
		if err != nil {
			return nil, err
		}
		return []Connection{*conn}, nil
	}

	var filter *regexp.Regexp
	if connID != "" {
		re, err := WildcardRegexp(ConnEnvPrefix + strings.ToUpper(connID))
		if err != nil {
			return nil, fmt.Errorf("compile connection pattern %q: %w", connID, err)
		}
		filter = re
	}

	var conns []Connection
	for _, name := range b.names() {
		if filter != nil && !filter.MatchString(name) {
			continue
		}
		value, _ := b.lookup(name)
		id := strings.ToLower(strings.TrimPrefix(name, ConnEnvPrefix))
		conn, err := ParseConnection(id, value)
		if err != nil {
			b.Log.With("conn_id", id).Warn(fmt.Sprintf("skipping %s: %v", name, err))
			continue
		}
		conns = append(conns, *conn)
	}
	return conns, nil
}

func (b *EnvironmentBackend) environ() []string {
	if b.Environ == nil {
		return os.Environ()
	}
	return b.Environ()
}

func (b *EnvironmentBackend) lookup(name string) (string, bool) {
	for _, kv := range b.environ() {
		key, value, ok := strings.Cut(kv, "=")
		if ok && key == name {
			return value, true
		}
	}
	return "", false
}

// names lists AIRFLOW_CONN_ variables in sorted order so results are stable.
func (b *EnvironmentBackend) names() []string {
	var names []string
	for _, kv := range b.environ() {
		key, _, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(key, ConnEnvPrefix) && len(key) > len(ConnEnvPrefix) {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return names
}
