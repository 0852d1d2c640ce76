package secrets

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LocalFilesystemBackend serves connections and variables from files. Both
// files are YAML documents (JSON is accepted as a YAML subset). Connection
// entries are either URI strings or connection objects.
type LocalFilesystemBackend struct {
	connections map[string]Connection
	variables   map[string]string
}

// NewLocalFilesystemBackend loads the given files. Empty paths are skipped.
func NewLocalFilesystemBackend(connectionsPath, variablesPath string) (*LocalFilesystemBackend, error) {
	b := &LocalFilesystemBackend{
		connections: map[string]Connection{},
		variables:   map[string]string{},
	}

	if connectionsPath != "" {
		if err := b.loadConnections(connectionsPath); err != nil {
			return nil, err
		}
	}
	if variablesPath != "" {
		if err := b.loadVariables(variablesPath); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func newLocalFromKwargs(kwargs map[string]any) (Backend, error) {
	connectionsPath, _ := kwargs["connections_file_path"].(string)
	variablesPath, _ := kwargs["variables_file_path"].(string)
	return NewLocalFilesystemBackend(connectionsPath, variablesPath)
}

func (b *LocalFilesystemBackend) loadConnections(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read connections file: %w", err)
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse connections file %s: %w", path, err)
	}

	for id, node := range raw {
		conn, err := decodeConnectionNode(id, &node)
		if err != nil {
			return fmt.Errorf("connections file %s: %w", path, err)
		}
		b.connections[strings.ToLower(id)] = *conn
	}
	return nil
}

func decodeConnectionNode(id string, node *yaml.Node) (*Connection, error) {
	if node.Kind == yaml.ScalarNode {
		return ParseConnection(id, node.Value)
	}

	var conn Connection
	if err := node.Decode(&conn); err != nil {
		return nil, fmt.Errorf("decode connection %s: %w", id, err)
	}
	conn.ConnID = id
	return &conn, nil
}

func (b *LocalFilesystemBackend) loadVariables(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read variables file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse variables file %s: %w", path, err)
	}
	for key, value := range raw {
		b.variables[key] = fmt.Sprint(value)
	}
	return nil
}

// GetConnections implements Backend.
func (b *LocalFilesystemBackend) GetConnections(connID string) ([]Connection, error) {
	if connID != "" && !IsWildcard(connID) {
		conn, ok := b.connections[strings.ToLower(connID)]
		if !ok {
			return nil, nil
		}
		return []Connection{conn}, nil
	}

	ids := make([]string, 0, len(b.connections))
	for id := range b.connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if connID == "" {
		out := make([]Connection, 0, len(ids))
		for _, id := range ids {
			out = append(out, b.connections[id])
		}
		return out, nil
	}

	re, err := WildcardRegexp(strings.ToLower(connID))
	if err != nil {
		return nil, fmt.Errorf("compile connection pattern %q: %w", connID, err)
	}
	var out []Connection
	for _, id := range ids {
		if re.MatchString(id) {
			out = append(out, b.connections[id])
		}
	}
	return out, nil
}

// GetVariable implements VariableBackend.
func (b *LocalFilesystemBackend) GetVariable(key string) (string, bool) {
	value, ok := b.variables[key]
	return value, ok
}
