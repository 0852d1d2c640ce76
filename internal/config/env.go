package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// String returns the value of key or def when unset.
func String(key string, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// Bool parses key as a boolean, returning def when unset.
func Bool(key string, def bool) (bool, error) {
	if v, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("parse %s: %w", key, err)
		}
		return b, nil
	}
	return def, nil
}

// ExportVariables writes each pair into the process environment with the key
// upper-cased, which is how both variable and connection lookups find them.
func ExportVariables(vars map[string]string) error {
	for key, value := range vars {
		if err := os.Setenv(strings.ToUpper(key), value); err != nil {
			return fmt.Errorf("export %s: %w", key, err)
		}
	}
	return nil
}

// ParseAssignments splits KEY=VALUE pairs. Only the first '=' separates key
// from value so values may themselves contain '='.
func ParseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q: expected KEY=VALUE", pair)
		}
		out[key] = value
	}
	return out, nil
}
