// Package xcom keeps task results in memory for the lifetime of the process,
// standing in for the metadata database that normally backs XCom.
package xcom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
)

// ReturnValueKey is the key an operator's return value is pushed under.
const ReturnValueKey = "return_value"

// Ref identifies a single stored entry.
type Ref struct {
	DagID  string
	TaskID string
	Key    string
}

// Store is a nested dag id -> task id -> key -> JSON value mapping.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string]map[string]json.RawMessage
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]map[string]map[string]json.RawMessage)}
}

// Default is the process-wide store used when a runner is not given its own.
var Default = NewStore()

// Set serializes value and stores it, replacing any previous value at the same
// coordinates while leaving sibling entries untouched.
func (s *Store) Set(key string, value any, taskID, dagID string) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("serialize xcom %s/%s/%s: %w", dagID, taskID, key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, ok := s.data[dagID]
	if !ok {
		tasks = make(map[string]map[string]json.RawMessage)
		s.data[dagID] = tasks
	}
	keys, ok := tasks[taskID]
	if !ok {
		keys = make(map[string]json.RawMessage)
		tasks[taskID] = keys
	}
	keys[key] = encoded
	return nil
}

// GetOne returns the value stored at the coordinates. The boolean is false
// when nothing has been written there.
func (s *Store) GetOne(key, taskID, dagID string) (any, bool) {
	values := s.GetMany(key, []string{taskID}, []string{dagID})
	if len(values) == 0 {
		return nil, false
	}
	return values[0], true
}

// GetMany returns every value found for key across the cartesian product of
// dagIDs and taskIDs. Missing entries are skipped. Ordering follows the
// argument order, dag ids outermost.
func (s *Store) GetMany(key string, taskIDs, dagIDs []string) []any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []any
	for _, dagID := range dagIDs {
		for _, taskID := range taskIDs {
			raw, ok := s.data[dagID][taskID][key]
			if !ok {
				continue
			}
			value, err := decode(raw)
			if err != nil {
				continue
			}
			results = append(results, value)
		}
	}
	return results
}

// Delete removes the referenced entries. Missing entries are ignored.
func (s *Store) Delete(refs ...Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range refs {
		if keys, ok := s.data[ref.DagID][ref.TaskID]; ok {
			delete(keys, ref.Key)
		}
	}
}

// Clear drops every key recorded for one task. Missing tasks are ignored.
func (s *Store) Clear(dagID, taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tasks, ok := s.data[dagID]; ok {
		delete(tasks, taskID)
	}
}

// Snapshot returns a decoded deep copy of the whole store.
func (s *Store) Snapshot() map[string]map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]map[string]any, len(s.data))
	for dagID, tasks := range s.data {
		outTasks := make(map[string]map[string]any, len(tasks))
		for taskID, keys := range tasks {
			outKeys := make(map[string]any, len(keys))
			for key, raw := range keys {
				if value, err := decode(raw); err == nil {
					outKeys[key] = value
				}
			}
			outTasks[taskID] = outKeys
		}
		out[dagID] = outTasks
	}
	return out
}

// decode reads a stored value back. Whole numbers that fit come back as int64
// so integers survive the round trip; other numbers become float64.
func decode(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	return normalize(value), nil
}

func normalize(value any) any {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]any:
		for key, elem := range v {
			v[key] = normalize(elem)
		}
		return v
	case []any:
		for i, elem := range v {
			v[i] = normalize(elem)
		}
		return v
	default:
		return value
	}
}
