package operator

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

// Factory constructs an operator from its arguments.
type Factory func(args Args, deps Deps) (Operator, error)

// Registration binds a class name and its module-notation aliases to a factory.
type Registration struct {
	ClassName   string
	Aliases     []string
	Description string
	New         Factory

	// TargetArg names the argument a sensor waits on. It is empty for
	// operators that are not sensors.
	TargetArg string
}

// IsSensor reports whether the registered operator polls for a condition.
func (r Registration) IsSensor() bool { return r.TargetArg != "" }

// Registry is the allow-list of operator types. Lookups fail closed: a
// reference that was not registered never resolves.
type Registry struct {
	mu    sync.RWMutex
	byRef map[string]*Registration
	all   []*Registration
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{byRef: make(map[string]*Registration)}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the registry operator packages add themselves to.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds reg to the default registry.
func Register(reg Registration) error {
	return defaultRegistry.Register(reg)
}

// Register adds a registration under its class name and every alias.
func (r *Registry) Register(reg Registration) error {
	if reg.ClassName == "" {
		return execerrors.NewPluginError("", fmt.Errorf("class name is required"))
	}
	if reg.New == nil {
		return execerrors.NewPluginError(reg.ClassName, fmt.Errorf("factory is nil"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	refs := append([]string{reg.ClassName}, reg.Aliases...)
	for _, ref := range refs {
		if _, exists := r.byRef[ref]; exists {
			return execerrors.NewPluginError(reg.ClassName, fmt.Errorf("reference %q already registered", ref))
		}
	}

	stored := reg
	for _, ref := range refs {
		r.byRef[ref] = &stored
	}
	r.all = append(r.all, &stored)
	return nil
}

// Resolve maps a reference to its registration. A reference that is not a
// registered short name must be in module:Class notation.
func (r *Registry) Resolve(ref string) (*Registration, error) {
	ref = strings.TrimSpace(ref)

	r.mu.RLock()
	reg, ok := r.byRef[ref]
	r.mu.RUnlock()
	if ok {
		return reg, nil
	}

	if _, _, err := ParseReference(ref); err != nil {
		return nil, err
	}
	return nil, execerrors.NewConfigError(ref, "unsupported operator", nil)
}

// List returns the registrations ordered by class name.
func (r *Registry) List() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.all))
	for _, reg := range r.all {
		out = append(out, *reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassName < out[j].ClassName })
	return out
}

// ParseReference splits module:Class notation.
func ParseReference(ref string) (module, class string, err error) {
	module, class, ok := strings.Cut(ref, ":")
	if !ok || strings.TrimSpace(module) == "" || strings.TrimSpace(class) == "" {
		return "", "", execerrors.NewConfigError(ref, fmt.Sprintf("operator string %s improperly formatted, must be in module notation (my.module:OperatorClass)", ref), nil)
	}
	return module, class, nil
}

// OperatorName is the class part of a reference, or the reference itself for
// short names. It feeds the default task id.
func OperatorName(ref string) string {
	ref = strings.TrimSpace(ref)
	if _, class, ok := strings.Cut(ref, ":"); ok {
		return class
	}
	return ref
}
