// Package operator defines the contract every runnable operator satisfies,
// the allow-list registry that resolves operator references, and the shared
// plumbing (argument decoding, sensor poke loop) operators are built from.
package operator

import (
	"context"
	"time"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/logger"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/secrets"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/taskcontext"
)

// Operator is a unit of work with the pre/execute/post lifecycle.
//
// Execute receives the fabricated context and returns the task's result,
// which the runner pushes to XCom when DoXComPush is set. Errors are returned
// untranslated so callers can match sentinels such as ErrSensorTimeout.
type Operator interface {
	taskcontext.Task
	Base() *BaseOperator
	PreExecute(ctx context.Context, tctx taskcontext.Context) error
	Execute(ctx context.Context, tctx taskcontext.Context) (any, error)
	PostExecute(ctx context.Context, tctx taskcontext.Context, result any) error
}

// Templated is implemented by operators with fields rendered against the
// context before Execute.
type Templated interface {
	RenderTemplates(render func(string) (string, error)) error
}

// Deps are the collaborators injected into every operator at construction.
type Deps struct {
	Connections secrets.ConnectionLookup
	Variables   secrets.VariableLookup
	Logger      *logger.Logger
	StartDate   time.Time
	Notifier    PokeNotifier
}

// BaseArgs are the keyword arguments every operator understands.
type BaseArgs struct {
	TaskID     string         `yaml:"task_id" validate:"required"`
	Owner      string         `yaml:"owner"`
	DoXComPush *bool          `yaml:"do_xcom_push"`
	Retries    int            `yaml:"retries" validate:"min=0"`
	Params     map[string]any `yaml:"params"`
}

// BaseOperator carries the fields shared by all operators and supplies no-op
// lifecycle hooks. Operators embed it.
type BaseOperator struct {
	ID         string
	Owner      string
	StartDate  time.Time
	DoXComPush bool
	Retries    int
	Params     map[string]any

	Log         *logger.Logger
	Connections secrets.ConnectionLookup
	Variables   secrets.VariableLookup
	Notifier    PokeNotifier
}

// NewBase decodes the base arguments. pushDefault is used when the caller did
// not set do_xcom_push.
func NewBase(args Args, deps Deps, pushDefault bool) (BaseOperator, error) {
	var base BaseArgs
	if err := args.Decode(&base); err != nil {
		return BaseOperator{}, err
	}

	push := pushDefault
	if base.DoXComPush != nil {
		push = *base.DoXComPush
	}
	owner := base.Owner
	if owner == "" {
		owner = "airflow"
	}

	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	variables := deps.Variables
	if variables == nil {
		variables = secrets.EnvVariables{}
	}

	return BaseOperator{
		ID:          base.TaskID,
		Owner:       owner,
		StartDate:   deps.StartDate,
		DoXComPush:  push,
		Retries:     base.Retries,
		Params:      base.Params,
		Log:         log.With("task_id", base.TaskID),
		Connections: deps.Connections,
		Variables:   variables,
		Notifier:    deps.Notifier,
	}, nil
}

// TaskID implements taskcontext.Task.
func (b *BaseOperator) TaskID() string { return b.ID }

// Base exposes the shared fields.
func (b *BaseOperator) Base() *BaseOperator { return b }

// PreExecute does nothing by default.
func (b *BaseOperator) PreExecute(context.Context, taskcontext.Context) error { return nil }

// PostExecute does nothing by default.
func (b *BaseOperator) PostExecute(context.Context, taskcontext.Context, any) error { return nil }

// Connection resolves connID through the injected lookup.
func (b *BaseOperator) Connection(connID string) (*secrets.Connection, error) {
	if b.Connections == nil {
		return nil, secrets.ErrConnectionNotFound
	}
	return b.Connections.GetConnection(connID)
}

// RenderAll renders each pointed-to string in place.
func RenderAll(render func(string) (string, error), fields ...*string) error {
	for _, field := range fields {
		if field == nil {
			continue
		}
		out, err := render(*field)
		if err != nil {
			return err
		}
		*field = out
	}
	return nil
}
