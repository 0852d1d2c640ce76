// Package runner wraps exactly one operator with the context and result
// store it would have been given by a scheduler, so it can run standalone.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/logger"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/secrets"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/taskcontext"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/xcom"
	execerrors "github.com/alexisbeaulieu97/execute-any-operator/pkg/errors"
)

// Runner owns one operator instance and the context fabricated for it.
type Runner struct {
	registration *operator.Registration
	op           operator.Operator
	tctx         taskcontext.Context
	store        *xcom.Store
	log          *logger.Logger
}

type settings struct {
	store    *xcom.Store
	secrets  *secrets.Chain
	log      *logger.Logger
	now      func() time.Time
	registry *operator.Registry
	notifier operator.PokeNotifier
}

// Option configures a Runner.
type Option func(*settings)

// WithStore replaces the process-wide result store.
func WithStore(store *xcom.Store) Option {
	return func(s *settings) {
		s.store = store
	}
}

// WithSecrets injects the connection and variable lookup chain.
func WithSecrets(chain *secrets.Chain) Option {
	return func(s *settings) {
		s.secrets = chain
	}
}

// WithLogger injects the logger handed to the operator.
func WithLogger(log *logger.Logger) Option {
	return func(s *settings) {
		s.log = log
	}
}

// WithClock overrides the clock used for the default start date.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// WithRegistry resolves operators against reg instead of the default registry.
func WithRegistry(reg *operator.Registry) Option {
	return func(s *settings) {
		s.registry = reg
	}
}

// WithNotifier receives sensor poke progress.
func WithNotifier(notifier operator.PokeNotifier) Option {
	return func(s *settings) {
		s.notifier = notifier
	}
}

// New resolves ref, constructs the operator from a copy of args and
// fabricates its context. Nothing is constructed when ref is rejected.
func New(ref string, args operator.Args, opts ...Option) (*Runner, error) {
	s := settings{
		store:    xcom.Default,
		log:      logger.Nop(),
		now:      time.Now,
		registry: operator.DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.secrets == nil {
		s.secrets = secrets.NewChain(s.log, secrets.NewEnvironmentBackend())
	}

	registration, err := s.registry.Resolve(ref)
	if err != nil {
		return nil, err
	}

	args = args.Clone()
	if id, _ := args["task_id"].(string); strings.TrimSpace(id) == "" {
		args["task_id"] = "execute_" + operator.OperatorName(ref)
	}
	start, err := startDate(args["start_date"], s.now)
	if err != nil {
		return nil, err
	}
	args["start_date"] = start

	dag := taskcontext.NewDummyDAG(s.now())
	op, err := registration.New(args, operator.Deps{
		Connections: s.secrets,
		Variables:   s.secrets,
		Logger:      s.log,
		StartDate:   start,
		Notifier:    s.notifier,
	})
	if err != nil {
		return nil, err
	}

	base := op.Base()
	tctx := taskcontext.Build(taskcontext.BuildInput{
		DAG:    dag,
		Task:   op,
		Start:  start,
		Store:  s.store,
		Params: base.Params,
	})
	ti := tctx.TaskInstance()
	base.Log = base.Log.WithFields(map[string]any{
		"dag_id":         ti.DagID,
		"run_id":         ti.RunID,
		"correlation_id": ti.CorrelationID,
	})

	return &Runner{
		registration: registration,
		op:           op,
		tctx:         tctx,
		store:        s.store,
		log:          base.Log,
	}, nil
}

// startDate accepts a time.Time, an RFC3339 timestamp or a YYYY-MM-DD date,
// defaulting to now.
func startDate(raw any, now func() time.Time) (time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return now(), nil
	case time.Time:
		return v, nil
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, nil
		}
		if t, err := time.ParseInLocation(time.DateOnly, v, time.Local); err == nil {
			return t, nil
		}
		return time.Time{}, execerrors.NewValidationError("start_date", fmt.Sprintf("cannot parse %q as a date", v), nil)
	default:
		return time.Time{}, execerrors.NewValidationError("start_date", fmt.Sprintf("unsupported type %T", raw), nil)
	}
}

// Registration is the allow-list entry the operator was resolved from.
func (r *Runner) Registration() *operator.Registration { return r.registration }

// Operator is the wrapped operator.
func (r *Runner) Operator() operator.Operator { return r.op }

// Context is the fabricated execution context.
func (r *Runner) Context() taskcontext.Context { return r.tctx }

// Store is the result store the task instance writes to.
func (r *Runner) Store() *xcom.Store { return r.store }

// PreExecute runs the operator's pre-execute hook.
func (r *Runner) PreExecute(ctx context.Context) error {
	return r.op.PreExecute(ctx, r.tctx)
}

// Execute renders templated fields and runs the operator. Operator errors are
// returned unchanged. A non-nil result is pushed under return_value when the
// operator pushes to XCom.
func (r *Runner) Execute(ctx context.Context) (any, error) {
	if templated, ok := r.op.(operator.Templated); ok {
		if err := templated.RenderTemplates(r.tctx.Renderer()); err != nil {
			return nil, execerrors.NewExecutionError(r.op.TaskID(), err)
		}
	}

	r.log.Infof("executing %s", r.registration.ClassName)
	result, err := r.op.Execute(ctx, r.tctx)
	if err != nil {
		return nil, err
	}

	if r.op.Base().DoXComPush && result != nil {
		if err := r.tctx.TaskInstance().XComPush(xcom.ReturnValueKey, result); err != nil {
			return nil, execerrors.NewExecutionError(r.op.TaskID(), err)
		}
	}
	return result, nil
}

// PostExecute runs the operator's post-execute hook.
func (r *Runner) PostExecute(ctx context.Context, result any) error {
	return r.op.PostExecute(ctx, r.tctx, result)
}
