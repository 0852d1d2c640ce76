package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/config"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/logger"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/runner"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/secrets"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/tui"
)

// app carries what every operator command needs once the root command has
// exported --env-var values and read the environment.
type app struct {
	settings config.Settings
	log      *logger.Logger
	secrets  *secrets.Chain
	progress bool
	extra    []runner.Option
}

func (a *app) load(cmd *cobra.Command, flags *rootFlags) error {
	vars, err := config.ParseAssignments(flags.envVars)
	if err != nil {
		return newCommandError("read --env-var", err, "Pass variables as --env-var KEY=VALUE.")
	}
	if err := config.ExportVariables(vars); err != nil {
		return newCommandError("export --env-var", err, "")
	}

	settings, err := config.FromEnv()
	if err != nil {
		return newCommandError("load settings", err, fmt.Sprintf("Check %s.", config.EnvNoProgress))
	}
	if flags.logFormat != "" {
		settings.LogFormat = strings.ToLower(flags.logFormat)
	}
	if flags.verbose {
		settings.LogLevel = "debug"
	}
	if flags.noProgress {
		settings.NoProgress = true
	}
	if err := settings.Validate(); err != nil {
		return newCommandError("load settings", err, fmt.Sprintf("--log-format and %s accept console or json; -v and %s accept trace, debug, info, warn or error.", config.EnvLogFormat, config.EnvLogLevel))
	}

	log, err := logger.New(logger.Options{
		Level:         settings.LogLevel,
		HumanReadable: settings.HumanReadable(),
		Writer:        cmd.ErrOrStderr(),
	})
	if err != nil {
		return newCommandError("create logger", err, "")
	}

	chain, err := secrets.NewDefaultChain(log, settings.SecretsBackend, settings.SecretsBackendKwargs)
	if err != nil {
		return newCommandError("configure secrets backend", err, fmt.Sprintf("Supported %s values: %s.", config.EnvSecretsBackend, strings.Join(secrets.BackendNames(), ", ")))
	}

	a.settings = settings
	a.log = log
	a.secrets = chain
	a.progress = !settings.NoProgress && tui.Interactive(cmd.ErrOrStderr())
	return nil
}

// invocation is one operator run requested by a command.
type invocation struct {
	ref        string
	args       operator.Args
	preExecute bool
	dumpXCom   bool
}

func (a *app) execute(cmd *cobra.Command, inv invocation) error {
	out := cmd.OutOrStdout()

	reg, err := operator.DefaultRegistry().Resolve(inv.ref)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, tui.Title("Executing "+reg.ClassName))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	target := ""
	if reg.IsSensor() {
		target = fmt.Sprint(inv.args[reg.TargetArg])
	}

	opts := []runner.Option{runner.WithLogger(a.log), runner.WithSecrets(a.secrets)}
	if reg.IsSensor() && a.progress {
		notifier := tui.Start(tui.NewModel(reg.ClassName, target), cancel, tea.WithOutput(cmd.ErrOrStderr()))
		defer func() {
			_ = notifier.Stop()
		}()
		opts = append(opts, runner.WithNotifier(notifier))
	}
	opts = append(opts, a.extra...)

	r, err := runner.New(inv.ref, inv.args, opts...)
	if err != nil {
		return err
	}
	if inv.preExecute {
		if err := r.PreExecute(ctx); err != nil {
			return err
		}
	}
	result, err := r.Execute(ctx)
	if err == nil {
		err = r.PostExecute(ctx, result)
	}
	return report(out, reg, r, target, result, err, inv.dumpXCom)
}

// report prints the outcome. A sensor whose condition was never met and a
// skipped task are expected outcomes, not failures.
func report(out io.Writer, reg *operator.Registration, r *runner.Runner, target string, result any, err error, dumpXCom bool) error {
	taskID := r.Operator().TaskID()
	switch {
	case err == nil:
	case reg.IsSensor() && errors.Is(err, operator.ErrSensorTimeout):
		fmt.Fprintln(out, tui.Failure(fmt.Sprintf("File '%s' not found", target)))
		return nil
	case errors.Is(err, operator.ErrTaskSkipped):
		fmt.Fprintln(out, tui.Muted(fmt.Sprintf("Task %s skipped", taskID)))
		return nil
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("task %s interrupted: %w", taskID, err)
	default:
		return err
	}

	if reg.IsSensor() {
		fmt.Fprintln(out, tui.Success(fmt.Sprintf("File '%s' exists", target)))
	} else {
		fmt.Fprintln(out, tui.Success(fmt.Sprintf("Task %s succeeded", taskID)))
		if result != nil {
			fmt.Fprintf(out, "Returned: %s\n", formatResult(result))
		}
	}

	if dumpXCom {
		fmt.Fprintln(out, tui.Muted("======= XCOM DATA ======="))
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(r.Store().Snapshot())
	}
	return nil
}

func formatResult(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprint(result)
	}
	return string(encoded)
}

type commandError struct {
	operation  string
	cause      error
	suggestion string
}

func newCommandError(operation string, cause error, suggestion string) error {
	return &commandError{operation: operation, cause: cause, suggestion: suggestion}
}

func (e *commandError) Error() string {
	msg := fmt.Sprintf("failed to %s: %v", e.operation, e.cause)
	if e.suggestion != "" {
		msg += "\n\nSuggestion: " + e.suggestion
	}
	return msg
}

func (e *commandError) Unwrap() error {
	return e.cause
}
