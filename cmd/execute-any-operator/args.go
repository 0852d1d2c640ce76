package main

import (
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/config"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
)

// argSet copies the flags a user actually set into operator arguments, so
// the operator's own defaults apply to everything else.
type argSet struct {
	cmd  *cobra.Command
	args operator.Args
	err  error
}

func newArgSet(cmd *cobra.Command) *argSet {
	return &argSet{cmd: cmd, args: operator.Args{}}
}

func (s *argSet) set(key string, value any) {
	s.args[key] = value
}

func (s *argSet) changed(flag string) bool {
	return s.err == nil && s.cmd.Flags().Changed(flag)
}

func (s *argSet) keep(key string, value any, err error) {
	if err != nil {
		s.err = err
		return
	}
	s.args[key] = value
}

func (s *argSet) str(flag, key string) {
	if s.changed(flag) {
		v, err := s.cmd.Flags().GetString(flag)
		s.keep(key, v, err)
	}
}

func (s *argSet) boolean(flag, key string) {
	if s.changed(flag) {
		v, err := s.cmd.Flags().GetBool(flag)
		s.keep(key, v, err)
	}
}

func (s *argSet) integer(flag, key string) {
	if s.changed(flag) {
		v, err := s.cmd.Flags().GetInt(flag)
		s.keep(key, v, err)
	}
}

func (s *argSet) float(flag, key string) {
	if s.changed(flag) {
		v, err := s.cmd.Flags().GetFloat64(flag)
		s.keep(key, v, err)
	}
}

// list keeps a repeatable flag as a list of strings.
func (s *argSet) list(flag, key string) {
	if s.changed(flag) {
		v, err := s.cmd.Flags().GetStringArray(flag)
		s.keep(key, v, err)
	}
}

// slice keeps a comma-separated flag as a list of strings.
func (s *argSet) slice(flag, key string) {
	if s.changed(flag) {
		v, err := s.cmd.Flags().GetStringSlice(flag)
		s.keep(key, v, err)
	}
}

// values keeps a repeatable flag as a list of typed values.
func (s *argSet) values(flag, key string) {
	if !s.changed(flag) {
		return
	}
	raw, err := s.cmd.Flags().GetStringArray(flag)
	if err != nil {
		s.err = err
		return
	}
	out := make([]any, 0, len(raw))
	for _, r := range raw {
		out = append(out, operator.ParseValue(r))
	}
	s.args[key] = out
}

// value keeps a single flag as a typed value, so flow syntax such as
// {timeout: 5} becomes a map.
func (s *argSet) value(flag, key string) {
	if s.changed(flag) {
		v, err := s.cmd.Flags().GetString(flag)
		s.keep(key, operator.ParseValue(v), err)
	}
}

// assignments keeps a repeatable KEY=VALUE flag as a string map.
func (s *argSet) assignments(flag, key string) {
	if !s.changed(flag) {
		return
	}
	raw, err := s.cmd.Flags().GetStringArray(flag)
	if err != nil {
		s.err = err
		return
	}
	pairs, err := config.ParseAssignments(raw)
	s.keep(key, pairs, err)
}

// typedAssignments keeps a repeatable KEY=VALUE flag as a map of typed values.
func (s *argSet) typedAssignments(flag, key string) {
	if !s.changed(flag) {
		return
	}
	raw, err := s.cmd.Flags().GetStringArray(flag)
	if err != nil {
		s.err = err
		return
	}
	pairs, err := config.ParseAssignments(raw)
	if err != nil {
		s.err = err
		return
	}
	out := make(map[string]any, len(pairs))
	for k, v := range pairs {
		out[k] = operator.ParseValue(v)
	}
	s.args[key] = out
}

func (s *argSet) result() (operator.Args, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.args, nil
}

func addTaskFlags(cmd *cobra.Command) {
	cmd.Flags().String("task-id", "", "Task id (default execute_<Operator>)")
	cmd.Flags().String("start-date", "", "Logical start date, RFC3339 or YYYY-MM-DD (default now)")
	cmd.Flags().String("owner", "", "Task owner")
}

func (s *argSet) task() {
	s.str("task-id", "task_id")
	s.str("start-date", "start_date")
	s.str("owner", "owner")
}

func addSensorFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("poke-interval", 60, "Time in seconds to wait between pokes")
	cmd.Flags().Float64("timeout", 60*60*24*7, "Time in seconds before the sensor gives up")
	cmd.Flags().Bool("exponential-backoff", false, "Wait progressively longer between pokes")
	cmd.Flags().Bool("soft-fail", false, "Mark the task skipped instead of failed on timeout")
	cmd.Flags().String("mode", "poke", "Sensor mode: poke or reschedule")
}

func (s *argSet) sensor() {
	s.float("poke-interval", "poke_interval")
	s.float("timeout", "timeout")
	s.boolean("exponential-backoff", "exponential_backoff")
	s.boolean("soft-fail", "soft_fail")
	s.str("mode", "mode")
}
