package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
)

func TestArgSetCopiesOnlyChangedFlags(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{Use: "test"}
	addTaskFlags(cmd)
	addSensorFlags(cmd)
	cmd.Flags().StringArray("env", nil, "")
	cmd.Flags().StringArray("kw", nil, "")
	cmd.Flags().StringArray("pos", nil, "")
	cmd.Flags().StringSlice("exts", nil, "")
	cmd.Flags().String("opts", "", "")
	cmd.Flags().Bool("unused", true, "")

	require.NoError(t, cmd.ParseFlags([]string{
		"--task-id", "t1",
		"--poke-interval", "5",
		"--soft-fail",
		"--env", "A=1", "--env", "B=x=y",
		"--kw", "n=3", "--kw", "flag=false",
		"--pos", "1", "--pos", "[a, b]",
		"--exts", ".tmp,.part",
		"--opts", "{timeout: 5}",
	}))

	s := newArgSet(cmd)
	s.task()
	s.sensor()
	s.assignments("env", "env")
	s.typedAssignments("kw", "kwargs")
	s.values("pos", "positional")
	s.slice("exts", "ignored_ext")
	s.value("opts", "extra_options")
	s.boolean("unused", "unused")

	args, err := s.result()
	require.NoError(t, err)
	require.Equal(t, operator.Args{
		"task_id":       "t1",
		"poke_interval": float64(5),
		"soft_fail":     true,
		"env":           map[string]string{"A": "1", "B": "x=y"},
		"kwargs":        map[string]any{"n": 3, "flag": false},
		"positional":    []any{1, []any{"a", "b"}},
		"ignored_ext":   []string{".tmp", ".part"},
		"extra_options": map[string]any{"timeout": 5},
	}, args)
}

func TestArgSetReportsBadAssignments(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringArray("env", nil, "")
	require.NoError(t, cmd.ParseFlags([]string{"--env", "missing-separator"}))

	s := newArgSet(cmd)
	s.assignments("env", "env")
	_, err := s.result()
	require.Error(t, err)
}
