package main

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/runner"
	"github.com/alexisbeaulieu97/execute-any-operator/internal/xcom"
)

// executeCommand runs the root command against a fresh XCom store and
// returns what it printed to stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd(runner.WithStore(xcom.NewStore()))
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(append([]string{"--no-progress"}, args...))

	err := root.Execute()
	if err != nil {
		t.Logf("stderr:\n%s", stderr.String())
	}
	return stdout.String(), err
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell commands are not available on windows")
	}
}
