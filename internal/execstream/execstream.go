// Package execstream runs subprocesses for the operators that shell out,
// streaming their output to the parent process while keeping a copy.
package execstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// Result captures stdout/stderr emitted by a streaming command run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run wires the command's stdout/stderr through to the parent process (or the
// writers already set on cmd) while collecting the output. ExitCode is -1 when
// the process never started or was killed by a signal.
func Run(cmd *exec.Cmd) (Result, error) {
	var stdoutBuf, stderrBuf bytes.Buffer

	if cmd.Stdout != nil {
		cmd.Stdout = io.MultiWriter(cmd.Stdout, &stdoutBuf)
	} else {
		cmd.Stdout = io.MultiWriter(os.Stdout, &stdoutBuf)
	}
	if cmd.Stderr != nil {
		cmd.Stderr = io.MultiWriter(cmd.Stderr, &stderrBuf)
	} else {
		cmd.Stderr = io.MultiWriter(os.Stderr, &stderrBuf)
	}

	err := cmd.Run()

	res := Result{
		Stdout:   strings.TrimSpace(stdoutBuf.String()),
		Stderr:   strings.TrimSpace(stderrBuf.String()),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	return res, err
}

// PrimaryOutput returns stderr if present, otherwise stdout.
func PrimaryOutput(res Result) string {
	if res.Stderr != "" {
		return res.Stderr
	}
	return res.Stdout
}

// LastLine returns the final non-empty line of out.
func LastLine(out string) string {
	lines := strings.Split(strings.TrimRight(out, "\r\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimRight(lines[i], "\r"); strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

// Failure decorates a run error with the command's primary output.
func Failure(err error, res Result) error {
	if out := PrimaryOutput(res); out != "" {
		return fmt.Errorf("%w: %s", err, out)
	}
	return err
}

// IsExitCode reports whether err is a process exit with the given status.
func IsExitCode(err error, code int) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == code
}

// Shell picks the interpreter for a command string: explicit when given,
// otherwise bash, falling back to sh.
func Shell(explicit string) (string, []string, error) {
	if explicit != "" {
		return explicit, []string{"-c"}, nil
	}

	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C"}, nil
	}

	if path, err := exec.LookPath("bash"); err == nil {
		return path, []string{"-c"}, nil
	}

	if path, err := exec.LookPath("sh"); err == nil {
		return path, []string{"-c"}, nil
	}

	return "", nil, fmt.Errorf("no suitable shell found")
}

// Env builds a child environment. With replace set the custom variables are
// the whole environment; otherwise they are layered over os.Environ.
func Env(custom map[string]string, replace bool) []string {
	var env []string
	if !replace {
		env = os.Environ()
	}
	keys := make([]string, 0, len(custom))
	for k := range custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, custom[k]))
	}
	if env == nil {
		env = []string{}
	}
	return env
}

// Decode converts output produced in the named character encoding to UTF-8.
// An empty name or utf-8 leaves out untouched.
func Decode(out, encoding string) (string, error) {
	if encoding == "" || strings.EqualFold(encoding, "utf-8") || strings.EqualFold(encoding, "utf8") {
		return out, nil
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return "", fmt.Errorf("unknown output encoding %q: %w", encoding, err)
	}
	decoded, err := enc.NewDecoder().String(out)
	if err != nil {
		return "", fmt.Errorf("decode output as %s: %w", encoding, err)
	}
	return decoded, nil
}
