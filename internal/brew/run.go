package brew

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
)

// RunError is a subprocess that could not start or exited non-zero. Stderr
// is kept verbatim so it can be shown to the user unmodified.
type RunError struct {
	Args   []string
	Stdout string
	Stderr string
	Code   int
	Err    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed: %v (cmd=%q)", e.Err, strings.Join(e.Args, " "))
}

func (e *RunError) Unwrap() error { return e.Err }

// InstallError is a failed `brew install`. It is the only subprocess
// failure whose exit code becomes brewv's own.
type InstallError struct {
	*RunError
}

func (e *InstallError) Unwrap() error { return e.RunError }

// ExitCode is the install exit code, 1 when brew never ran.
func (e *InstallError) ExitCode() int { return e.Code }

// Run executes bin with args and returns stdout, stderr and the exit code.
// env entries are added on top of the inherited environment.
func Run(ctx context.Context, bin string, args []string, dir string, env map[string]string) (string, string, int, error) {
	return run(ctx, bin, args, dir, env, nil)
}

// RunStreaming is Run with stdout also copied to out as it is produced.
func RunStreaming(ctx context.Context, bin string, args []string, dir string, env map[string]string, out io.Writer) (string, string, int, error) {
	return run(ctx, bin, args, dir, env, out)
}

func run(ctx context.Context, bin string, args []string, dir string, env map[string]string, out io.Writer) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	if len(env) > 0 {
		cmd.Env = mergeEnv(cmd.Environ(), env)
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	if out != nil {
		cmd.Stdout = io.MultiWriter(&stdout, out)
	}
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		exit := 1
		if ee, ok := err.(*exec.ExitError); ok {
			exit = ee.ExitCode()
		}
		return stdout.String(), stderr.String(), exit, &RunError{
			Args:   append([]string{bin}, args...),
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Code:   exit,
			Err:    err,
		}
	}
	return stdout.String(), stderr.String(), 0, nil
}

// mergeEnv overrides keys of base with env; added keys are sorted so the
// resulting environment is deterministic.
func mergeEnv(base []string, env map[string]string) []string {
	out := make([]string, 0, len(base)+len(env))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := env[k]; ok {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
