package usage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

type CommandErrorKind string

const (
	// KindSpawn means the process could not be started.
	KindSpawn CommandErrorKind = "spawn"
	// KindExit means the process ran and reported failure.
	KindExit CommandErrorKind = "exit"
	// KindExec means communication with the process failed.
	KindExec CommandErrorKind = "exec"
	// KindTimeout means the process exceeded its time bound and was killed.
	KindTimeout CommandErrorKind = "timeout"
)

var (
	ErrSpawn   = errors.New("command could not be started")
	ErrExit    = errors.New("command exited with failure")
	ErrExec    = errors.New("command execution failed")
	ErrTimeout = errors.New("command timed out")
)

// CommandError carries the captured stderr of a failed command for diagnostics.
type CommandError struct {
	Kind     CommandErrorKind
	Argv     []string
	ExitCode int
	Stderr   string
	Timeout  time.Duration
	Err      error
}

func (e *CommandError) Error() string {
	name := strings.Join(e.Argv, " ")
	switch e.Kind {
	case KindSpawn:
		return fmt.Sprintf("start %s: %v", name, e.Err)
	case KindExit:
		if stderr := summarizeBody([]byte(e.Stderr)); stderr != "" {
			return fmt.Sprintf("%s exited with code %d: %s", name, e.ExitCode, stderr)
		}
		return fmt.Sprintf("%s exited with code %d", name, e.ExitCode)
	case KindTimeout:
		if e.Timeout <= 0 {
			return fmt.Sprintf("%s timed out", name)
		}
		return fmt.Sprintf("%s timed out after %s", name, e.Timeout)
	default:
		return fmt.Sprintf("%s: %v", name, e.Err)
	}
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (e *CommandError) Is(target error) bool {
	switch target {
	case ErrSpawn:
		return e.Kind == KindSpawn
	case ErrExit:
		return e.Kind == KindExit
	case ErrExec:
		return e.Kind == KindExec
	case ErrTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

// ExecRunner runs commands as child processes. A zero Timeout disables the
// bound and leaves cancellation to the caller's context.
type ExecRunner struct {
	Timeout time.Duration
	Env     []string
}

func (r ExecRunner) Run(ctx context.Context, argv []string) (CommandOutput, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return CommandOutput{}, &CommandError{Kind: KindSpawn, Argv: argv, Err: errors.New("empty command")}
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	env := os.Environ()
	for _, kv := range r.Env {
		key, value, _ := strings.Cut(kv, "=")
		env = upsertEnvVar(env, key, value)
	}
	cmd.Env = env
	// npx leaves grandchildren holding the pipes after a kill; stop waiting on them.
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return CommandOutput{}, &CommandError{Kind: KindSpawn, Argv: argv, Err: err}
	}

	waitErr := cmd.Wait()
	out := CommandOutput{
		Stdout: strings.ToValidUTF8(stdout.String(), "�"),
		Stderr: strings.ToValidUTF8(stderr.String(), "�"),
	}
	if waitErr == nil {
		return out, nil
	}

	if ctxErr := runCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return out, &CommandError{Kind: KindTimeout, Argv: argv, Stderr: out.Stderr, Timeout: r.Timeout, Err: ctxErr}
		}
		return out, &CommandError{Kind: KindExec, Argv: argv, Stderr: out.Stderr, Err: ctxErr}
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return out, &CommandError{
			Kind:     KindExit,
			Argv:     argv,
			ExitCode: exitErr.ExitCode(),
			Stderr:   out.Stderr,
			Err:      waitErr,
		}
	}
	return out, &CommandError{Kind: KindExec, Argv: argv, Stderr: out.Stderr, Err: waitErr}
}

func upsertEnvVar(env []string, key, value string) []string {
	prefix := key + "="
	for i := range env {
		if strings.HasPrefix(env[i], prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

func summarizeBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 240 {
		return s[:240] + "..."
	}
	return s
}
