package episode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/signalnine/clutterbench/internal/trace"
)

// ExecRunner runs each episode as a local process, for hosts where the
// simulator is installed natively.
type ExecRunner struct {
	Command   []string
	Env       map[string]string
	Timeout   time.Duration
	Workspace string
}

func (r *ExecRunner) RunEpisode(ctx context.Context, req Request) (*trace.RawTrace, error) {
	if len(r.Command) == 0 {
		return nil, fmt.Errorf("exec runner: no command configured")
	}
	dir, err := prepareDir(r.Workspace, req)
	if err != nil {
		return nil, err
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logFile, err := os.Create(filepath.Join(dir, "process.log"))
	if err != nil {
		return nil, fmt.Errorf("creating process log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(runCtx, r.Command[0], r.Command[1:]...)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = os.Environ()
	for k, v := range r.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	for k, v := range req.Env(req.Checkpoint, filepath.Join(dir, trace.FileName)) {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, &EnvironmentError{Request: req, Status: trace.StatusCrashed, Err: err}
		}
		exitCode = exitErr.ExitCode()
	}
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
	return collect(req, dir, exitCode, timedOut)
}
