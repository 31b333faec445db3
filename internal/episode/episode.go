// Package episode is the boundary to the external simulator: one call runs
// one episode and returns its raw trace.
package episode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/signalnine/clutterbench/internal/config"
	"github.com/signalnine/clutterbench/internal/trace"
)

// Method is the policy variant under test.
type Method string

const (
	Baseline  Method = "baseline"
	Treatment Method = "treatment"
)

// Methods lists both methods in execution order.
var Methods = []Method{Baseline, Treatment}

// Request identifies one episode execution. Baseline and treatment requests
// for the same (run, episode) differ only in Method, so the environment is
// initialized identically for both.
type Request struct {
	Task        string
	Category    string
	Distractors []config.Distractor
	Checkpoint  string
	Run         int
	Seed        int64
	Episode     int
	Method      Method
}

// NewRequest binds a sweep to one (run, episode, method) coordinate.
func NewRequest(s config.Sweep, run, ep int, m Method) Request {
	return Request{
		Task:        s.Task,
		Category:    s.Category,
		Distractors: s.Distractors,
		Checkpoint:  s.Checkpoint,
		Run:         run,
		Seed:        s.Seeds[run],
		Episode:     ep,
		Method:      m,
	}
}

func (r Request) String() string {
	return fmt.Sprintf("run %d (seed %d) episode %d %s", r.Run, r.Seed, r.Episode, r.Method)
}

// Env is the environment handed to the simulator process. traceOut is the
// path, as seen by the process, where it must write its trace.
func (r Request) Env(checkpoint, traceOut string) map[string]string {
	return map[string]string{
		"TASK":        r.Task,
		"CATEGORY":    r.Category,
		"DISTRACTORS": config.FormatDistractors(r.Distractors),
		"SEED":        strconv.FormatInt(r.Seed, 10),
		"EPISODE":     strconv.Itoa(r.Episode),
		"METHOD":      string(r.Method),
		"CHECKPOINT":  checkpoint,
		"TRACE_OUT":   traceOut,
	}
}

// Runner executes episodes. A Runner owns its environment exclusively and
// is never called concurrently.
type Runner interface {
	RunEpisode(ctx context.Context, req Request) (*trace.RawTrace, error)
}

// Factory creates one Runner (one environment instance) per run.
type Factory func(run int) (Runner, error)

// EnvironmentError reports that the episode process crashed, timed out or
// left no trace behind.
type EnvironmentError struct {
	Request Request
	Status  trace.Status
	Err     error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("%s: environment %s: %v", e.Request, e.Status, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// IsEnvironmentError reports whether err carries an EnvironmentError.
func IsEnvironmentError(err error) bool {
	var envErr *EnvironmentError
	return errors.As(err, &envErr)
}

// Dir is where a runner keeps the artifacts of one episode.
func Dir(workspace string, req Request) string {
	return filepath.Join(workspace,
		fmt.Sprintf("run-%d", req.Run),
		string(req.Method),
		fmt.Sprintf("episode-%d", req.Episode))
}

// prepareDir creates the episode directory and removes any stale trace.
func prepareDir(workspace string, req Request) (string, error) {
	dir, err := filepath.Abs(Dir(workspace, req))
	if err != nil {
		return "", fmt.Errorf("resolving episode dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating episode dir: %w", err)
	}
	if err := os.Remove(filepath.Join(dir, trace.FileName)); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("removing stale trace: %w", err)
	}
	return dir, nil
}

// ExitStatus maps a process exit to a trace status.
func ExitStatus(code int, timedOut bool) trace.Status {
	if timedOut {
		return trace.StatusTimeout
	}
	if code == 0 {
		return trace.StatusCompleted
	}
	return trace.StatusCrashed
}

// collect reads the trace an episode left in dir. A trace written before a
// non-zero exit is still used; no trace at all is an environment failure.
func collect(req Request, dir string, code int, timedOut bool) (*trace.RawTrace, error) {
	status := ExitStatus(code, timedOut)
	if timedOut {
		return nil, &EnvironmentError{Request: req, Status: status, Err: errors.New("episode timed out")}
	}
	tr, err := trace.ReadFile(filepath.Join(dir, trace.FileName))
	if err != nil {
		if status == trace.StatusCompleted {
			status = trace.StatusCrashed
		}
		return nil, &EnvironmentError{Request: req, Status: status, Err: fmt.Errorf("exit code %d: %w", code, err)}
	}
	return tr, nil
}
