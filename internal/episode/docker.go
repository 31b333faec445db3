package episode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/signalnine/clutterbench/internal/docker"
	"github.com/signalnine/clutterbench/internal/trace"
)

const (
	containerOut        = "/out"
	containerCheckpoint = "/checkpoint"
)

// DockerRunner runs each episode in a fresh simulator container.
type DockerRunner struct {
	Image       string
	Command     []string
	Env         map[string]string
	Timeout     time.Duration
	GPUs        bool
	CPULimit    float64
	MemoryLimit int64
	// Workspace is the host directory that receives episode artifacts.
	Workspace string
}

func (r *DockerRunner) RunEpisode(ctx context.Context, req Request) (*trace.RawTrace, error) {
	dir, err := prepareDir(r.Workspace, req)
	if err != nil {
		return nil, err
	}

	mounts := []docker.Mount{{Source: dir, Target: containerOut}}
	// A checkpoint on the host is mounted; anything else is passed through
	// as an opaque reference for the image to resolve.
	checkpoint := req.Checkpoint
	if abs, err := filepath.Abs(req.Checkpoint); err == nil {
		if _, err := os.Stat(abs); err == nil {
			mounts = append(mounts, docker.Mount{Source: abs, Target: containerCheckpoint, ReadOnly: true})
			checkpoint = containerCheckpoint
		}
	}

	env := req.Env(checkpoint, containerOut+"/"+trace.FileName)
	for k, v := range r.Env {
		if _, reserved := env[k]; !reserved {
			env[k] = v
		}
	}

	logFile, err := os.Create(filepath.Join(dir, "container.log"))
	if err != nil {
		return nil, fmt.Errorf("creating container log: %w", err)
	}
	defer logFile.Close()

	res, err := docker.RunContainer(ctx, &docker.RunOpts{
		Image:       r.Image,
		Command:     r.Command,
		Env:         env,
		Timeout:     r.Timeout,
		Mounts:      mounts,
		GPUs:        r.GPUs,
		CPULimit:    r.CPULimit,
		MemoryLimit: r.MemoryLimit,
		UserID:      fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
		Labels: map[string]string{
			"clutterbench.run":     strconv.Itoa(req.Run),
			"clutterbench.episode": strconv.Itoa(req.Episode),
			"clutterbench.method":  string(req.Method),
		},
		Logs: logFile,
	})
	if err != nil {
		return nil, &EnvironmentError{Request: req, Status: trace.StatusCrashed, Err: err}
	}
	return collect(req, dir, res.ExitCode, res.TimedOut)
}
