// Package docker runs one simulator episode per container.
package docker

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
)

// TimeoutExitCode is reported when the container outlives its timeout.
const TimeoutExitCode = 124

// logTail bounds how much container output is kept per episode.
const logTail = "200"

type RunOpts struct {
	Image       string
	Command     []string
	Env         map[string]string
	Timeout     time.Duration
	Mounts      []Mount
	GPUs        bool
	CPULimit    float64
	MemoryLimit int64
	UserID      string
	Labels      map[string]string
	// Logs receives the tail of the container's combined output.
	Logs io.Writer
}

type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

type RunResult struct {
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// containerConfig translates opts into the engine's create request. Env
// entries are sorted so identical episodes produce identical requests.
func containerConfig(opts *RunOpts) (*container.Config, *container.HostConfig) {
	env := make([]string, 0, len(opts.Env))
	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		env = append(env, k+"="+opts.Env[k])
	}
	labels := map[string]string{"clutterbench": "true"}
	maps.Copy(labels, opts.Labels)

	cfg := &container.Config{
		Image:  opts.Image,
		Cmd:    opts.Command,
		Env:    env,
		Labels: labels,
		User:   opts.UserID,
	}

	initProcess := true
	host := &container.HostConfig{Init: &initProcess}
	for _, m := range opts.Mounts {
		host.Mounts = append(host.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	if opts.CPULimit > 0 {
		host.NanoCPUs = int64(opts.CPULimit * 1e9)
	}
	if opts.MemoryLimit > 0 {
		host.Memory = opts.MemoryLimit
	}
	if opts.GPUs {
		host.DeviceRequests = []container.DeviceRequest{{
			Count:        -1,
			Capabilities: [][]string{{"gpu"}},
		}}
	}
	return cfg, host
}

// RunContainer creates, starts and waits for one container, then removes
// it. Exceeding opts.Timeout kills the container and reports
// TimeoutExitCode; it is not an error.
func RunContainer(ctx context.Context, opts *RunOpts) (*RunResult, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	cfg, host := containerConfig(opts)
	created, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     cfg,
		HostConfig: host,
	})
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	id := created.ID
	defer cli.ContainerRemove(context.Background(), id, client.ContainerRemoveOptions{Force: true})

	start := time.Now()
	if _, err := cli.ContainerStart(ctx, id, client.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	wait := cli.ContainerWait(waitCtx, id, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})

	res := &RunResult{}
	select {
	case status := <-wait.Result:
		res.ExitCode = int(status.StatusCode)
	case err := <-wait.Error:
		if waitCtx.Err() == nil {
			return nil, fmt.Errorf("waiting for container: %w", err)
		}
		cli.ContainerKill(context.Background(), id, client.ContainerKillOptions{Signal: "SIGKILL"})
		res.ExitCode = TimeoutExitCode
		res.TimedOut = true
	}
	res.Duration = time.Since(start)
	copyLogs(cli, id, opts.Logs)
	return res, nil
}

func copyLogs(cli *client.Client, id string, w io.Writer) {
	if w == nil {
		return
	}
	rc, err := cli.ContainerLogs(context.Background(), id, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true, Tail: logTail})
	if err != nil || rc == nil {
		return
	}
	defer rc.Close()
	io.Copy(w, rc)
}
