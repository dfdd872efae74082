// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/clusterbatch/batchsched/internal/procharvest"
)

// LocalExecutor implements RemoteExecutor by running each task as a
// local child process. host is recorded for logging only; it is not
// otherwise consulted, since this executor has no real remote
// transport.
type LocalExecutor struct {
	harvester *procharvest.Harvester

	mu    sync.Mutex
	tasks map[TaskID]*localTask
	next  int
}

type localTask struct {
	host string
	cmd  *exec.Cmd
	done chan error
	err  error
}

// NewLocalExecutor builds a LocalExecutor. harvester may be nil, in
// which case Poll reports zero-valued rusage for running tasks.
func NewLocalExecutor(harvester *procharvest.Harvester) *LocalExecutor {
	return &LocalExecutor{harvester: harvester, tasks: make(map[TaskID]*localTask)}
}

// Submit starts cmd locally and returns a task id to poll.
func (e *LocalExecutor) Submit(ctx context.Context, host string, cmdline []string) (TaskID, error) {
	if len(cmdline) == 0 {
		return "", fmt.Errorf("launcher: empty command")
	}

	cmd := exec.CommandContext(ctx, cmdline[0], cmdline[1:]...)
	done := make(chan error, 1)

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("launcher: start task on %s: %w", host, err)
	}

	go func() { done <- cmd.Wait() }()

	e.mu.Lock()
	e.next++
	id := TaskID(fmt.Sprintf("local-%d", e.next))
	e.tasks[id] = &localTask{host: host, cmd: cmd, done: done}
	e.mu.Unlock()

	return id, nil
}

// Poll performs one non-blocking check of id's completion.
func (e *LocalExecutor) Poll(ctx context.Context, id TaskID) (TaskState, procharvest.Rusage, error) {
	e.mu.Lock()
	t, ok := e.tasks[id]
	e.mu.Unlock()
	if !ok {
		return TaskErrored, procharvest.Rusage{}, fmt.Errorf("launcher: unknown task %s", id)
	}

	select {
	case err := <-t.done:
		t.err = err
		if err != nil {
			return TaskErrored, procharvest.Rusage{}, err
		}
		return TaskDone, procharvest.Rusage{}, nil
	default:
	}

	if e.harvester == nil || t.cmd.Process == nil {
		return TaskRunning, procharvest.Rusage{}, nil
	}
	usage, err := e.harvester.Harvest(t.cmd.Process.Pid)
	if err != nil {
		return TaskRunning, procharvest.Rusage{}, nil
	}
	return TaskRunning, usage, nil
}

// Close drops the executor's record of id.
func (e *LocalExecutor) Close(id TaskID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tasks, id)
	return nil
}
