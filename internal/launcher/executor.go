// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"context"

	"github.com/clusterbatch/batchsched/internal/procharvest"
)

// TaskID identifies one remotely-submitted task.
type TaskID string

// TaskState is the non-blocking wait outcome spec.md §4.4 names:
// running, done, or errored.
type TaskState int

const (
	TaskRunning TaskState = iota
	TaskDone
	TaskErrored
)

// RemoteExecutor is the "remote-execution interface" spec.md §4.4
// names as the launcher's collaborator for submitting and polling
// tasks on a remote host. No remote-execution transport library is
// available to ground a concrete implementation on; LocalExecutor
// below substitutes a direct-exec implementation, keeping the
// interface as the substitution seam a real remote transport would
// fill, matching how internal/corebind documents its own NUMA seam.
type RemoteExecutor interface {
	// Submit starts cmd on host and returns a task id to poll later.
	Submit(ctx context.Context, host string, cmd []string) (TaskID, error)

	// Poll performs one non-blocking check of id's status. If still
	// running, it also returns the task's current resource usage.
	Poll(ctx context.Context, id TaskID) (TaskState, procharvest.Rusage, error)

	// Close releases any resources id holds once its task is done.
	Close(id TaskID) error
}
