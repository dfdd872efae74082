// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"context"
	"time"

	"github.com/clusterbatch/batchsched/internal/procharvest"
	"github.com/clusterbatch/batchsched/pkg/logging"
)

// RusageSender is the narrow collaborator Launcher sends its periodic
// aggregate through. internal/rpc.Client's SendRusage returns an
// rpc.Opcode rather than an int32, so cmd/blaunch wraps it in a small
// adapter; tests substitute a fake without importing internal/rpc.
type RusageSender interface {
	SendRusage(ctx context.Context, addr string, jobID int32, r procharvest.Rusage) (int32, error)
}

type slot struct {
	host string
	task TaskID
	live bool
	last procharvest.Rusage
}

// Launcher drives spec.md §4.4's monitor loop: submit one task per
// host, then poll each non-blockingly at a fixed interval, sending a
// compacted rusage aggregate to the local host daemon whenever any
// task is still live.
type Launcher struct {
	Executor     RemoteExecutor
	Sender       RusageSender
	SBDAddr      string
	JobID        int32
	PollInterval time.Duration
	Logger       logging.Logger
}

// Run submits cmd to every host in hosts and monitors them to
// completion, returning 0 once every task is complete, matching
// spec.md §6's exit-code contract (the caller maps a non-nil error to
// exit -1).
func (l *Launcher) Run(ctx context.Context, hosts []string, cmd []string) (int, error) {
	logger := l.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	interval := l.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	slots := make([]*slot, len(hosts))
	for i, h := range hosts {
		id, err := l.Executor.Submit(ctx, h, cmd)
		if err != nil {
			logger.Warn("task failed to start, abandoning it", "host", h, "error", err)
			slots[i] = &slot{host: h, live: false}
			continue
		}
		slots[i] = &slot{host: h, task: id, live: true}
	}

	for {
		anyLive := false
		for _, s := range slots {
			if !s.live {
				continue
			}
			state, usage, err := l.Executor.Poll(ctx, s.task)
			switch {
			case err != nil:
				logger.Warn("task wait failed, marking complete", "host", s.host, "error", err)
				s.live = false
				_ = l.Executor.Close(s.task)
			case state == TaskDone:
				s.live = false
				s.last = procharvest.Rusage{}
				_ = l.Executor.Close(s.task)
			case state == TaskRunning:
				s.last = usage
				anyLive = true
			}
		}

		if !anyLive {
			return 0, nil
		}

		if l.Sender != nil && l.SBDAddr != "" {
			agg := procharvest.CompactRusage(liveUsages(slots))
			if _, err := l.Sender.SendRusage(ctx, l.SBDAddr, l.JobID, agg); err != nil {
				logger.Warn("aggregate rusage send failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func liveUsages(slots []*slot) []procharvest.Rusage {
	var out []procharvest.Rusage
	for _, s := range slots {
		if s.live {
			out = append(out, s.last)
		}
	}
	return out
}
