// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package sbd

import (
	"context"
	"os/exec"

	"github.com/clusterbatch/batchsched/pkg/logging"
	"github.com/clusterbatch/batchsched/pkg/retry"
)

// MasterReconfigCode is the orderly exit code mbatchd uses to request
// an unconditional restart (a configuration reload), per spec.md
// §4.3.4.
const MasterReconfigCode = 99

// MasterSupervisor spawns mbatchd as a child process and restarts it
// according to spec.md §4.3.4's policy, capping consecutive
// same-exit-code restarts at a named constant per Design Notes §9
// ("port as a named constant MAX_SAME_EXIT_STREAK documenting the
// restart-storm damper").
type MasterSupervisor struct {
	spawn           func() *exec.Cmd
	maxSameExitStreak int
	backoff         retry.Policy
	logger          logging.Logger

	lastExitCode   int
	sameExitStreak int
}

// NewMasterSupervisor builds a supervisor that spawns its master
// process using spawn (typically exec.Command wrapping the mbatchd
// binary path and flags), restarting it after each exit until
// maxSameExitStreak consecutive exits share one exit code, at which
// point it gives up.
func NewMasterSupervisor(spawn func() *exec.Cmd, maxSameExitStreak int, backoff retry.Policy, logger logging.Logger) *MasterSupervisor {
	if maxSameExitStreak <= 0 {
		maxSameExitStreak = 150
	}
	if backoff == nil {
		backoff = retry.NewFixedDelayPolicy(maxSameExitStreak, 0)
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &MasterSupervisor{spawn: spawn, maxSameExitStreak: maxSameExitStreak, backoff: backoff, logger: logger}
}

// Run spawns and re-spawns the master until ctx is cancelled or the
// same-exit-code streak is exhausted. It never itself exits the host
// daemon process, matching "this loop never exits the daemon" from
// spec.md §4.3.2.
func (m *MasterSupervisor) Run(ctx context.Context, reaper *Reaper) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cmd := m.spawn()
		pid, err := reaper.Supervise(cmd)
		if err != nil {
			m.logger.Error("failed to spawn master", "error", err)
			return
		}
		m.logger.Info("master spawned", "pid", pid)

		rec := m.awaitMaster(ctx, reaper, pid)
		if rec == nil {
			return
		}

		if !m.shouldRestart(*rec) {
			m.logger.Error("master restart streak exhausted, giving up", "streak", m.sameExitStreak, "exit_code", rec.ExitCode)
			return
		}
	}
}

// awaitMaster drains reap completions until it sees the master's own
// pid reaped, or ctx is cancelled.
func (m *MasterSupervisor) awaitMaster(ctx context.Context, reaper *Reaper, pid int) *CompletionRecord {
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec := <-reaper.Completions():
			if rec.Pid == pid {
				return &rec
			}
			// Not the master; a job-card reap arriving on the shared
			// reaper is handled by the supervisor's own drain loop, not
			// here — this duplicate read only happens if callers wire
			// the master onto the same Reaper as job tasks.
		}
	}
}

func (m *MasterSupervisor) shouldRestart(rec CompletionRecord) bool {
	if rec.Signaled {
		m.logger.Warn("master terminated by signal", "signal", rec.Signal, "core_dump", rec.CoreDump)
		m.sameExitStreak = 0
		return true
	}

	if rec.ExitCode == MasterReconfigCode {
		m.logger.Info("master exited for reconfiguration, restarting")
		m.sameExitStreak = 0
		return true
	}

	if rec.ExitCode == m.lastExitCode {
		m.sameExitStreak++
	} else {
		m.sameExitStreak = 1
		m.lastExitCode = rec.ExitCode
	}

	m.logger.Warn("master exited, evaluating restart", "exit_code", rec.ExitCode, "same_exit_streak", m.sameExitStreak)
	return m.sameExitStreak < m.maxSameExitStreak
}
