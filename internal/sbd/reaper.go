// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package sbd

import (
	"os/exec"
	"syscall"
)

// CompletionRecord is one reaped child's exit, queued onto a bounded
// channel and drained from the main loop — spec.md §9's "port by
// queuing completion records on a bounded lock-free channel" guidance,
// implemented here as a goroutine per supervised child rather than a
// simulated SIGCHLD handler, since os/exec already reaps its own
// children through Cmd.Wait.
type CompletionRecord struct {
	Pid       int
	ExitCode  int
	Signaled  bool
	Signal    syscall.Signal
	CoreDump  bool
	WaitError error
}

// Reaper fans completions from every supervised child into one bounded
// channel. The channel's producers (the per-child goroutines spawned by
// Supervise) never touch job-card state directly; only the main loop,
// draining Completions, is allowed to.
type Reaper struct {
	completions chan CompletionRecord
}

// NewReaper builds a Reaper with the given channel capacity. A full
// channel means the main loop has fallen behind; the per-child goroutine
// started by Supervise then blocks on its send rather than dropping the
// completion (Supervise itself still returns at once), since spec.md §4.3.2 requires
// every reap to eventually be observed.
func NewReaper(capacity int) *Reaper {
	if capacity <= 0 {
		capacity = 64
	}
	return &Reaper{completions: make(chan CompletionRecord, capacity)}
}

// Completions returns the channel the main loop drains.
func (r *Reaper) Completions() <-chan CompletionRecord {
	return r.completions
}

// Supervise starts cmd and, in its own goroutine, waits for it and
// pushes its CompletionRecord onto the reaper's channel once it exits.
// It returns the child's pid immediately after a successful Start.
func (r *Reaper) Supervise(cmd *exec.Cmd) (int, error) {
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid

	go func() {
		err := cmd.Wait()
		r.completions <- classifyExit(pid, err)
	}()

	return pid, nil
}

// classifyExit turns the error from Cmd.Wait into a CompletionRecord,
// distinguishing signal-termination (with or without a core dump) from
// an orderly exit code, per spec.md §4.3.4.
func classifyExit(pid int, err error) CompletionRecord {
	rec := CompletionRecord{Pid: pid}

	if err == nil {
		rec.ExitCode = 0
		return rec
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		rec.WaitError = err
		return rec
	}

	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		rec.ExitCode = exitErr.ExitCode()
		return rec
	}

	if status.Signaled() {
		rec.Signaled = true
		rec.Signal = status.Signal()
		rec.CoreDump = status.CoreDump()
		return rec
	}

	rec.ExitCode = status.ExitStatus()
	return rec
}
