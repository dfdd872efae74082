// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"context"

	"github.com/clusterbatch/batchsched/api"
	"github.com/clusterbatch/batchsched/pkg/watch"
)

// ListJobs renders a filtered, paginated snapshot of every known job —
// the collaborator internal/mbd/adminhttp's job endpoint and
// pkg/watch's JobPoller both list through.
func (s *Scheduler) ListJobs(_ context.Context, opts *api.ListJobsOptions) (*api.JobList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts == nil {
		opts = &api.ListJobsOptions{}
	}

	all := make([]api.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		snap := j.Snapshot()
		if !matchesList(snap.User, opts.Users) || !matchesList(snap.Queue, opts.Queues) || !matchesList(snap.ID, opts.JobIDs) {
			continue
		}
		if len(opts.States) > 0 && !containsState(opts.States, snap.State) {
			continue
		}
		all = append(all, snap)
	}

	total := len(all)
	if opts.Offset > 0 && opts.Offset < len(all) {
		all = all[opts.Offset:]
	} else if opts.Offset >= len(all) {
		all = nil
	}
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}

	return &api.JobList{Jobs: all, Total: total}, nil
}

// ListHosts renders a filtered snapshot of the host inventory.
func (s *Scheduler) ListHosts(_ context.Context, opts *api.ListHostsOptions) (*api.HostList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts == nil {
		opts = &api.ListHostsOptions{}
	}

	out := make([]api.Host, 0, len(s.hosts.All()))
	for _, h := range s.hosts.All() {
		snap := h.Snapshot()
		if !matchesList(snap.Name, opts.Names) {
			continue
		}
		if len(opts.States) > 0 && !containsHostState(opts.States, snap.State) {
			continue
		}
		out = append(out, snap)
	}

	return &api.HostList{Hosts: out, Total: len(out)}, nil
}

// ListQueues renders a filtered snapshot of the queue registry.
func (s *Scheduler) ListQueues(_ context.Context, opts *api.ListQueuesOptions) (*api.QueueList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts == nil {
		opts = &api.ListQueuesOptions{}
	}

	out := make([]api.Queue, 0, len(s.queues.All()))
	for _, q := range s.queues.All() {
		snap := q.Snapshot(s.hostsForQueue(q.Name))
		if !matchesList(snap.Name, opts.Names) {
			continue
		}
		if len(opts.States) > 0 && !containsQueueState(opts.States, snap.State) {
			continue
		}
		out = append(out, snap)
	}

	return &api.QueueList{Queues: out, Total: len(out)}, nil
}

func (s *Scheduler) hostsForQueue(queueName string) []string {
	var out []string
	for _, h := range s.hosts.All() {
		if len(h.Queues) == 0 || containsString(h.Queues, queueName) {
			out = append(out, h.Name)
		}
	}
	return out
}

// WatchJobs satisfies pkg/streaming.EventSource by running a
// pkg/watch.JobPoller over ListJobs.
func (s *Scheduler) WatchJobs(ctx context.Context, opts *api.WatchJobsOptions) (<-chan api.JobEvent, error) {
	return watch.NewJobPoller(s.ListJobs).Watch(ctx, opts)
}

// WatchHosts satisfies pkg/streaming.EventSource by running a
// pkg/watch.HostPoller over ListHosts.
func (s *Scheduler) WatchHosts(ctx context.Context, opts *api.WatchHostsOptions) (<-chan api.HostEvent, error) {
	return watch.NewHostPoller(s.ListHosts).Watch(ctx, opts)
}

// WatchQueues satisfies pkg/streaming.EventSource by running a
// pkg/watch.QueuePoller over ListQueues.
func (s *Scheduler) WatchQueues(ctx context.Context, opts *api.WatchQueuesOptions) (<-chan api.QueueEvent, error) {
	return watch.NewQueuePoller(s.ListQueues).Watch(ctx, opts)
}

func matchesList(value string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

func containsState(states []api.JobState, want api.JobState) bool {
	for _, s := range states {
		if s == want {
			return true
		}
	}
	return false
}

func containsHostState(states []api.HostState, want api.HostState) bool {
	for _, s := range states {
		if s == want {
			return true
		}
	}
	return false
}

func containsQueueState(states []api.QueueState, want api.QueueState) bool {
	for _, s := range states {
		if s == want {
			return true
		}
	}
	return false
}
