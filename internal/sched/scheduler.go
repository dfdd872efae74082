// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package sched implements the master scheduler (MBD): the pending/
// running/suspended job lists, the preemption elector, and the
// scheduling tick loop that matches jobs to hosts and emits job
// lifecycle events.
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/clusterbatch/batchsched/api"
	"github.com/clusterbatch/batchsched/internal/host"
	"github.com/clusterbatch/batchsched/internal/job"
	"github.com/clusterbatch/batchsched/internal/queue"
	"github.com/clusterbatch/batchsched/pkg/config"
	"github.com/clusterbatch/batchsched/pkg/logging"
	"github.com/clusterbatch/batchsched/pkg/metrics"
)

// Scheduler holds the master's entire daemon-state aggregate: job
// lists, the primary job map, and the queue/host registries. Design
// Notes §9 is explicit that this must be an aggregate passed by
// reference, never ambient process-wide storage — every operation
// below is a method on *Scheduler.
type Scheduler struct {
	mu sync.Mutex

	config  *config.Config
	logger  logging.Logger
	metrics metrics.Collector

	queues *queue.Registry
	hosts  *host.Registry

	jobs      map[job.ID]*job.Job
	lists     *jobLists
	nextBase  int64

	events chan api.JobEvent
}

// New creates a Scheduler over the given queue/host registries and
// configuration.
func New(cfg *config.Config, logger logging.Logger, collector metrics.Collector, queues *queue.Registry, hosts *host.Registry) *Scheduler {
	if collector == nil {
		collector = metrics.NewInMemoryCollector()
	}
	return &Scheduler{
		config:  cfg,
		logger:  logger,
		metrics: collector,
		queues:  queues,
		hosts:   hosts,
		jobs:    make(map[job.ID]*job.Job),
		lists:   newJobLists(),
		events:  make(chan api.JobEvent, 256),
	}
}

// Events returns the scheduler's job-event stream, consumed by
// pkg/streaming's event feed. The channel is never closed by the
// scheduler; it is closed only when the owning process shuts down.
func (s *Scheduler) Events() <-chan api.JobEvent {
	return s.events
}

// Submit accepts a new job into PEND state and returns its id.
func (s *Scheduler) Submit(spec job.Spec) job.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextBase++
	id := job.ID{Base: s.nextBase}
	j := &job.Job{
		ID:         id,
		Spec:       spec,
		Status:     job.StatusFlag(job.StatusPend),
		SubmitTime: time.Now(),
	}
	s.jobs[id] = j
	s.lists.insertPending(id, s.priorityLookup)

	if q := s.queues.Get(spec.Queue); q != nil {
		q.NumPend++
	}

	s.emit("job_new", id, "", api.JobStatePending, j)
	return id
}

func (s *Scheduler) priorityLookup(id job.ID) (int32, int64, bool) {
	j, ok := s.jobs[id]
	if !ok {
		return 0, 0, false
	}
	q := s.queues.Get(j.Spec.Queue)
	if q == nil {
		return 0, j.SubmitTime.UnixNano(), true
	}
	return q.Priority, j.SubmitTime.UnixNano(), true
}

// Run drives the scheduling tick loop until ctx is cancelled,
// mirroring the teacher's JobPoller.performPoll ticker shape but
// sourcing every poll from in-process state rather than a remote
// endpoint.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.config.TickInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs one scheduling pass: dispatch, then preemption election
// for every preemptive queue. A tick fully completes — list walk,
// election, event emission — before the next begins, per spec.md §5's
// concurrency model.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	s.dispatchPending()

	for _, q := range s.queues.All() {
		if len(q.Preemptable) == 0 {
			continue
		}
		result := s.elect(q)
		for _, vid := range result.Victims {
			s.suspendVictim(vid)
		}
	}

	s.metrics.RecordTick(time.Since(start))
}

// dispatchPending walks PJL in descending priority order, matching
// each pending job against the first host with enough free slots.
func (s *Scheduler) dispatchPending() {
	for _, id := range s.lists.pendingDescending() {
		j := s.jobs[id]
		if j == nil {
			continue
		}

		h := s.findHostFor(j)
		if h == nil {
			j.PendReasons = []string{ReasonNoFreeSlots}
			continue
		}

		if err := h.ReserveSlots(j.Spec.NumProcessors); err != nil {
			j.PendReasons = []string{ReasonNoFreeSlots}
			continue
		}

		j.Status = j.Status.WithDominant(job.StatusRun)
		j.StartTime = time.Now()
		j.Hosts = []string{h.Name}
		j.PendReasons = nil

		s.lists.moveTo(id, s.lists.sjl)

		if q := s.queues.Get(j.Spec.Queue); q != nil {
			q.NumPend--
			q.NumRun++
		}

		s.emit("job_state_change", id, api.JobStatePending, api.JobStateRunning, j)
	}
}

func (s *Scheduler) findHostFor(j *job.Job) *host.Host {
	for _, h := range s.hosts.All() {
		if h.Unavailable || h.FreeCores < j.Spec.NumProcessors {
			continue
		}
		if len(h.Queues) > 0 && !containsString(h.Queues, j.Spec.Queue) {
			continue
		}
		return h
	}
	return nil
}

func containsString(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}

// suspendVictim moves a preempted job from SJL to the suspended list
// and emits its state-change event. The job's status and preemption
// back-reference were already stamped by elect.
func (s *Scheduler) suspendVictim(id job.ID) {
	v := s.jobs[id]
	if v == nil {
		return
	}

	s.lists.moveTo(id, s.lists.suspended)

	if q := s.queues.Get(v.Spec.Queue); q != nil {
		q.NumRun--
		q.NumSusp++
	}

	s.emit("job_state_change", id, api.JobStateRunning, api.JobStateSSuspend, v)
}

// Reap transitions a job from RUN to DONE or EXIT, releasing its host
// slots. It is the scheduler-side half of a job completion reported by
// sbatchd over internal/rpc.
func (s *Scheduler) Reap(id job.ID, exitStatus int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := s.jobs[id]
	if j == nil {
		return
	}

	final := job.StatusDone
	apiState := api.JobStateDone
	if exitStatus != 0 {
		final = job.StatusExit
		apiState = api.JobStateExit
	}

	wasRunning := j.Status.Has(job.StatusRun)
	j.Status = j.Status.WithDominant(final)
	j.EndTime = time.Now()
	j.ExitStatus = exitStatus

	for _, hostName := range j.Hosts {
		if h := s.hosts.Get(hostName); h != nil && wasRunning {
			h.ReleaseSlots(j.Spec.NumProcessors)
		}
	}

	s.lists.remove(id)

	if q := s.queues.Get(j.Spec.Queue); q != nil {
		if wasRunning {
			q.NumRun--
		} else {
			q.NumPend--
		}
	}

	s.emit("job_completed", id, api.JobStateRunning, apiState, j)
}

func (s *Scheduler) emit(eventType string, id job.ID, prev, next api.JobState, j *job.Job) {
	snap := j.Snapshot()
	event := api.JobEvent{
		EventType:     eventType,
		JobID:         id.String(),
		PreviousState: prev,
		NewState:      next,
		EventTime:     time.Now(),
		Job:           &snap,
	}
	select {
	case s.events <- event:
	default:
		s.logger.Warn("scheduler event channel full, dropping event", "job_id", id.String(), "event_type", eventType)
	}
	s.metrics.RecordJobEvent(eventType)
}

func (s *Scheduler) logPreemption(trigger job.ID, victims []job.ID) {
	victimIDs := make([]string, len(victims))
	for i, v := range victims {
		victimIDs[i] = v.String()
	}
	logging.LogPreemption(s.logger, trigger.String(), victimIDs)
}
