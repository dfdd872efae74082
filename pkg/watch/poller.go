// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package watch provides polling-based watchers over job, host, and
// queue snapshots, diffing successive polls into state-change events
// for the admin HTTP surface and event feed to consume.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/clusterbatch/batchsched/api"
)

// DefaultPollInterval is the default polling interval for watch operations.
const DefaultPollInterval = 5 * time.Second

// JobPoller diffs successive job-list snapshots into JobEvents.
type JobPoller struct {
	listFunc     func(ctx context.Context, opts *api.ListJobsOptions) (*api.JobList, error)
	pollInterval time.Duration
	bufferSize   int
	mu           sync.RWMutex
	jobStates    map[string]api.JobState
}

// NewJobPoller creates a new job poller over listFunc.
func NewJobPoller(listFunc func(ctx context.Context, opts *api.ListJobsOptions) (*api.JobList, error)) *JobPoller {
	return &JobPoller{
		listFunc:     listFunc,
		pollInterval: DefaultPollInterval,
		bufferSize:   100,
		jobStates:    make(map[string]api.JobState),
	}
}

// WithPollInterval sets a custom poll interval.
func (p *JobPoller) WithPollInterval(interval time.Duration) *JobPoller {
	p.pollInterval = interval
	return p
}

// WithBufferSize sets a custom buffer size for the event channel.
func (p *JobPoller) WithBufferSize(size int) *JobPoller {
	p.bufferSize = size
	return p
}

// Watch starts watching for job state changes.
func (p *JobPoller) Watch(ctx context.Context, opts *api.WatchJobsOptions) (<-chan api.JobEvent, error) {
	eventChan := make(chan api.JobEvent, p.bufferSize)

	if opts == nil {
		opts = &api.WatchJobsOptions{}
	}

	go p.pollLoop(ctx, opts, eventChan)

	return eventChan, nil
}

func (p *JobPoller) pollLoop(ctx context.Context, opts *api.WatchJobsOptions, eventChan chan<- api.JobEvent) {
	defer close(eventChan)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.performPoll(ctx, opts, eventChan, true)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.performPoll(ctx, opts, eventChan, false)
		}
	}
}

func (p *JobPoller) performPoll(ctx context.Context, opts *api.WatchJobsOptions, eventChan chan<- api.JobEvent, isInitial bool) {
	listOpts := &api.ListJobsOptions{
		Users:  opts.Users,
		Queues: opts.Queues,
		States: opts.States,
	}

	jobList, err := p.listFunc(ctx, listOpts)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	currentJobs := make(map[string]bool, len(jobList.Jobs))

	for _, job := range jobList.Jobs {
		job := job

		if !matchesAny(job.ID, opts.JobIDs) {
			continue
		}

		currentJobs[job.ID] = true

		previousState, exists := p.jobStates[job.ID]

		if !exists {
			p.jobStates[job.ID] = job.State
			if !isInitial && !opts.ExcludeNew {
				jobCopy := job
				eventChan <- api.JobEvent{
					EventType: "job_new",
					JobID:     job.ID,
					NewState:  job.State,
					EventTime: time.Now(),
					Job:       &jobCopy,
				}
			}
		} else if previousState != job.State {
			p.jobStates[job.ID] = job.State
			jobCopy := job
			eventChan <- api.JobEvent{
				EventType:     "job_state_change",
				JobID:         job.ID,
				PreviousState: previousState,
				NewState:      job.State,
				EventTime:     time.Now(),
				Job:           &jobCopy,
			}
		}
	}

	if !opts.ExcludeCompleted {
		for jobID, state := range p.jobStates {
			if !currentJobs[jobID] {
				delete(p.jobStates, jobID)
				eventChan <- api.JobEvent{
					EventType:     "job_completed",
					JobID:         jobID,
					PreviousState: state,
					NewState:      api.JobStateDone,
					EventTime:     time.Now(),
				}
			}
		}
	}
}

// HostPoller diffs successive host-inventory snapshots into HostEvents.
type HostPoller struct {
	listFunc     func(ctx context.Context, opts *api.ListHostsOptions) (*api.HostList, error)
	pollInterval time.Duration
	bufferSize   int
	mu           sync.RWMutex
	hostStates   map[string]api.HostState
}

// NewHostPoller creates a new host poller over listFunc.
func NewHostPoller(listFunc func(ctx context.Context, opts *api.ListHostsOptions) (*api.HostList, error)) *HostPoller {
	return &HostPoller{
		listFunc:     listFunc,
		pollInterval: DefaultPollInterval,
		bufferSize:   100,
		hostStates:   make(map[string]api.HostState),
	}
}

// WithPollInterval sets a custom poll interval.
func (p *HostPoller) WithPollInterval(interval time.Duration) *HostPoller {
	p.pollInterval = interval
	return p
}

// WithBufferSize sets a custom buffer size for the event channel.
func (p *HostPoller) WithBufferSize(size int) *HostPoller {
	p.bufferSize = size
	return p
}

// Watch starts watching for host state changes.
func (p *HostPoller) Watch(ctx context.Context, opts *api.WatchHostsOptions) (<-chan api.HostEvent, error) {
	eventChan := make(chan api.HostEvent, p.bufferSize)

	if opts == nil {
		opts = &api.WatchHostsOptions{}
	}

	go p.pollLoop(ctx, opts, eventChan)

	return eventChan, nil
}

func (p *HostPoller) pollLoop(ctx context.Context, opts *api.WatchHostsOptions, eventChan chan<- api.HostEvent) {
	defer close(eventChan)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.performPoll(ctx, opts, eventChan, true)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.performPoll(ctx, opts, eventChan, false)
		}
	}
}

func (p *HostPoller) performPoll(ctx context.Context, opts *api.WatchHostsOptions, eventChan chan<- api.HostEvent, isInitial bool) {
	listOpts := &api.ListHostsOptions{States: opts.States}

	hostList, err := p.listFunc(ctx, listOpts)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, host := range hostList.Hosts {
		host := host

		if !matchesAny(host.Name, opts.Names) {
			continue
		}

		previousState, exists := p.hostStates[host.Name]

		if !exists {
			p.hostStates[host.Name] = host.State
			if !isInitial {
				hostCopy := host
				eventChan <- api.HostEvent{
					EventType: "host_new",
					HostName:  host.Name,
					NewState:  host.State,
					EventTime: time.Now(),
					Host:      &hostCopy,
				}
			}
		} else if previousState != host.State {
			p.hostStates[host.Name] = host.State
			hostCopy := host
			eventChan <- api.HostEvent{
				EventType:     "host_state_change",
				HostName:      host.Name,
				PreviousState: previousState,
				NewState:      host.State,
				EventTime:     time.Now(),
				Host:          &hostCopy,
			}
		}
	}
}

// QueuePoller diffs successive queue-inventory snapshots into QueueEvents.
type QueuePoller struct {
	listFunc     func(ctx context.Context, opts *api.ListQueuesOptions) (*api.QueueList, error)
	pollInterval time.Duration
	bufferSize   int
	mu           sync.RWMutex
	queueStates  map[string]api.QueueState
}

// NewQueuePoller creates a new queue poller over listFunc.
func NewQueuePoller(listFunc func(ctx context.Context, opts *api.ListQueuesOptions) (*api.QueueList, error)) *QueuePoller {
	return &QueuePoller{
		listFunc:     listFunc,
		pollInterval: DefaultPollInterval,
		bufferSize:   100,
		queueStates:  make(map[string]api.QueueState),
	}
}

// WithPollInterval sets a custom poll interval.
func (p *QueuePoller) WithPollInterval(interval time.Duration) *QueuePoller {
	p.pollInterval = interval
	return p
}

// WithBufferSize sets a custom buffer size for the event channel.
func (p *QueuePoller) WithBufferSize(size int) *QueuePoller {
	p.bufferSize = size
	return p
}

// Watch starts watching for queue state changes.
func (p *QueuePoller) Watch(ctx context.Context, opts *api.WatchQueuesOptions) (<-chan api.QueueEvent, error) {
	eventChan := make(chan api.QueueEvent, p.bufferSize)

	if opts == nil {
		opts = &api.WatchQueuesOptions{}
	}

	go p.pollLoop(ctx, opts, eventChan)

	return eventChan, nil
}

func (p *QueuePoller) pollLoop(ctx context.Context, opts *api.WatchQueuesOptions, eventChan chan<- api.QueueEvent) {
	defer close(eventChan)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.performPoll(ctx, opts, eventChan, true)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.performPoll(ctx, opts, eventChan, false)
		}
	}
}

func (p *QueuePoller) performPoll(ctx context.Context, opts *api.WatchQueuesOptions, eventChan chan<- api.QueueEvent, isInitial bool) {
	queueList, err := p.listFunc(ctx, &api.ListQueuesOptions{})
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, queue := range queueList.Queues {
		queue := queue

		if !matchesAny(queue.Name, opts.Names) {
			continue
		}

		previousState, exists := p.queueStates[queue.Name]

		if !exists {
			p.queueStates[queue.Name] = queue.State
			if !isInitial {
				queueCopy := queue
				eventChan <- api.QueueEvent{
					EventType: "queue_new",
					QueueName: queue.Name,
					NewState:  queue.State,
					EventTime: time.Now(),
					Queue:     &queueCopy,
				}
			}
		} else if previousState != queue.State {
			p.queueStates[queue.Name] = queue.State
			queueCopy := queue
			eventChan <- api.QueueEvent{
				EventType:     "queue_state_change",
				QueueName:     queue.Name,
				PreviousState: previousState,
				NewState:      queue.State,
				EventTime:     time.Now(),
				Queue:         &queueCopy,
			}
		}
	}
}
