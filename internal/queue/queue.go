// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package queue implements the master's queue registry: queue
// configuration, the preemptable-queue ordering used by the elector,
// and the aggregate run/pend/suspend counters spec.md §3 names.
package queue

import (
	"fmt"
	"sync"

	"github.com/clusterbatch/batchsched/api"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Queue is one scheduling queue's configuration and live counters.
type Queue struct {
	Name     string
	Priority int32

	// Preemptable is the ordered list of lower-priority queues this
	// queue's jobs may victimise, walked in this order by the elector
	// (spec.md §4.2 step 3).
	Preemptable []string

	// ResourceRequirement is an optional expression string constraining
	// which resources this queue's jobs may consume; interpreted by
	// internal/sched, opaque here.
	ResourceRequirement string

	NumRun   int
	NumPend  int
	NumSusp  int

	Closed bool
}

// Snapshot renders q as the read-only api.Queue exposed externally.
func (q *Queue) Snapshot(hosts []string) api.Queue {
	state := api.QueueStateOpenActive
	if q.Closed {
		state = api.QueueStateClosedActive
	}
	return api.Queue{
		Name:         q.Name,
		State:        state,
		Priority:     q.Priority,
		Preemptable:  append([]string(nil), q.Preemptable...),
		Hosts:        append([]string(nil), hosts...),
		NumPending:   q.NumPend,
		NumRunning:   q.NumRun,
		NumSuspended: q.NumSusp,
	}
}

// Registry is the master's lookup-by-name table of configured queues,
// matched case-insensitively the way the teacher's manager layer
// matches resource names (strings.EqualFold there; here via
// golang.org/x/text/collate since queue names may include non-ASCII
// site-local naming conventions).
type Registry struct {
	mu      sync.RWMutex
	queues  map[string]*Queue
	collate *collate.Collator
}

// NewRegistry returns an empty queue registry.
func NewRegistry() *Registry {
	return &Registry{
		queues:  make(map[string]*Queue),
		collate: collate.New(language.Und, collate.IgnoreCase),
	}
}

// Add registers a new queue. It returns an error if a queue of the
// same name (case-insensitively) already exists.
func (r *Registry) Add(q *Queue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, _, exists := r.lookupLocked(q.Name); exists {
		return fmt.Errorf("queue: %q already registered", q.Name)
	}
	r.queues[q.Name] = q
	return nil
}

// Get returns the queue named name (case-insensitive), or nil if none
// is registered.
func (r *Registry) Get(name string) *Queue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, q, _ := r.lookupLocked(name)
	return q
}

func (r *Registry) lookupLocked(name string) (string, *Queue, bool) {
	for key, q := range r.queues {
		if r.collate.CompareString(key, name) == 0 {
			return key, q, true
		}
	}
	return "", nil, false
}

// All returns every registered queue, ordered by descending priority
// (ties broken by name) — the order the elector's preemptive-queue
// scan and the admin HTTP listing both want.
func (r *Registry) All() []*Queue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Queue, 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, q)
	}
	sortQueuesByPriorityDesc(out)
	return out
}

func sortQueuesByPriorityDesc(qs []*Queue) {
	for i := 1; i < len(qs); i++ {
		for j := i; j > 0; j-- {
			if less(qs[j], qs[j-1]) {
				qs[j], qs[j-1] = qs[j-1], qs[j]
			} else {
				break
			}
		}
	}
}

func less(a, b *Queue) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Name < b.Name
}
