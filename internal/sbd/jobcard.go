// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package sbd implements the per-host job daemon (SBD): the job-card
// registry, run-window gating, child reaping, and the master-liveness
// loop that supervises mbatchd as a child process.
package sbd

import (
	"sync"
	"time"

	"github.com/clusterbatch/batchsched/internal/job"
	"github.com/clusterbatch/batchsched/internal/procharvest"
)

// JobCard is the host-local record of one job sbatchd is supervising,
// per the data model's "Job card (host-local)" shape.
type JobCard struct {
	ID   job.ID
	Spec job.Spec

	Active bool // run-window gate state, see rungate.go
	WindEdge time.Time

	JobPid  int
	ExitPid int

	CollectedChild bool
	NotReported    bool
	NeedCheckFinish bool

	Rusage procharvest.Rusage

	LastWindowWarn time.Time
}

// Cards is the host-local job-card registry. Only the main loop may
// add or remove cards; the reap path (see reaper.go) only mutates the
// fields spec.md §5 marks safe on an existing card.
type Cards struct {
	mu    sync.Mutex
	byID  map[job.ID]*JobCard
	byPid map[int]*JobCard
}

// NewCards builds an empty job-card registry.
func NewCards() *Cards {
	return &Cards{byID: make(map[job.ID]*JobCard), byPid: make(map[int]*JobCard)}
}

// Add registers a new job card. It is the main loop's exclusive right
// per spec.md §5's concurrency model.
func (c *Cards) Add(card *JobCard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[card.ID] = card
	if card.JobPid != 0 {
		c.byPid[card.JobPid] = card
	}
}

// Remove deletes the card for id, if present.
func (c *Cards) Remove(id job.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	card, ok := c.byID[id]
	if !ok {
		return
	}
	delete(c.byID, id)
	delete(c.byPid, card.JobPid)
}

// Get returns the card for id, or nil.
func (c *Cards) Get(id job.ID) *JobCard {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byID[id]
}

// ByPid returns the card whose JobPid or ExitPid matches pid, or nil.
func (c *Cards) ByPid(pid int) *JobCard {
	c.mu.Lock()
	defer c.mu.Unlock()
	if card, ok := c.byPid[pid]; ok {
		return card
	}
	for _, card := range c.byID {
		if card.ExitPid == pid {
			return card
		}
	}
	return nil
}

// SetJobPid updates a card's JobPid and keeps the pid index in sync.
// Call only from the main loop.
func (c *Cards) SetJobPid(id job.ID, pid int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	card, ok := c.byID[id]
	if !ok {
		return
	}
	if card.JobPid != 0 {
		delete(c.byPid, card.JobPid)
	}
	card.JobPid = pid
	if pid != 0 {
		c.byPid[pid] = card
	}
}

// All returns every tracked card. Safe to call from the main loop only
// — the reap path must never iterate this list, per spec.md §9's
// "queue completion records on a bounded channel" guidance.
func (c *Cards) All() []*JobCard {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*JobCard, 0, len(c.byID))
	for _, card := range c.byID {
		out = append(out, card)
	}
	return out
}
