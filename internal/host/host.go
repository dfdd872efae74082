// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package host implements the master's host inventory: per-host core
// count and slot tracking, and the registry the scheduler matches
// pending jobs against.
package host

import (
	"fmt"
	"sync"

	"github.com/clusterbatch/batchsched/api"
	"github.com/clusterbatch/batchsched/internal/job"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Host is the master's view of one execution host: its total slot
// (core) count and how many are currently free.
type Host struct {
	Name      string
	Queues    []string
	NumCores  int
	FreeCores int
	Used      job.ResourceVector

	Unavailable bool
}

// Snapshot renders h as the read-only api.Host exposed externally.
func (h *Host) Snapshot() api.Host {
	state := api.HostStateOK
	switch {
	case h.Unavailable:
		state = api.HostStateUnavail
	case h.FreeCores == 0:
		state = api.HostStateBusy
	}
	used := make(api.ResourceVector, len(h.Used))
	for k, v := range h.Used {
		used[string(k)] = v
	}
	return api.Host{
		Name:      h.Name,
		State:     state,
		Queues:    append([]string(nil), h.Queues...),
		NumCores:  h.NumCores,
		FreeCores: h.FreeCores,
		Used:      used,
	}
}

// Registry is the master's lookup-by-name table of execution hosts.
type Registry struct {
	mu      sync.RWMutex
	hosts   map[string]*Host
	collate *collate.Collator
}

// NewRegistry returns an empty host registry.
func NewRegistry() *Registry {
	return &Registry{
		hosts:   make(map[string]*Host),
		collate: collate.New(language.Und, collate.IgnoreCase),
	}
}

// Add registers a new host.
func (r *Registry) Add(h *Host) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.lookupLocked(h.Name); exists {
		return fmt.Errorf("host: %q already registered", h.Name)
	}
	r.hosts[h.Name] = h
	return nil
}

// Get returns the host named name (case-insensitive), or nil.
func (r *Registry) Get(name string) *Host {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, _ := r.lookupLocked(name)
	return h
}

func (r *Registry) lookupLocked(name string) (*Host, bool) {
	for key, h := range r.hosts {
		if r.collate.CompareString(key, name) == 0 {
			return h, true
		}
	}
	return nil, false
}

// All returns every registered host.
func (r *Registry) All() []*Host {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		out = append(out, h)
	}
	return out
}

// ReserveSlots decrements h's free core count by n, returning an error
// if fewer than n are free. It is the master's side of a dispatch;
// sbatchd's internal/corebind performs the matching CPU-affinity bind
// on the host itself.
func (h *Host) ReserveSlots(n int) error {
	if n > h.FreeCores {
		return fmt.Errorf("host %q: requested %d slots, %d free", h.Name, n, h.FreeCores)
	}
	h.FreeCores -= n
	return nil
}

// ReleaseSlots returns n previously reserved slots to the free pool,
// capped at NumCores so a double-release cannot overshoot.
func (h *Host) ReleaseSlots(n int) {
	h.FreeCores += n
	if h.FreeCores > h.NumCores {
		h.FreeCores = h.NumCores
	}
}
