// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package corebind implements per-host CPU-core binding: the bookkeeping
// that tracks which cores are free or bound to a task pid, the per-queue
// share reservation used at sbatchd startup, and the OS-level affinity
// call that makes a binding real.
//
// The bookkeeping (Table) is backend-agnostic and deterministic, so it
// is tested without touching the scheduler's own CPU affinity. The
// AffinitySetter seam is where a host's actual topology gets involved;
// the only shipped implementation is Linux cpuset-based, since that is
// the one platform sbatchd targets.
package corebind

import (
	"fmt"
	"sort"
	"sync"

	"github.com/clusterbatch/batchsched/pkg/logging"
)

// AffinitySetter applies or reads a process's CPU affinity mask. It is
// the substitution seam a NUMA-aware scheduler would replace; the only
// implementation shipped here is unix-syscall based (see
// affinity_linux.go).
type AffinitySetter interface {
	SetAffinity(pid int, cores []int) error
	GetAffinity(pid int) ([]int, error)
}

// CoreBinder is the interface internal/sbd supervises jobs through.
// find_free/bind/free/find_bound/get_core_shares, named for spec.md
// §4.3.3's procedure names.
type CoreBinder interface {
	FindFree(n int) ([]int, bool)
	Bind(pid int, cores []int) error
	Free(cores []int)
	FreeByPID(pid int)
	FindBound(pid int) ([]int, error)
	GetCoreShares(queue string, shares float64) ([]int, bool)
}

// core tracks one CPU core's binding state.
type core struct {
	id    int
	bound int // number of live bindings (pid bindings + share-table memberships) holding this core
}

type pidBinding struct {
	pid   int
	cores []int
}

type shareEntry struct {
	queue  string
	shares float64
	cores  []int
}

// Table is the host-local core-binding ledger. It owns no goroutines;
// every method is synchronous and safe for concurrent use.
type Table struct {
	mu sync.Mutex

	cores    []*core
	byPid    map[int]*pidBinding
	byQueue  map[string]*shareEntry
	affinity AffinitySetter
	logger   logging.Logger
}

// NewTable builds a Table over numCores cores, numbered 0..numCores-1.
// affinity may be nil, in which case bindings are tracked but no real
// syscall is made (used in tests and on hosts where binding is
// disabled).
func NewTable(numCores int, affinity AffinitySetter, logger logging.Logger) *Table {
	cores := make([]*core, numCores)
	for i := range cores {
		cores[i] = &core{id: i}
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Table{
		cores:    cores,
		byPid:    make(map[int]*pidBinding),
		byQueue:  make(map[string]*shareEntry),
		affinity: affinity,
		logger:   logger,
	}
}

// FindFree returns up to n free core ids, unbound and not reserved by
// any share-table entry. It does not mutate any binding state. ok is
// false if fewer than n cores are free; the returned slice in that case
// holds whatever was found, matching spec.md §4.3.3's "find_free may
// return fewer than requested" contract.
func (t *Table) FindFree(n int) ([]int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.findFreeLocked(n)
}

func (t *Table) findFreeLocked(n int) ([]int, bool) {
	var out []int
	for _, c := range t.cores {
		if c.bound == 0 {
			out = append(out, c.id)
			if len(out) == n {
				return out, true
			}
		}
	}
	return out, false
}

// Bind marks cores as bound to pid, incrementing each core's bound
// count and applying the real affinity mask if an AffinitySetter is
// configured. Binding the same pid twice replaces its prior binding.
func (t *Table) Bind(pid int, cores []int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prior, ok := t.byPid[pid]; ok {
		t.releaseCoresLocked(prior.cores)
	}

	for _, id := range cores {
		c, err := t.coreLocked(id)
		if err != nil {
			return err
		}
		c.bound++
	}
	t.byPid[pid] = &pidBinding{pid: pid, cores: append([]int(nil), cores...)}

	if t.affinity != nil {
		if err := t.affinity.SetAffinity(pid, cores); err != nil {
			return fmt.Errorf("corebind: set affinity for pid %d: %w", pid, err)
		}
	}
	return nil
}

// Free releases a binding identified either by the exact core set
// passed to Bind or by any subset tracked under a share-table entry.
// Cores not currently bound are ignored.
func (t *Table) Free(cores []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseCoresLocked(cores)
}

// FreeByPID releases whatever cores are bound to pid, if any.
func (t *Table) FreeByPID(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prior, ok := t.byPid[pid]
	if !ok {
		return
	}
	t.releaseCoresLocked(prior.cores)
	delete(t.byPid, pid)
}

func (t *Table) releaseCoresLocked(cores []int) {
	for _, id := range cores {
		if id < 0 || id >= len(t.cores) {
			continue
		}
		c := t.cores[id]
		if c.bound > 0 {
			c.bound--
		}
	}
}

func (t *Table) coreLocked(id int) (*core, error) {
	if id < 0 || id >= len(t.cores) {
		return nil, fmt.Errorf("corebind: core id %d out of range [0,%d)", id, len(t.cores))
	}
	return t.cores[id], nil
}

// FindBound returns the cores currently bound to pid. It consults the
// internal ledger first; if pid is not tracked there, it falls back to
// asking the AffinitySetter directly, matching spec.md §4.3.3's
// find_bound contract of working even for a pid this process did not
// itself bind.
func (t *Table) FindBound(pid int) ([]int, error) {
	t.mu.Lock()
	if b, ok := t.byPid[pid]; ok {
		cores := append([]int(nil), b.cores...)
		t.mu.Unlock()
		return cores, nil
	}
	affinity := t.affinity
	t.mu.Unlock()

	if affinity == nil {
		return nil, fmt.Errorf("corebind: pid %d not tracked and no affinity backend configured", pid)
	}
	return affinity.GetAffinity(pid)
}

// GetCoreShares reserves a block of cores for queue sized to its share
// of the host's total core count, per spec.md §4.3.3's exact procedure:
// deserve = ceil(shares * total); try find_free(deserve), then
// find_free(deserve-1), ... down to find_free(1); if nothing can be
// found the entry is not created. ok is false only when zero cores
// could be reserved. A non-empty but short allocation (actual <
// deserve) is still ok=true but is logged as a warning, matching
// "warn if actual < deserve" from the same section.
//
// Calling GetCoreShares again for a queue already holding a
// reservation releases the old one first, so shares can be
// re-balanced at runtime without leaking cores.
func (t *Table) GetCoreShares(queue string, shares float64) ([]int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prior, ok := t.byQueue[queue]; ok {
		t.releaseCoresLocked(prior.cores)
		delete(t.byQueue, queue)
	}

	total := len(t.cores)
	deserve := int(shares*float64(total) + 0.999999999)
	if deserve > total {
		deserve = total
	}
	if deserve <= 0 {
		return nil, false
	}

	var found []int
	var ok bool
	for want := deserve; want >= 1; want-- {
		found, ok = t.findFreeLocked(want)
		if ok {
			break
		}
	}
	if len(found) == 0 {
		return nil, false
	}

	for _, id := range found {
		t.cores[id].bound++
	}
	sort.Ints(found)
	t.byQueue[queue] = &shareEntry{queue: queue, shares: shares, cores: found}

	if len(found) < deserve {
		t.logger.Warn("queue core-share allocation short of deserved count",
			"queue", queue, "shares", shares, "deserved", deserve, "actual", len(found))
	}
	return found, true
}

// BoundCount returns how many live holds (pid bindings plus share-table
// memberships) are registered against core id. It exists for tests that
// assert the binder's core invariant: for every core, the bound count
// equals the number of live pid bindings unioned with the number of
// queue-share entries that include it.
func (t *Table) BoundCount(id int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.cores) {
		return 0
	}
	return t.cores[id].bound
}
