// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"github.com/clusterbatch/batchsched/internal/job"
	"github.com/clusterbatch/batchsched/pkg/list"
)

// jobLists tracks the master's three job lists — pending (PJL), running
// (SJL), and suspended — as pkg/list.List instances over job ids, plus
// a side table recording which list element currently holds each job
// id so a job can be relocated between lists in O(1) without a linear
// search. This mirrors Design Notes §9's "weak references resolved
// through the primary job map": the lists never hold *job.Job
// pointers, only ids.
type jobLists struct {
	pjl       *list.List[job.ID]
	sjl       *list.List[job.ID]
	suspended *list.List[job.ID]

	elements map[job.ID]*list.Element[job.ID]
	owner    map[job.ID]*list.List[job.ID]
}

func newJobLists() *jobLists {
	return &jobLists{
		pjl:       list.New[job.ID](),
		sjl:       list.New[job.ID](),
		suspended: list.New[job.ID](),
		elements:  make(map[job.ID]*list.Element[job.ID]),
		owner:     make(map[job.ID]*list.List[job.ID]),
	}
}

// priorityOf resolves a job id to its queue's dispatch priority via
// lookup, breaking ties by submit time (older first). A priorityLookup
// returning false means the job is unknown and sorts last.
type priorityLookup func(id job.ID) (priority int32, submitTime int64, ok bool)

// insertPending inserts id into the PJL keeping it sorted so that
// walking backward yields descending queue priority, and within a
// priority band the oldest submission is nearest the back — spec.md
// §4.2's "descending dispatch priority (by queue priority then job
// age)" contract, and Design Notes §9's "priority ordering trick".
func (jl *jobLists) insertPending(id job.ID, lookup priorityLookup) {
	newPrio, newSubmit, _ := lookup(id)

	cur := jl.pjl.StartForward()
	for !cur.AtEnd() {
		existing := cur.Current().Value
		exPrio, exSubmit, _ := lookup(existing)

		before := newPrio < exPrio || (newPrio == exPrio && newSubmit > exSubmit)
		if before {
			e := jl.pjl.InsertBefore(cur.Current(), id)
			jl.elements[id] = e
			jl.owner[id] = jl.pjl
			return
		}
		cur.Advance()
	}
	e := jl.pjl.PushBack(id)
	jl.elements[id] = e
	jl.owner[id] = jl.pjl
}

// moveTo relocates id from whichever list currently holds it (if any)
// to the back of dst.
func (jl *jobLists) moveTo(id job.ID, dst *list.List[job.ID]) {
	jl.remove(id)
	e := dst.PushBack(id)
	jl.elements[id] = e
	jl.owner[id] = dst
}

// remove unlinks id from whichever list holds it. It is a no-op if id
// is not currently tracked.
func (jl *jobLists) remove(id job.ID) {
	e, ok := jl.elements[id]
	if !ok {
		return
	}
	owner := jl.owner[id]
	owner.Remove(e)
	delete(jl.elements, id)
	delete(jl.owner, id)
}

// pendingDescending returns pending job ids in descending dispatch
// priority order (highest priority first) — the order both dispatch
// and the elector's trigger scan want.
func (jl *jobLists) pendingDescending() []job.ID {
	out := make([]job.ID, 0, jl.pjl.NumEntries())
	cur := jl.pjl.StartBackward()
	for !cur.AtEnd() {
		out = append(out, cur.Current().Value)
		cur.Advance()
	}
	return out
}

// running returns every job id currently in the SJL, in no particular
// order.
func (jl *jobLists) running() []job.ID {
	out := make([]job.ID, 0, jl.sjl.NumEntries())
	cur := jl.sjl.StartForward()
	for !cur.AtEnd() {
		out = append(out, cur.Current().Value)
		cur.Advance()
	}
	return out
}
