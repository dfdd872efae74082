// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package procharvest walks a job's process tree and aggregates its
// resource usage, and provides the compact_rusage aggregate sent by
// blaunch back to sbatchd for a job's running tasks.
package procharvest

// PidInfo identifies one live process counted into a Rusage.
type PidInfo struct {
	PID  int
	PPID int
	PGID int
}

// Rusage is the normalized resource-usage snapshot for a job or task,
// following spec.md §4.5's field set: memory and swap in fixed units,
// accumulated CPU time in seconds, and the set of processes and process
// groups the snapshot was built from.
type Rusage struct {
	MemKB  float64
	SwapKB float64
	UTimeS float64
	STimeS float64

	Pids  []PidInfo
	Pgids []int
}

// CompactRusage aggregates a slice of independently-collected Rusage
// snapshots into one, summing the numeric fields and concatenating the
// pid/pgid records without deduplication. This is the per-task
// aggregate blaunch sends to sbatchd (spec.md §4.4's aggregate-send
// step); unlike Harvest's own internal aggregation, it must preserve
// the multiset of records exactly, since each input snapshot already
// names a disjoint task.
func CompactRusage(usages []Rusage) Rusage {
	var out Rusage
	for _, u := range usages {
		out.MemKB += u.MemKB
		out.SwapKB += u.SwapKB
		out.UTimeS += u.UTimeS
		out.STimeS += u.STimeS
		out.Pids = append(out.Pids, u.Pids...)
		out.Pgids = append(out.Pgids, u.Pgids...)
	}
	return out
}
