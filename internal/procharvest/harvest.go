// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package procharvest

import "os"

// RawProcess is one process table entry as read from the OS, before
// unit normalization.
type RawProcess struct {
	PID, PPID, PGID int
	UTimeTicks      uint64
	STimeTicks      uint64
	VSizeBytes      uint64
	RSSPages        uint64
}

// ProcessReader enumerates the OS process table. The production
// implementation (ProcfsReader) reads /proc; tests substitute a fixed
// table to exercise Harvest's selection and aggregation logic without
// depending on the host's real process tree.
type ProcessReader interface {
	Processes() ([]RawProcess, error)
}

// Harvester computes a job's aggregate resource usage by walking its
// process tree, per spec.md §4.5.
type Harvester struct {
	reader   ProcessReader
	pageSize uint64
	clkTck   uint64
}

// NewHarvester builds a Harvester over reader, normalizing raw process
// entries using the given memory page size (bytes) and clock ticks per
// second.
func NewHarvester(reader ProcessReader, pageSizeBytes, clkTck uint64) *Harvester {
	if pageSizeBytes == 0 {
		pageSizeBytes = 4096
	}
	if clkTck == 0 {
		clkTck = 100
	}
	return &Harvester{reader: reader, pageSize: pageSizeBytes, clkTck: clkTck}
}

type normalized struct {
	RawProcess
	vsizeMB float64
	rssKB   float64
	utimeS  float64
	stimeS  float64
}

func (h *Harvester) normalize(p RawProcess) normalized {
	return normalized{
		RawProcess: p,
		vsizeMB:    float64(p.VSizeBytes) / 1048576,
		rssKB:      ceilDiv(p.RSSPages*h.pageSize, 1024),
		utimeS:     float64(p.UTimeTicks) / float64(h.clkTck),
		stimeS:     float64(p.STimeTicks) / float64(h.clkTck),
	}
}

func ceilDiv(n, d uint64) float64 {
	if d == 0 {
		return 0
	}
	return float64((n + d - 1) / d)
}

// Harvest computes the aggregate Rusage for pid P: P itself, its direct
// children, and anyone sharing a process group with P or a child are
// included; the harvesting process itself is always left out,
// following spec.md §4.5 steps 1-4 exactly.
func (h *Harvester) Harvest(p int) (Rusage, error) {
	raws, err := h.reader.Processes()
	if err != nil {
		return Rusage{}, err
	}

	all := make([]normalized, len(raws))
	for i, r := range raws {
		all[i] = h.normalize(r)
	}

	self := os.Getpid()
	wanted := make(map[int]normalized)
	for _, n := range all {
		if n.PID == self {
			continue
		}
		if n.PID == p || n.PPID == p {
			wanted[n.PID] = n
		}
	}

	wantedPgids := make(map[int]struct{})
	for _, n := range wanted {
		wantedPgids[n.PGID] = struct{}{}
	}

	detached := make(map[int]normalized)
	for pgid := range wantedPgids {
		for _, n := range all {
			if n.PID == self {
				continue
			}
			if _, isWanted := wanted[n.PID]; isWanted {
				continue
			}
			if n.PGID == pgid {
				detached[n.PID] = n
			}
		}
	}

	var out Rusage
	pgidSet := make(map[int]struct{})
	add := func(n normalized) {
		out.MemKB += n.rssKB
		out.SwapKB += n.vsizeMB * 1024
		out.UTimeS += n.utimeS
		out.STimeS += n.stimeS
		out.Pids = append(out.Pids, PidInfo{PID: n.PID, PPID: n.PPID, PGID: n.PGID})
		pgidSet[n.PGID] = struct{}{}
	}
	for _, n := range wanted {
		add(n)
	}
	for _, n := range detached {
		add(n)
	}
	for pgid := range pgidSet {
		out.Pgids = append(out.Pgids, pgid)
	}

	return out, nil
}
