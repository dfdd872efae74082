// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package procharvest

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ProcfsReader enumerates /proc, the production ProcessReader.
type ProcfsReader struct {
	Root string // defaults to "/proc"
}

// NewProcfsReader returns a reader rooted at the standard /proc mount.
func NewProcfsReader() *ProcfsReader {
	return &ProcfsReader{Root: "/proc"}
}

// Processes reads every numeric /proc/<pid>/stat entry into a
// RawProcess. Processes that exit mid-scan are skipped rather than
// failing the whole enumeration, since /proc is inherently racy.
func (r *ProcfsReader) Processes() ([]RawProcess, error) {
	root := r.Root
	if root == "" {
		root = "/proc"
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("procharvest: read %s: %w", root, err)
	}

	var out []RawProcess
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		p, ok := readStat(root, pid)
		if !ok {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// readStat parses /proc/<pid>/stat. Field layout per proc(5); the comm
// field is parenthesized and may itself contain spaces, so fields are
// located relative to the last ')'.
func readStat(root string, pid int) (RawProcess, bool) {
	data, err := os.ReadFile(fmt.Sprintf("%s/%d/stat", root, pid))
	if err != nil {
		return RawProcess{}, false
	}

	s := string(data)
	close := strings.LastIndexByte(s, ')')
	if close < 0 {
		return RawProcess{}, false
	}
	fields := strings.Fields(s[close+1:])
	// fields[0] is state; ppid, pgid start at index 1, 2 in this
	// remainder (field numbers 4, 5 in the full stat line).
	if len(fields) < 22 {
		return RawProcess{}, false
	}

	ppid, _ := strconv.Atoi(fields[1])
	pgid, _ := strconv.Atoi(fields[2])
	utime, _ := strconv.ParseUint(fields[11], 10, 64)
	stime, _ := strconv.ParseUint(fields[12], 10, 64)
	vsize, _ := strconv.ParseUint(fields[20], 10, 64)
	rss, _ := strconv.ParseUint(fields[21], 10, 64)

	return RawProcess{
		PID:        pid,
		PPID:       ppid,
		PGID:       pgid,
		UTimeTicks: utime,
		STimeTicks: stime,
		VSizeBytes: vsize,
		RSSPages:   rss,
	}, true
}

// SystemPageSize returns the host's memory page size in bytes.
func SystemPageSize() uint64 {
	return uint64(unix.Getpagesize())
}

// SystemClockTicks returns CLK_TCK, the kernel's scheduling clock
// ticks per second, used to convert jiffies to seconds.
func SystemClockTicks() uint64 {
	// Linux fixes USER_HZ at 100 on every supported architecture;
	// sysconf(_SC_CLK_TCK) is not exposed by x/sys without cgo, so the
	// well-known constant is used directly.
	return 100
}
