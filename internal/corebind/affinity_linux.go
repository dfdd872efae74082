// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package corebind

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// UnixAffinitySetter applies CPU affinity through the Linux
// sched_setaffinity/sched_getaffinity syscalls.
type UnixAffinitySetter struct{}

// NewUnixAffinitySetter returns the Linux affinity backend.
func NewUnixAffinitySetter() *UnixAffinitySetter {
	return &UnixAffinitySetter{}
}

// SetAffinity pins pid to exactly the given core ids.
func (UnixAffinitySetter) SetAffinity(pid int, cores []int) error {
	var set unix.CPUSet
	set.Zero()
	for _, c := range cores {
		set.Set(c)
	}
	if err := unix.SchedSetaffinity(pid, &set); err != nil {
		return fmt.Errorf("sched_setaffinity(pid=%d): %w", pid, err)
	}
	return nil
}

// GetAffinity reads the core ids currently bound to pid.
func (UnixAffinitySetter) GetAffinity(pid int) ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(pid, &set); err != nil {
		return nil, fmt.Errorf("sched_getaffinity(pid=%d): %w", pid, err)
	}

	var cores []int
	for i := 0; i < maxProbedCores; i++ {
		if set.IsSet(i) {
			cores = append(cores, i)
		}
	}
	return cores, nil
}

// maxProbedCores bounds the cpu-number probe in GetAffinity. Linux's
// CPUSet is a fixed-size bitmap (1024 bits in the x/sys representation),
// so probing its full width is always safe and cheap.
const maxProbedCores = 1024
