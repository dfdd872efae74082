// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package config

import "errors"

var (
	// ErrInvalidTickInterval is returned when the scheduling tick interval is invalid.
	ErrInvalidTickInterval = errors.New("tick interval must be greater than 0")

	// ErrInvalidMaxPreemptJobs is returned when max preempt jobs is invalid.
	ErrInvalidMaxPreemptJobs = errors.New("max preempt jobs must be greater than or equal to 0")

	// ErrInvalidExitStreak is returned when the same-exit-code streak cap is invalid.
	ErrInvalidExitStreak = errors.New("max same exit streak must be greater than 0")
)
