// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package config loads daemon configuration from environment variables,
// following the naming and override precedence of the environment
// variables named in spec.md §6.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration shared across mbatchd, sbatchd, and
// blaunch. Each daemon reads only the fields relevant to it.
type Config struct {
	// JobID is the job this process is acting on behalf of (LSB_JOBID).
	// Set by sbatchd before exec'ing a task, and by blaunch on the task
	// side when it aggregates rusage back up.
	JobID string

	// BlaunchSleepTime is the interval blaunch waits between polling a
	// remote task for completion (LSB_BLAUNCH_SLEEPTIME).
	BlaunchSleepTime time.Duration

	// SBDFinishSleep is how long sbatchd waits after a job's last task
	// exits before tearing down its run-window reservation
	// (LSB_SBD_FINISH_SLEEP).
	SBDFinishSleep time.Duration

	// LogDir is the directory daemons write their log files to
	// (LSF_LOGDIR).
	LogDir string

	// LogMask is the minimum log level, using syslog-style names (debug,
	// info, warning, error) (LSF_LOG_MASK).
	LogMask string

	// ShortHostList is loaded from LSB_SHORT_HOSTLIST and stored; nothing
	// in this module reads it, so no output is shortened on its account.
	ShortHostList bool

	// TickInterval is how often mbatchd's scheduling loop runs.
	TickInterval time.Duration

	// MaxPreemptJobs bounds how many jobs the preemption elector may
	// select as victims in a single scheduling tick.
	MaxPreemptJobs int

	// PreemptableResources lists the resource kinds eligible to trigger
	// preemption (e.g. "slots", "mem").
	PreemptableResources []string

	// MaxSameExitStreak is the number of consecutive exits of the
	// mbatchd master with the same exit code at which sbatchd's
	// MasterSupervisor stops restarting it.
	MaxSameExitStreak int
}

// NewDefault creates a new configuration with default values.
func NewDefault() *Config {
	return &Config{
		JobID:                getEnvOrDefault("LSB_JOBID", ""),
		BlaunchSleepTime:     getEnvDurationOrDefault("LSB_BLAUNCH_SLEEPTIME", 10*time.Second),
		SBDFinishSleep:       getEnvDurationOrDefault("LSB_SBD_FINISH_SLEEP", 1*time.Second),
		LogDir:               getEnvOrDefault("LSF_LOGDIR", "/tmp"),
		LogMask:              getEnvOrDefault("LSF_LOG_MASK", "info"),
		ShortHostList:        getEnvBoolOrDefault("LSB_SHORT_HOSTLIST", false),
		TickInterval:         10 * time.Second,
		MaxPreemptJobs:       5,
		PreemptableResources: []string{"slots"},
		MaxSameExitStreak:    150,
	}
}

// Load overlays environment variables onto an existing configuration,
// leaving fields unset in the environment untouched.
func (c *Config) Load() {
	if jobID := os.Getenv("LSB_JOBID"); jobID != "" {
		c.JobID = jobID
	}

	if d := os.Getenv("LSB_BLAUNCH_SLEEPTIME"); d != "" {
		if parsed, err := time.ParseDuration(d); err == nil {
			c.BlaunchSleepTime = parsed
		}
	}

	if d := os.Getenv("LSB_SBD_FINISH_SLEEP"); d != "" {
		if parsed, err := time.ParseDuration(d); err == nil {
			c.SBDFinishSleep = parsed
		}
	}

	if logDir := os.Getenv("LSF_LOGDIR"); logDir != "" {
		c.LogDir = logDir
	}

	if logMask := os.Getenv("LSF_LOG_MASK"); logMask != "" {
		c.LogMask = logMask
	}

	c.ShortHostList = getEnvBoolOrDefault("LSB_SHORT_HOSTLIST", c.ShortHostList)

	if maxPreempt := os.Getenv("BATCHSCHED_MAX_PREEMPT_JOBS"); maxPreempt != "" {
		if i, err := strconv.Atoi(maxPreempt); err == nil {
			c.MaxPreemptJobs = i
		}
	}

	if tick := os.Getenv("BATCHSCHED_TICK_INTERVAL"); tick != "" {
		if parsed, err := time.ParseDuration(tick); err == nil {
			c.TickInterval = parsed
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return ErrInvalidTickInterval
	}

	if c.MaxPreemptJobs < 0 {
		return ErrInvalidMaxPreemptJobs
	}

	if c.MaxSameExitStreak <= 0 {
		return ErrInvalidExitStreak
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
