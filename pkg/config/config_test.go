// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	require.NotNil(t, cfg)
	assert.False(t, cfg.ShortHostList)
	assert.Equal(t, "info", cfg.LogMask)
	assert.Equal(t, "/tmp", cfg.LogDir)

	assert.Greater(t, cfg.TickInterval, time.Duration(0))
	assert.Positive(t, cfg.MaxPreemptJobs)
	assert.Positive(t, cfg.MaxSameExitStreak)
	assert.Greater(t, cfg.BlaunchSleepTime, time.Duration(0))
	assert.Greater(t, cfg.SBDFinishSleep, time.Duration(0))
	assert.Equal(t, []string{"slots"}, cfg.PreemptableResources)
}

func TestConfigLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected func(*testing.T, *Config)
	}{
		{
			name:    "job id from environment",
			envVars: map[string]string{"LSB_JOBID": "101"},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "101", cfg.JobID)
			},
		},
		{
			name:    "blaunch sleep time from environment",
			envVars: map[string]string{"LSB_BLAUNCH_SLEEPTIME": "5s"},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 5*time.Second, cfg.BlaunchSleepTime)
			},
		},
		{
			name:    "sbd finish sleep from environment",
			envVars: map[string]string{"LSB_SBD_FINISH_SLEEP": "3s"},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 3*time.Second, cfg.SBDFinishSleep)
			},
		},
		{
			name:    "log dir from environment",
			envVars: map[string]string{"LSF_LOGDIR": "/var/log/batchsched"},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/var/log/batchsched", cfg.LogDir)
			},
		},
		{
			name:    "log mask from environment",
			envVars: map[string]string{"LSF_LOG_MASK": "debug"},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.LogMask)
			},
		},
		{
			name:    "short hostlist from environment",
			envVars: map[string]string{"LSB_SHORT_HOSTLIST": "true"},
			expected: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.ShortHostList)
			},
		},
		{
			name:    "max preempt jobs from environment",
			envVars: map[string]string{"BATCHSCHED_MAX_PREEMPT_JOBS": "10"},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 10, cfg.MaxPreemptJobs)
			},
		},
		{
			name:    "tick interval from environment",
			envVars: map[string]string{"BATCHSCHED_TICK_INTERVAL": "30s"},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 30*time.Second, cfg.TickInterval)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg := NewDefault()
			cfg.Load()

			require.NotNil(t, cfg)
			tt.expected(t, cfg)
		})
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		config      *Config
		expectError bool
		expectedErr error
	}{
		{
			name: "valid config",
			config: &Config{
				TickInterval:      10 * time.Second,
				MaxPreemptJobs:    5,
				MaxSameExitStreak: 150,
			},
			expectError: false,
		},
		{
			name: "zero tick interval",
			config: &Config{
				TickInterval:      0,
				MaxPreemptJobs:    5,
				MaxSameExitStreak: 150,
			},
			expectError: true,
			expectedErr: ErrInvalidTickInterval,
		},
		{
			name: "negative max preempt jobs",
			config: &Config{
				TickInterval:      10 * time.Second,
				MaxPreemptJobs:    -1,
				MaxSameExitStreak: 150,
			},
			expectError: true,
			expectedErr: ErrInvalidMaxPreemptJobs,
		},
		{
			name: "zero max same exit streak",
			config: &Config{
				TickInterval:      10 * time.Second,
				MaxPreemptJobs:    5,
				MaxSameExitStreak: 0,
			},
			expectError: true,
			expectedErr: ErrInvalidExitStreak,
		},
		{
			name: "zero max preempt jobs is valid",
			config: &Config{
				TickInterval:      10 * time.Second,
				MaxPreemptJobs:    0,
				MaxSameExitStreak: 150,
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()

			if tt.expectError {
				assert.Error(t, err)
				if tt.expectedErr != nil {
					assert.Equal(t, tt.expectedErr, err)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigMutation(t *testing.T) {
	cfg := NewDefault()

	cfg.JobID = "202"
	assert.Equal(t, "202", cfg.JobID)

	cfg.TickInterval = 60 * time.Second
	assert.Equal(t, 60*time.Second, cfg.TickInterval)

	cfg.MaxPreemptJobs = 8
	assert.Equal(t, 8, cfg.MaxPreemptJobs)

	cfg.ShortHostList = true
	assert.True(t, cfg.ShortHostList)
}

func TestConfigDefaults(t *testing.T) {
	cfg := NewDefault()

	assert.Equal(t, "", cfg.JobID)
	assert.Equal(t, 10*time.Second, cfg.TickInterval)
	assert.Equal(t, 5, cfg.MaxPreemptJobs)
	assert.Equal(t, 150, cfg.MaxSameExitStreak)
	assert.Equal(t, "info", cfg.LogMask)
	assert.False(t, cfg.ShortHostList)
}
