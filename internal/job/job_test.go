// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"testing"

	"github.com/clusterbatch/batchsched/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_String(t *testing.T) {
	assert.Equal(t, "101", ID{Base: 101}.String())
	assert.Equal(t, "101[4]", ID{Base: 101, ArrayIndex: 4}.String())
}

func TestID_IsArrayElement(t *testing.T) {
	assert.False(t, ID{Base: 1}.IsArrayElement())
	assert.True(t, ID{Base: 1, ArrayIndex: 1}.IsArrayElement())
}

func TestStatusFlag_Dominant(t *testing.T) {
	assert.Equal(t, StatusPend, StatusFlag(StatusPend).Dominant())
	assert.Equal(t, StatusRun, (StatusRun | StatusSSusp).Dominant())
	assert.Equal(t, StatusDone, StatusFlag(StatusDone).Dominant())
	assert.Equal(t, StatusExit, StatusFlag(StatusExit).Dominant())
}

func TestStatusFlag_Dominant_PanicsOnViolation(t *testing.T) {
	assert.Panics(t, func() { StatusFlag(0).Dominant() })
	assert.Panics(t, func() { (StatusPend | StatusRun).Dominant() })
}

func TestStatusFlag_Has(t *testing.T) {
	s := StatusRun | StatusSignal
	assert.True(t, s.Has(StatusRun))
	assert.True(t, s.Has(StatusSignal))
	assert.False(t, s.Has(StatusDone))
}

func TestStatusFlag_Suspended(t *testing.T) {
	assert.True(t, (StatusRun | StatusSSusp).Suspended())
	assert.True(t, (StatusRun | StatusUSusp).Suspended())
	assert.False(t, StatusFlag(StatusRun).Suspended())
}

func TestStatusFlag_SetSuspended(t *testing.T) {
	s := StatusFlag(StatusRun).SetSuspended()
	assert.True(t, s.Has(StatusRun))
	assert.True(t, s.Has(StatusSSusp))
}

func TestStatusFlag_ClearSuspended(t *testing.T) {
	s := (StatusRun | StatusSSusp).ClearSuspended()
	assert.Equal(t, StatusRun, s.Dominant())
	assert.False(t, s.Suspended())
}

func TestStatusFlag_WithDominant(t *testing.T) {
	s := StatusFlag(StatusPend).WithDominant(StatusRun)
	assert.Equal(t, StatusRun, s.Dominant())
}

func TestStatusFlag_String(t *testing.T) {
	assert.Equal(t, "NONE", StatusFlag(0).String())
	assert.Equal(t, "RUN|SSUSP", (StatusRun | StatusSSusp).String())
	assert.Equal(t, "PEND", StatusFlag(StatusPend).String())
}

func TestResourceVector_Clone(t *testing.T) {
	v := ResourceVector{ResourceSlots: 4}
	clone := v.Clone()
	clone[ResourceSlots] = 8
	assert.Equal(t, float64(4), v[ResourceSlots])
	assert.Equal(t, float64(8), clone[ResourceSlots])

	var nilVec ResourceVector
	assert.Nil(t, nilVec.Clone())
}

func TestResourceVector_Add(t *testing.T) {
	a := ResourceVector{ResourceSlots: 4, ResourceMem: 100}
	b := ResourceVector{ResourceSlots: 2, ResourceCPU: 1}
	sum := a.Add(b)

	assert.Equal(t, float64(6), sum[ResourceSlots])
	assert.Equal(t, float64(100), sum[ResourceMem])
	assert.Equal(t, float64(1), sum[ResourceCPU])
	assert.Equal(t, float64(4), a[ResourceSlots], "Add must not mutate the receiver")
}

func TestJob_ClearPreemption(t *testing.T) {
	j := &Job{Status: StatusFlag(StatusRun).SetSuspended()}
	j.MarkPreempted(ID{Base: 9}, []string{"h1", "h2"})

	require.False(t, j.HasPreemptedByZero())
	assert.Equal(t, []string{"h1", "h2"}, j.PreemptedHosts)
	assert.True(t, j.Status.Suspended())

	j.ClearPreemption()

	assert.True(t, j.HasPreemptedByZero())
	assert.Nil(t, j.PreemptedHosts)
	assert.False(t, j.Status.Suspended())
	assert.Equal(t, StatusRun, j.Status.Dominant())
}

func TestJob_MarkPreempted_DoesNotAliasHostSlice(t *testing.T) {
	hosts := []string{"h1", "h2"}
	j := &Job{Status: StatusFlag(StatusRun)}
	j.MarkPreempted(ID{Base: 1}, hosts)

	hosts[0] = "mutated"
	assert.Equal(t, "h1", j.PreemptedHosts[0])
}

func TestJob_Snapshot(t *testing.T) {
	j := &Job{
		ID:     ID{Base: 42},
		Spec:   Spec{Queue: "normal", User: "alice", Command: "/bin/true"},
		Status: StatusFlag(StatusRun),
		Hosts:  []string{"node01", "node02"},
		Usage:  ResourceVector{ResourceSlots: 2},
	}

	snap := j.Snapshot()

	assert.Equal(t, "42", snap.ID)
	assert.Equal(t, "normal", snap.Queue)
	assert.Equal(t, "alice", snap.User)
	assert.Equal(t, api.JobStateRunning, snap.State)
	assert.Equal(t, "node01", snap.Host)
	assert.Equal(t, float64(2), snap.Used["slots"])
	assert.Empty(t, snap.PreemptedBy)
}

func TestJob_Snapshot_Preempted(t *testing.T) {
	j := &Job{ID: ID{Base: 1}, Status: StatusFlag(StatusRun)}
	j.MarkPreempted(ID{Base: 99}, []string{"h1"})

	snap := j.Snapshot()

	assert.Equal(t, api.JobStateSSuspend, snap.State)
	assert.Equal(t, "99", snap.PreemptedBy)
}

func TestStatusFlag_ToAPIState(t *testing.T) {
	cases := []struct {
		status StatusFlag
		want   api.JobState
	}{
		{StatusFlag(StatusPend), api.JobStatePending},
		{StatusFlag(StatusPend) | StatusPSusp, api.JobStatePSuspend},
		{StatusFlag(StatusRun), api.JobStateRunning},
		{StatusFlag(StatusRun) | StatusSSusp, api.JobStateSSuspend},
		{StatusFlag(StatusRun) | StatusUSusp, api.JobStateUSuspend},
		{StatusFlag(StatusDone), api.JobStateDone},
		{StatusFlag(StatusExit), api.JobStateExit},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.status.ToAPIState())
	}
}
