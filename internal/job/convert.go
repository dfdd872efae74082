// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"github.com/clusterbatch/batchsched/api"
)

// ToAPIState maps a Job's dominant status (plus suspension) onto the
// coarser api.JobState vocabulary the admin HTTP surface and event
// feed expose externally.
func (s StatusFlag) ToAPIState() api.JobState {
	switch {
	case s.Has(StatusSSusp):
		return api.JobStateSSuspend
	case s.Has(StatusUSusp):
		return api.JobStateUSuspend
	case s.Has(StatusPSusp):
		return api.JobStatePSuspend
	}
	switch s.Dominant() {
	case StatusPend:
		return api.JobStatePending
	case StatusRun:
		return api.JobStateRunning
	case StatusDone:
		return api.JobStateDone
	case StatusExit:
		return api.JobStateExit
	default:
		return api.JobStateWait
	}
}

// Snapshot renders j as the read-only api.Job the admin HTTP surface
// and event feed hand to external watchers. It never aliases j's
// mutable slices/maps.
func (j *Job) Snapshot() api.Job {
	snap := api.Job{
		ID:            j.ID.String(),
		Queue:         j.Spec.Queue,
		User:          j.Spec.User,
		Command:       j.Spec.Command,
		State:         j.Status.ToAPIState(),
		Requested:     toAPIResourceVector(j.Spec.Limits),
		Used:          toAPIResourceVector(j.Usage),
		SubmitTime:    j.SubmitTime,
		PreemptedBy:   "",
	}
	if len(j.Hosts) > 0 {
		snap.Host = j.Hosts[0]
	}
	if !j.StartTime.IsZero() {
		t := j.StartTime
		snap.StartTime = &t
	}
	if !j.EndTime.IsZero() {
		t := j.EndTime
		snap.EndTime = &t
	}
	if !j.HasPreemptedByZero() {
		snap.PreemptedBy = j.PreemptedBy.String()
	}
	return snap
}

func toAPIResourceVector(v ResourceVector) api.ResourceVector {
	if v == nil {
		return nil
	}
	out := make(api.ResourceVector, len(v))
	for k, val := range v {
		out[string(k)] = val
	}
	return out
}
