// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"math"

	"github.com/clusterbatch/batchsched/internal/job"
	"github.com/clusterbatch/batchsched/internal/queue"
)

// Pend-reason codes recorded on a job while it is blocked, consulted
// by the elector's eligibility predicate (spec.md §4.2 step 2).
const (
	ReasonNoFreeSlots     = "no_free_slots"
	ReasonHostQueueRusage = "host_queue_rusage"
	ReasonHostJobRusage   = "host_job_rusage"
)

// electionResult is one preemption pass's outcome for a single
// preemptive queue.
type electionResult struct {
	Victims []job.ID
}

// elect runs the preemption elector for queue q against the current
// scheduler state, implementing spec.md §4.2 exactly: it walks PJL
// backwards collecting eligible triggers, and for each, in priority
// order, attempts to harvest enough victim slots from q's preemptable
// queues before moving to the next trigger. It never mutates state for
// a trigger that fails to reach its target — any tentative claim is
// rolled back before considering the next trigger.
func (s *Scheduler) elect(q *queue.Queue) electionResult {
	triggers := s.collectTriggers(q)

	var result electionResult
	for _, trigger := range triggers {
		if len(result.Victims) >= s.config.MaxPreemptJobs {
			break
		}

		need := float64(trigger.Spec.NumProcessors)
		harvested := 0.0
		var tentative []job.ID
		var tentativeHosts []string

	preemptableWalk:
		for _, lowerName := range q.Preemptable {
			lower := s.queues.Get(lowerName)
			if lower == nil || lower.NumRun == 0 {
				continue
			}

			for _, victimID := range s.lists.running() {
				v := s.jobs[victimID]
				if v == nil || v.Spec.Queue != lower.Name {
					continue
				}
				if v.Status.Suspended() {
					continue
				}
				if !v.HasPreemptedByZero() {
					continue
				}
				if v.Status.Has(job.StatusSignal) {
					continue
				}

				v.MarkPreempted(trigger.ID, v.Hosts)
				tentative = append(tentative, v.ID)
				tentativeHosts = append(tentativeHosts, v.Hosts...)
				harvested += float64(v.Spec.NumProcessors)

				if harvested >= need {
					break preemptableWalk
				}
			}
		}

		if harvested >= need {
			// spec.md §4.2 step 3: the trigger's own preempted_hosts
			// accumulates the host pointers it harvested from its
			// victims, so dispatch can later bind it to those hosts.
			trigger.PreemptedHosts = append(trigger.PreemptedHosts, tentativeHosts...)
			s.logPreemption(trigger.ID, tentative)
			result.Victims = append(result.Victims, tentative...)
			continue
		}

		// Harvest fell short: this trigger's tentative claims never
		// happened. The source reaches an assert(LINK_NUM_ENTRIES(rl)
		// == 0) here; Design Notes §9 calls that load-bearing
		// documentation, not a real invariant, so it is a plain
		// rollback instead of an assertion.
		for _, id := range tentative {
			s.jobs[id].ClearPreemption()
		}
		s.logger.Warn("preemption did not harvest enough",
			"trigger_job", trigger.ID.String(), "queue", q.Name,
			"needed", need, "harvested", harvested)
	}

	return result
}

// collectTriggers walks PJL backwards collecting up to
// MaxPreemptJobs pending jobs belonging to q that are eligible to
// trigger preemption, stopping at the sentinel, the count cap, or the
// first job whose queue priority differs from q's.
func (s *Scheduler) collectTriggers(q *queue.Queue) []*job.Job {
	var out []*job.Job
	for _, id := range s.lists.pendingDescending() {
		if len(out) >= s.config.MaxPreemptJobs {
			break
		}
		j := s.jobs[id]
		if j == nil {
			continue
		}
		jq := s.queues.Get(j.Spec.Queue)
		if jq == nil || jq.Priority != q.Priority {
			break
		}
		if jq.Name != q.Name {
			continue
		}
		if s.eligibleTrigger(j) {
			out = append(out, j)
		}
	}
	return out
}

// eligibleTrigger implements spec.md §4.2 step 2. In slot-driven mode
// (the default, when PreemptableResources names nothing beyond the
// built-in "slots" kind) a pending job is eligible if it is blocked
// purely on slot availability. In resource-driven mode, a job is
// eligible if its rusage bitmap names a configured preemptable
// resource in (0.01, +Inf) and the job carries a pend reason in the
// host-queue or host-job rusage bands.
func (s *Scheduler) eligibleTrigger(j *job.Job) bool {
	if !j.Status.Has(job.StatusPend) {
		return false
	}

	if s.slotDriven() {
		return len(j.PendReasons) == 0 || onlyReason(j.PendReasons, ReasonNoFreeSlots)
	}

	usage := j.Usage

	for _, name := range s.config.PreemptableResources {
		v, ok := usage[job.ResourceKind(name)]
		if !ok || v <= 0.01 || math.IsInf(v, 1) {
			continue
		}
		if hasAnyReason(j.PendReasons, ReasonHostQueueRusage, ReasonHostJobRusage) {
			return true
		}
	}
	return false
}

// slotDriven reports whether the configured PreemptableResources list
// names nothing beyond the built-in "slots" placeholder, i.e. no real
// named resource has been configured for resource-driven preemption.
func (s *Scheduler) slotDriven() bool {
	for _, r := range s.config.PreemptableResources {
		if r != string(job.ResourceSlots) {
			return false
		}
	}
	return true
}

func onlyReason(reasons []string, want string) bool {
	for _, r := range reasons {
		if r != want {
			return false
		}
	}
	return true
}

func hasAnyReason(reasons []string, wanted ...string) bool {
	for _, r := range reasons {
		for _, w := range wanted {
			if r == w {
				return true
			}
		}
	}
	return false
}
