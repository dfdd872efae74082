// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package sbd

import (
	"time"

	"github.com/clusterbatch/batchsched/internal/job"
)

// WindowOps is the side-effecting half of run-window gating: resuming
// a suspended job and delivering its configured signal. Decoupled from
// Gate so the gating decision itself is tested without a real process.
type WindowOps interface {
	Resume()
	Signal()
}

// Gate implements spec.md §4.3.1's run-window tick exactly: if the
// card's cached windEdge has not yet been crossed, the cached Active
// flag is returned unchanged. Otherwise the day's windows are
// recomputed and, on an active-to-inactive transition with a
// sufficiently stale warning and WindowSignalOn set, ops fires once.
func Gate(now time.Time, week job.WeekSchedule, card *JobCard, warnTime time.Duration, ops WindowOps) bool {
	if !card.WindEdge.IsZero() && now.Before(card.WindEdge) {
		return card.Active
	}

	day := week[int(now.Weekday())]
	wasActive := card.Active

	hour := float64(now.Hour()) + float64(now.Minute())/60 + float64(now.Second())/3600

	if len(day) == 0 {
		card.Active = true
		card.WindEdge = now.Add(time.Duration((24 - hour) * float64(time.Hour)))
	} else {
		card.Active = false
		card.WindEdge = endOfDay(now)
		for _, w := range day {
			if hour >= w.StartHour && hour < w.EndHour {
				card.Active = true
				card.WindEdge = atHour(now, w.EndHour)
			} else if hour < w.StartHour && atHour(now, w.StartHour).Before(card.WindEdge) {
				card.WindEdge = atHour(now, w.StartHour)
			}
		}
	}

	if wasActive && !card.Active &&
		now.Sub(card.LastWindowWarn) > warnTime &&
		card.Spec.WindowSignalOn {
		ops.Resume()
		ops.Signal()
		card.LastWindowWarn = now
	}

	return card.Active
}

func endOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, now.Location()).Add(time.Second)
}

func atHour(now time.Time, hour float64) time.Time {
	y, m, d := now.Date()
	base := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return base.Add(time.Duration(hour * float64(time.Hour)))
}
