// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package sbd

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/clusterbatch/batchsched/internal/corebind"
	"github.com/clusterbatch/batchsched/internal/job"
	"github.com/clusterbatch/batchsched/internal/procharvest"
	"github.com/clusterbatch/batchsched/internal/rpc"
	"github.com/clusterbatch/batchsched/pkg/config"
	"github.com/clusterbatch/batchsched/pkg/logging"
)

// windowSignal is the signal delivered to a job whose run window has
// just closed, when its spec requests window signaling.
const windowSignal = syscall.SIGUSR2

// resumeSignaler is the real-process half of WindowOps: resuming a
// suspended job (SIGCONT) and delivering its configured signal. Errors
// are swallowed rather than surfaced, matching spec.md §4.3.1's
// "deliver the configured signal" step, which has no error path of its
// own — a job that has already exited simply has nothing to signal.
type resumeSignaler struct {
	card *JobCard
}

func (r resumeSignaler) Resume() {
	if r.card.JobPid != 0 {
		_ = syscall.Kill(r.card.JobPid, syscall.SIGCONT)
	}
}

func (r resumeSignaler) Signal() {
	if r.card.JobPid != 0 {
		_ = syscall.Kill(r.card.JobPid, windowSignal)
	}
}

// Supervisor is sbatchd's main-loop aggregate: the job-card registry,
// the core binder, and the reaper whose completions it alone drains.
// Every exported method here runs on the main loop; nothing here may
// be called from a reap goroutine directly, per spec.md §5's
// concurrency model for the host daemon.
type Supervisor struct {
	Cards  *Cards
	Binder corebind.CoreBinder
	Reaper *Reaper

	config *config.Config
	logger logging.Logger
}

// NewSupervisor builds a Supervisor over an existing core binder and a
// reaper capacity sized for the host's expected job concurrency.
func NewSupervisor(cfg *config.Config, binder corebind.CoreBinder, reaperCapacity int, logger logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Supervisor{
		Cards:  NewCards(),
		Binder: binder,
		Reaper: NewReaper(reaperCapacity),
		config: cfg,
		logger: logger,
	}
}

// Launch registers a new job card and starts its process under the
// reaper, binding it to the cores its queue share reserves.
func (s *Supervisor) Launch(id job.ID, spec job.Spec, buildCmd func(job.Spec) *exec.Cmd) error {
	card := &JobCard{ID: id, Spec: spec, Active: true}
	s.Cards.Add(card)

	cmd := buildCmd(spec)
	pid, err := s.Reaper.Supervise(cmd)
	if err != nil {
		s.Cards.Remove(id)
		return err
	}
	s.Cards.SetJobPid(id, pid)

	if s.Binder != nil && spec.NumProcessors > 0 {
		if cores, ok := s.Binder.FindFree(spec.NumProcessors); ok {
			if err := s.Binder.Bind(pid, cores); err != nil {
				s.logger.Warn("core bind failed for launched job", "job_id", id.String(), "error", err)
			}
		} else {
			s.logger.Warn("no free cores for launched job", "job_id", id.String(), "wanted", spec.NumProcessors)
		}
	}

	return nil
}

// DrainReaped applies every pending completion record to its job card
// without blocking, per spec.md §4.3.2's "non-blockingly" drain
// requirement. Call once per tick.
func (s *Supervisor) DrainReaped() {
	for {
		select {
		case rec := <-s.Reaper.Completions():
			s.applyCompletion(rec)
		default:
			return
		}
	}
}

func (s *Supervisor) applyCompletion(rec CompletionRecord) {
	card := s.Cards.ByPid(rec.Pid)
	if card == nil {
		// Not a job task this host daemon is tracking (e.g. the
		// spawned master process, handled by MasterSupervisor); ignore.
		return
	}

	card.CollectedChild = true
	card.ExitPid = 0
	card.NotReported = true

	if s.Binder != nil {
		s.Binder.FreeByPID(rec.Pid)
	}

	finishDelay := s.config.SBDFinishSleep
	if finishDelay > 0 {
		time.AfterFunc(finishDelay, func() {
			card.NeedCheckFinish = true
		})
	} else {
		card.NeedCheckFinish = true
	}
}

// TickWindows runs run-window gating for every tracked job card.
func (s *Supervisor) TickWindows(now time.Time) {
	for _, card := range s.Cards.All() {
		Gate(now, card.Spec.RunWindow, card, warnTime, resumeSignaler{card: card})
	}
}

// warnTime is spec.md §4.3.1's WARN_TIME: the minimum interval between
// consecutive window-close signal deliveries for the same job.
const warnTime = 60 * time.Second

// HandleRusage implements internal/rpc.RusageHandler, recording a
// launcher's aggregate rusage update against its job card.
func (s *Supervisor) HandleRusage(jobID int32, r procharvest.Rusage) rpc.Opcode {
	card := s.Cards.Get(job.ID{Base: int64(jobID)})
	if card == nil {
		return rpc.StatusUnknownJob
	}
	card.Rusage = r
	return rpc.StatusSuccess
}
