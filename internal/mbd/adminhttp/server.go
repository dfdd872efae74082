// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package adminhttp exposes mbatchd's read-only admin HTTP surface:
// job, host, and queue snapshot endpoints routed with gorilla/mux and
// guarded by pkg/auth.
package adminhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/clusterbatch/batchsched/api"
	"github.com/clusterbatch/batchsched/pkg/auth"
	"github.com/clusterbatch/batchsched/pkg/logging"
	"github.com/gorilla/mux"
)

// SnapshotSource is the narrow slice of internal/sched.Scheduler this
// package depends on, so tests can substitute a fake without importing
// the scheduler package.
type SnapshotSource interface {
	ListJobs(ctx context.Context, opts *api.ListJobsOptions) (*api.JobList, error)
	ListHosts(ctx context.Context, opts *api.ListHostsOptions) (*api.HostList, error)
	ListQueues(ctx context.Context, opts *api.ListQueuesOptions) (*api.QueueList, error)
}

// Server wires SnapshotSource's three snapshot methods behind a
// pkg/auth guard.
type Server struct {
	source SnapshotSource
	auth   auth.Provider
	logger logging.Logger
}

// NewServer builds an http.Handler serving /jobs, /hosts, and /queues.
func NewServer(source SnapshotSource, provider auth.Provider, logger logging.Logger) http.Handler {
	if provider == nil {
		provider = &auth.NoAuth{}
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	s := &Server{source: source, auth: provider, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/jobs", s.withAuth(s.handleJobs)).Methods(http.MethodGet)
	r.HandleFunc("/hosts", s.withAuth(s.handleHosts)).Methods(http.MethodGet)
	r.HandleFunc("/queues", s.withAuth(s.handleQueues)).Methods(http.MethodGet)
	return r
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.Authenticate(r.Context(), r); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := &api.ListJobsOptions{
		Users:  splitCSV(q.Get("users")),
		Queues: splitCSV(q.Get("queues")),
		JobIDs: splitCSV(q.Get("job_ids")),
		Limit:  atoiOrZero(q.Get("limit")),
		Offset: atoiOrZero(q.Get("offset")),
	}
	for _, s := range splitCSV(q.Get("states")) {
		opts.States = append(opts.States, api.JobState(s))
	}

	list, err := s.source.ListJobs(r.Context(), opts)
	s.writeJSON(w, list, err)
}

func (s *Server) handleHosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := &api.ListHostsOptions{
		Names:  splitCSV(q.Get("names")),
		Queues: splitCSV(q.Get("queues")),
	}
	for _, v := range splitCSV(q.Get("states")) {
		opts.States = append(opts.States, api.HostState(v))
	}

	list, err := s.source.ListHosts(r.Context(), opts)
	s.writeJSON(w, list, err)
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := &api.ListQueuesOptions{
		Names: splitCSV(q.Get("names")),
	}
	for _, v := range splitCSV(q.Get("states")) {
		opts.States = append(opts.States, api.QueueState(v))
	}

	list, err := s.source.ListQueues(r.Context(), opts)
	s.writeJSON(w, list, err)
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		s.logger.Error("admin http handler failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if encErr := json.NewEncoder(w).Encode(payload); encErr != nil {
		s.logger.Error("admin http response encode failed", "error", encErr)
	}
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func atoiOrZero(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
