// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package adminhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clusterbatch/batchsched/api"
	"github.com/clusterbatch/batchsched/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct{}

func (fakeSource) ListJobs(ctx context.Context, opts *api.ListJobsOptions) (*api.JobList, error) {
	return &api.JobList{Jobs: []api.Job{{ID: "1"}}, Total: 1}, nil
}

func (fakeSource) ListHosts(ctx context.Context, opts *api.ListHostsOptions) (*api.HostList, error) {
	return &api.HostList{Hosts: []api.Host{{Name: "h1"}}, Total: 1}, nil
}

func (fakeSource) ListQueues(ctx context.Context, opts *api.ListQueuesOptions) (*api.QueueList, error) {
	return &api.QueueList{Queues: []api.Queue{{Name: "q1"}}, Total: 1}, nil
}

func TestAdminHTTP_JobsEndpoint(t *testing.T) {
	srv := NewServer(fakeSource{}, &auth.NoAuth{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs?queues=normal", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

func TestAdminHTTP_RejectsUnauthenticated(t *testing.T) {
	srv := NewServer(fakeSource{}, auth.NewTokenAuth("secret"), nil)

	req := httptest.NewRequest(http.MethodGet, "/hosts", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
