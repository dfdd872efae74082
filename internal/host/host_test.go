// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"testing"

	"github.com/clusterbatch/batchsched/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&Host{Name: "node01", NumCores: 16, FreeCores: 16}))

	h := r.Get("NODE01")
	require.NotNil(t, h)
	assert.Equal(t, 16, h.NumCores)
}

func TestRegistry_Add_DuplicateRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&Host{Name: "node01"}))
	assert.Error(t, r.Add(&Host{Name: "node01"}))
}

func TestRegistry_All(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&Host{Name: "a"}))
	require.NoError(t, r.Add(&Host{Name: "b"}))
	assert.Len(t, r.All(), 2)
}

func TestHost_ReserveSlots(t *testing.T) {
	h := &Host{Name: "node01", NumCores: 8, FreeCores: 8}
	require.NoError(t, h.ReserveSlots(4))
	assert.Equal(t, 4, h.FreeCores)
}

func TestHost_ReserveSlots_Insufficient(t *testing.T) {
	h := &Host{Name: "node01", NumCores: 8, FreeCores: 2}
	err := h.ReserveSlots(4)
	assert.Error(t, err)
	assert.Equal(t, 2, h.FreeCores, "a failed reservation must not mutate FreeCores")
}

func TestHost_ReleaseSlots_CapsAtNumCores(t *testing.T) {
	h := &Host{Name: "node01", NumCores: 8, FreeCores: 6}
	h.ReleaseSlots(10)
	assert.Equal(t, 8, h.FreeCores)
}

func TestHost_Snapshot(t *testing.T) {
	h := &Host{Name: "node01", Queues: []string{"normal"}, NumCores: 8, FreeCores: 0}
	snap := h.Snapshot()
	assert.Equal(t, api.HostStateBusy, snap.State)
	assert.Equal(t, []string{"normal"}, snap.Queues)
}

func TestHost_Snapshot_Unavailable(t *testing.T) {
	h := &Host{Name: "node01", Unavailable: true}
	snap := h.Snapshot()
	assert.Equal(t, api.HostStateUnavail, snap.State)
}

func TestHost_Snapshot_OK(t *testing.T) {
	h := &Host{Name: "node01", NumCores: 8, FreeCores: 8}
	snap := h.Snapshot()
	assert.Equal(t, api.HostStateOK, snap.State)
}
