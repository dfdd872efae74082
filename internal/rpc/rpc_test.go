// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/clusterbatch/batchsched/internal/procharvest"
	"github.com/clusterbatch/batchsched/pkg/logging"
	"github.com/clusterbatch/batchsched/pkg/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := Frame{Header: Header{Opcode: OpBlaunchRusage, JobID: 42, Length: 3}, Payload: []byte("abc")}
	require.NoError(t, WriteFrame(&buf, in))

	out, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.Header.Opcode, out.Header.Opcode)
	assert.Equal(t, in.Header.JobID, out.Header.JobID)
	assert.Equal(t, in.Payload, out.Payload)
}

func TestRusageCodec_RoundTrip(t *testing.T) {
	r := procharvest.Rusage{
		MemKB: 100, SwapKB: 50, UTimeS: 1.5, STimeS: 0.5,
		Pids:  []procharvest.PidInfo{{PID: 1, PPID: 0, PGID: 1}},
		Pgids: []int{1},
	}
	payload, err := EncodeRusage(r)
	require.NoError(t, err)

	out, err := DecodeRusage(payload)
	require.NoError(t, err)
	assert.Equal(t, r, out)
}

type fakeHandler struct {
	got chan int32
}

func (f *fakeHandler) HandleRusage(jobID int32, r procharvest.Rusage) Opcode {
	f.got <- jobID
	return StatusSuccess
}

func TestClientServer_SendRusage(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	handler := &fakeHandler{got: make(chan int32, 1)}
	srv := NewServer(handler, logging.NoOpLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, ln)

	p := pool.NewConnPool(nil, nil, logging.NoOpLogger{})
	defer p.Close()
	client := NewClient(p, logging.NoOpLogger{})

	status, err := client.SendRusage(context.Background(), ln.Addr().String(), 7, procharvest.Rusage{MemKB: 1})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)

	select {
	case jobID := <-handler.got:
		assert.Equal(t, int32(7), jobID)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}
}
