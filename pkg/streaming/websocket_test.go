// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package streaming

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clusterbatch/batchsched/api"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEventSource struct {
	watchJobsFunc   func(ctx context.Context, opts *api.WatchJobsOptions) (<-chan api.JobEvent, error)
	watchHostsFunc  func(ctx context.Context, opts *api.WatchHostsOptions) (<-chan api.HostEvent, error)
	watchQueuesFunc func(ctx context.Context, opts *api.WatchQueuesOptions) (<-chan api.QueueEvent, error)
}

func (m *mockEventSource) WatchJobs(ctx context.Context, opts *api.WatchJobsOptions) (<-chan api.JobEvent, error) {
	if m.watchJobsFunc != nil {
		return m.watchJobsFunc(ctx, opts)
	}
	ch := make(chan api.JobEvent)
	close(ch)
	return ch, nil
}

func (m *mockEventSource) WatchHosts(ctx context.Context, opts *api.WatchHostsOptions) (<-chan api.HostEvent, error) {
	if m.watchHostsFunc != nil {
		return m.watchHostsFunc(ctx, opts)
	}
	ch := make(chan api.HostEvent)
	close(ch)
	return ch, nil
}

func (m *mockEventSource) WatchQueues(ctx context.Context, opts *api.WatchQueuesOptions) (<-chan api.QueueEvent, error) {
	if m.watchQueuesFunc != nil {
		return m.watchQueuesFunc(ctx, opts)
	}
	ch := make(chan api.QueueEvent)
	close(ch)
	return ch, nil
}

func TestNewWebSocketServer(t *testing.T) {
	source := &mockEventSource{}
	ws := NewWebSocketServer(source)

	require.NotNil(t, ws)
	assert.Equal(t, source, ws.source)
	assert.NotNil(t, ws.upgrader.CheckOrigin)
	assert.True(t, ws.upgrader.CheckOrigin(nil))
}

func dialWebSocket(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestHandleWebSocket_Upgrade(t *testing.T) {
	source := &mockEventSource{}
	ws := NewWebSocketServer(source)

	server := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	assert.NotNil(t, conn)
}

func TestHandleWebSocket_StreamJobs(t *testing.T) {
	jobEvents := make(chan api.JobEvent, 1)
	source := &mockEventSource{
		watchJobsFunc: func(ctx context.Context, opts *api.WatchJobsOptions) (<-chan api.JobEvent, error) {
			return jobEvents, nil
		},
	}
	ws := NewWebSocketServer(source)

	server := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(StreamRequest{Stream: StreamTypeJobs}))

	jobEvents <- api.JobEvent{
		EventType: "job_state_change",
		JobID:     "101",
		NewState:  api.JobStateRunning,
		EventTime: time.Now(),
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, StreamTypeJobs, msg.Stream)
}

func TestHandleWebSocket_StreamHosts(t *testing.T) {
	hostEvents := make(chan api.HostEvent, 1)
	source := &mockEventSource{
		watchHostsFunc: func(ctx context.Context, opts *api.WatchHostsOptions) (<-chan api.HostEvent, error) {
			return hostEvents, nil
		},
	}
	ws := NewWebSocketServer(source)

	server := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(StreamRequest{Stream: StreamTypeHosts}))

	hostEvents <- api.HostEvent{
		EventType: "host_state_change",
		HostName:  "node01",
		NewState:  api.HostStateBusy,
		EventTime: time.Now(),
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, StreamTypeHosts, msg.Stream)
}

func TestHandleWebSocket_StreamQueues(t *testing.T) {
	queueEvents := make(chan api.QueueEvent, 1)
	source := &mockEventSource{
		watchQueuesFunc: func(ctx context.Context, opts *api.WatchQueuesOptions) (<-chan api.QueueEvent, error) {
			return queueEvents, nil
		},
	}
	ws := NewWebSocketServer(source)

	server := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(StreamRequest{Stream: StreamTypeQueues}))

	queueEvents <- api.QueueEvent{
		EventType: "queue_state_change",
		QueueName: "normal",
		NewState:  api.QueueStateOpenActive,
		EventTime: time.Now(),
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, StreamTypeQueues, msg.Stream)
}

func TestHandleWebSocket_UnknownStreamType(t *testing.T) {
	source := &mockEventSource{}
	ws := NewWebSocketServer(source)

	server := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(StreamRequest{Stream: "bogus"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "unknown stream type")
}

func TestHandleWebSocket_WatchError(t *testing.T) {
	source := &mockEventSource{
		watchJobsFunc: func(ctx context.Context, opts *api.WatchJobsOptions) (<-chan api.JobEvent, error) {
			return nil, testError("watch failed")
		},
	}
	ws := NewWebSocketServer(source)

	server := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(StreamRequest{Stream: StreamTypeJobs}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "failed to start job stream")
}

func TestHandleWebSocket_StreamClosed(t *testing.T) {
	jobEvents := make(chan api.JobEvent)
	close(jobEvents)
	source := &mockEventSource{
		watchJobsFunc: func(ctx context.Context, opts *api.WatchJobsOptions) (<-chan api.JobEvent, error) {
			return jobEvents, nil
		},
	}
	ws := NewWebSocketServer(source)

	server := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(StreamRequest{Stream: StreamTypeJobs}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "stream_closed", msg.Type)
	assert.Equal(t, StreamTypeJobs, msg.Stream)
}

func TestHandleWebSocket_JobStreamOptionsFilter(t *testing.T) {
	var received *api.WatchJobsOptions
	jobEvents := make(chan api.JobEvent)
	close(jobEvents)
	source := &mockEventSource{
		watchJobsFunc: func(ctx context.Context, opts *api.WatchJobsOptions) (<-chan api.JobEvent, error) {
			received = opts
			return jobEvents, nil
		},
	}
	ws := NewWebSocketServer(source)

	server := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	req := StreamRequest{
		Stream: StreamTypeJobs,
		Options: JobStreamOptions{
			Users:  []string{"alice"},
			Queues: []string{"normal"},
		},
	}
	require.NoError(t, conn.WriteJSON(req))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "stream_closed", msg.Type)

	require.NotNil(t, received)
	assert.Equal(t, []string{"alice"}, received.Users)
	assert.Equal(t, []string{"normal"}, received.Queues)
}

func TestKeepAlive_ConnectionStaysOpen(t *testing.T) {
	source := &mockEventSource{}
	ws := NewWebSocketServer(source)

	server := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// keepAlive's ping ticker runs on a 30s period in production code;
	// this just confirms the connection survives past the handshake.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, conn.WriteJSON(StreamRequest{Stream: StreamTypeJobs}))
}

type testError string

func (e testError) Error() string { return string(e) }
