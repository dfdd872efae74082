// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package streaming broadcasts job, host, and queue lifecycle events to
// attached watchers over a WebSocket connection, on top of the
// polling-based watchers in pkg/watch.
package streaming

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/clusterbatch/batchsched/api"
	"github.com/gorilla/websocket"
)

// EventSource is the subset of the scheduler's state that the event
// feed can subscribe to.
type EventSource interface {
	WatchJobs(ctx context.Context, opts *api.WatchJobsOptions) (<-chan api.JobEvent, error)
	WatchHosts(ctx context.Context, opts *api.WatchHostsOptions) (<-chan api.HostEvent, error)
	WatchQueues(ctx context.Context, opts *api.WatchQueuesOptions) (<-chan api.QueueEvent, error)
}

// WebSocketServer provides a WebSocket interface onto the scheduler's
// job/host/queue event feed.
type WebSocketServer struct {
	source   EventSource
	upgrader websocket.Upgrader
}

// NewWebSocketServer creates a new WebSocket server over source.
func NewWebSocketServer(source EventSource) *WebSocketServer {
	return &WebSocketServer{
		source: source,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The admin surface is read-only snapshots and events;
				// cross-origin polling from an operator dashboard is expected.
				return true
			},
		},
	}
}

// StreamType represents the type of stream.
type StreamType string

const (
	StreamTypeJobs   StreamType = "jobs"
	StreamTypeHosts  StreamType = "hosts"
	StreamTypeQueues StreamType = "queues"
)

// StreamMessage represents a message sent over WebSocket.
type StreamMessage struct {
	Type      string      `json:"type"`
	Stream    StreamType  `json:"stream"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	Error     string      `json:"error,omitempty"`
}

// StreamRequest represents a client request to start streaming.
type StreamRequest struct {
	Stream  StreamType  `json:"stream"`
	Options interface{} `json:"options,omitempty"`
}

// JobStreamOptions filters a job event stream.
type JobStreamOptions struct {
	Users            []string       `json:"users,omitempty"`
	Queues           []string       `json:"queues,omitempty"`
	States           []api.JobState `json:"states,omitempty"`
	JobIDs           []string       `json:"job_ids,omitempty"`
	ExcludeNew       bool           `json:"exclude_new,omitempty"`
	ExcludeCompleted bool           `json:"exclude_completed,omitempty"`
}

// HostStreamOptions filters a host event stream.
type HostStreamOptions struct {
	Names  []string        `json:"names,omitempty"`
	States []api.HostState `json:"states,omitempty"`
}

// QueueStreamOptions filters a queue event stream.
type QueueStreamOptions struct {
	Names []string `json:"names,omitempty"`
}

// HandleWebSocket handles WebSocket connections.
func (ws *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Printf("websocket close error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go ws.handleIncomingMessages(ctx, conn, cancel)

	ws.keepAlive(ctx, conn)
}

// handleIncomingMessages processes messages from the client.
func (ws *WebSocketServer) handleIncomingMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var req StreamRequest
			if err := conn.ReadJSON(&req); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}

			go ws.handleStreamRequest(ctx, conn, req)
		}
	}
}

// handleStreamRequest starts the appropriate stream.
func (ws *WebSocketServer) handleStreamRequest(ctx context.Context, conn *websocket.Conn, req StreamRequest) {
	switch req.Stream {
	case StreamTypeJobs:
		ws.streamJobs(ctx, conn, req.Options)
	case StreamTypeHosts:
		ws.streamHosts(ctx, conn, req.Options)
	case StreamTypeQueues:
		ws.streamQueues(ctx, conn, req.Options)
	default:
		ws.sendError(conn, "unknown stream type: "+string(req.Stream))
	}
}

// streamJobs streams job events.
func (ws *WebSocketServer) streamJobs(ctx context.Context, conn *websocket.Conn, optionsData interface{}) {
	var options *api.WatchJobsOptions
	if optionsData != nil {
		if optsBytes, err := json.Marshal(optionsData); err == nil {
			var jobOpts JobStreamOptions
			if err := json.Unmarshal(optsBytes, &jobOpts); err == nil {
				options = &api.WatchJobsOptions{
					Users:            jobOpts.Users,
					Queues:           jobOpts.Queues,
					States:           jobOpts.States,
					JobIDs:           jobOpts.JobIDs,
					ExcludeNew:       jobOpts.ExcludeNew,
					ExcludeCompleted: jobOpts.ExcludeCompleted,
				}
			}
		}
	}

	events, err := ws.source.WatchJobs(ctx, options)
	if err != nil {
		ws.sendError(conn, "failed to start job stream: "+err.Error())
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				ws.sendMessage(conn, StreamMessage{Type: "stream_closed", Stream: StreamTypeJobs, Timestamp: time.Now()})
				return
			}
			ws.sendMessage(conn, StreamMessage{Type: "event", Stream: StreamTypeJobs, Data: event, Timestamp: time.Now()})
		}
	}
}

// streamHosts streams host events.
func (ws *WebSocketServer) streamHosts(ctx context.Context, conn *websocket.Conn, optionsData interface{}) {
	var options *api.WatchHostsOptions
	if optionsData != nil {
		if optsBytes, err := json.Marshal(optionsData); err == nil {
			var hostOpts HostStreamOptions
			if err := json.Unmarshal(optsBytes, &hostOpts); err == nil {
				options = &api.WatchHostsOptions{Names: hostOpts.Names, States: hostOpts.States}
			}
		}
	}

	events, err := ws.source.WatchHosts(ctx, options)
	if err != nil {
		ws.sendError(conn, "failed to start host stream: "+err.Error())
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				ws.sendMessage(conn, StreamMessage{Type: "stream_closed", Stream: StreamTypeHosts, Timestamp: time.Now()})
				return
			}
			ws.sendMessage(conn, StreamMessage{Type: "event", Stream: StreamTypeHosts, Data: event, Timestamp: time.Now()})
		}
	}
}

// streamQueues streams queue events.
func (ws *WebSocketServer) streamQueues(ctx context.Context, conn *websocket.Conn, optionsData interface{}) {
	var options *api.WatchQueuesOptions
	if optionsData != nil {
		if optsBytes, err := json.Marshal(optionsData); err == nil {
			var queueOpts QueueStreamOptions
			if err := json.Unmarshal(optsBytes, &queueOpts); err == nil {
				options = &api.WatchQueuesOptions{Names: queueOpts.Names}
			}
		}
	}

	events, err := ws.source.WatchQueues(ctx, options)
	if err != nil {
		ws.sendError(conn, "failed to start queue stream: "+err.Error())
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				ws.sendMessage(conn, StreamMessage{Type: "stream_closed", Stream: StreamTypeQueues, Timestamp: time.Now()})
				return
			}
			ws.sendMessage(conn, StreamMessage{Type: "event", Stream: StreamTypeQueues, Data: event, Timestamp: time.Now()})
		}
	}
}

// sendMessage sends a message over the WebSocket.
func (ws *WebSocketServer) sendMessage(conn *websocket.Conn, msg StreamMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("websocket write error: %v", err)
	}
}

// sendError sends an error message.
func (ws *WebSocketServer) sendError(conn *websocket.Conn, message string) {
	ws.sendMessage(conn, StreamMessage{Type: "error", Error: message, Timestamp: time.Now()})
}

// keepAlive maintains the WebSocket connection.
func (ws *WebSocketServer) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("websocket ping error: %v", err)
				return
			}
		}
	}
}
