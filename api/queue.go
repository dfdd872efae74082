// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package api

import "time"

// QueueState is the administrative state of a queue.
type QueueState string

const (
	QueueStateOpenActive     QueueState = "open_active"
	QueueStateOpenInactive   QueueState = "open_inactive"
	QueueStateClosedActive   QueueState = "closed_active"
	QueueStateClosedInactive QueueState = "closed_inactive"
)

// Queue is a read-only snapshot of a scheduling queue.
type Queue struct {
	Name         string     `json:"name"`
	State        QueueState `json:"state"`
	Priority     int32      `json:"priority"`
	Preemptable  []string   `json:"preemptable,omitempty"`
	Hosts        []string   `json:"hosts"`
	NumPending   int        `json:"num_pending"`
	NumRunning   int        `json:"num_running"`
	NumSuspended int        `json:"num_suspended"`
}

// ListQueuesOptions filters a queue inventory listing.
type ListQueuesOptions struct {
	Names  []string     `json:"names,omitempty"`
	States []QueueState `json:"states,omitempty"`
}

// QueueList is a page of queue snapshots.
type QueueList struct {
	Queues []Queue `json:"queues"`
	Total  int     `json:"total"`
}

// WatchQueuesOptions filters which queue transitions a watch emits.
type WatchQueuesOptions struct {
	Names []string `json:"names,omitempty"`
}

// QueueEvent is emitted whenever a queue's state changes.
type QueueEvent struct {
	EventType     string     `json:"event_type"`
	QueueName     string     `json:"queue_name"`
	PreviousState QueueState `json:"previous_state,omitempty"`
	NewState      QueueState `json:"new_state"`
	EventTime     time.Time  `json:"event_time"`
	Queue         *Queue     `json:"queue,omitempty"`
}
