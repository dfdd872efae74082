// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"net"

	"github.com/clusterbatch/batchsched/internal/procharvest"
	"github.com/clusterbatch/batchsched/pkg/logging"
)

// RusageHandler processes a decoded BLAUNCH_RUSAGE update. Implemented
// by internal/sbd so the wire protocol stays decoupled from job-card
// bookkeeping.
type RusageHandler interface {
	HandleRusage(jobID int32, r procharvest.Rusage) Opcode
}

// Server accepts BLAUNCH_RUSAGE frames from blaunch processes on the
// same host and dispatches them to a RusageHandler.
type Server struct {
	handler RusageHandler
	logger  logging.Logger
}

// NewServer builds a Server that dispatches every received frame to
// handler.
func NewServer(handler RusageHandler, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Server{handler: handler, logger: logger}
}

// Serve accepts connections on ln until ctx is cancelled or ln.Accept
// fails. Each connection is handled in its own goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		req, err := ReadFrame(conn)
		if err != nil {
			return
		}

		var status Opcode
		switch req.Header.Opcode {
		case OpBlaunchRusage:
			r, err := DecodeRusage(req.Payload)
			if err != nil {
				s.logger.Warn("rejecting malformed rusage frame", "job_id", req.Header.JobID, "error", err)
				status = StatusBadPayload
			} else {
				status = s.handler.HandleRusage(req.Header.JobID, r)
			}
		default:
			status = StatusBadPayload
		}

		reply := Frame{Header: Header{Opcode: status, JobID: req.Header.JobID}}
		if err := WriteFrame(conn, reply); err != nil {
			return
		}
	}
}
