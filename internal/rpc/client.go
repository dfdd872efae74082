// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"

	"github.com/clusterbatch/batchsched/internal/procharvest"
	"github.com/clusterbatch/batchsched/pkg/errors"
	"github.com/clusterbatch/batchsched/pkg/logging"
	"github.com/clusterbatch/batchsched/pkg/pool"
	"github.com/google/uuid"
)

// Client sends BLAUNCH_RUSAGE updates to a host daemon, reusing pooled
// connections rather than dialing fresh for every send.
type Client struct {
	pool   *pool.ConnPool
	logger logging.Logger
}

// NewClient builds a Client over an existing connection pool.
func NewClient(p *pool.ConnPool, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Client{pool: p, logger: logger}
}

// SendRusage sends one aggregate rusage update for jobID to the host
// daemon at addr, per spec.md §6's aggregate-send contract. A non-zero
// reply status is logged and returned but is never treated as fatal by
// the caller — spec.md §7 classifies peer communication failures as
// logged-and-counted, never fatal for the launcher.
func (c *Client) SendRusage(ctx context.Context, addr string, jobID int32, r procharvest.Rusage) (Opcode, error) {
	correlationID := uuid.NewString()

	payload, err := EncodeRusage(r)
	if err != nil {
		return StatusBadPayload, errors.NewPeerCommError(errors.ErrorCodeRPCFailed, addr, err)
	}

	conn, err := c.pool.Get(ctx, addr)
	if err != nil {
		return StatusInternal, errors.NewPeerCommError(errors.ErrorCodeRPCFailed, addr, err)
	}

	req := Frame{Header: Header{Opcode: OpBlaunchRusage, JobID: jobID, Length: uint32(len(payload))}, Payload: payload}
	if err := WriteFrame(conn, req); err != nil {
		c.pool.Evict(addr)
		return StatusInternal, errors.NewPeerCommError(errors.ErrorCodeRPCFailed, addr, err)
	}

	reply, err := ReadFrame(conn)
	if err != nil {
		c.pool.Evict(addr)
		return StatusInternal, errors.NewPeerCommError(errors.ErrorCodeRPCFailed, addr, err)
	}

	if reply.Header.Opcode != StatusSuccess {
		c.logger.Warn("sbatchd rejected rusage update",
			"correlation_id", correlationID, "job_id", jobID, "addr", addr, "status", reply.Header.Opcode)
	}
	return reply.Header.Opcode, nil
}
