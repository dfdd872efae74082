// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package pool provides connection pooling for the RPC links between
// mbatchd and the sbatchd on every execution host, and between sbatchd
// and the blaunch processes it spawns.
package pool

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/clusterbatch/batchsched/pkg/logging"
)

// Dialer opens a new connection to a peer daemon at addr.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

// ConnPool manages a pool of peer daemon connections, keyed by the
// peer's address, reusing a single long-lived net.Conn per peer rather
// than dialing fresh for every RPC.
type ConnPool struct {
	mu     sync.RWMutex
	conns  map[string]*pooledConn
	config *PoolConfig
	dial   Dialer
	logger logging.Logger
}

// pooledConn wraps a net.Conn with usage statistics.
type pooledConn struct {
	conn     net.Conn
	created  time.Time
	lastUsed time.Time
	useCount int64
}

// PoolConfig holds configuration for the connection pool.
type PoolConfig struct {
	// DialTimeout bounds how long dialing a new peer connection may take.
	DialTimeout time.Duration

	// KeepAlive is the TCP keep-alive period for pooled connections.
	KeepAlive time.Duration

	// IdleTimeout is stored with the configuration; no code reads it.
	// CleanupIdleConns takes its own idle cutoff as an argument.
	IdleTimeout time.Duration
}

// DefaultPoolConfig returns a pool configuration suited to a cluster's
// worth of sbatchd peers.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		DialTimeout: 10 * time.Second,
		KeepAlive:   30 * time.Second,
		IdleTimeout: 15 * time.Minute,
	}
}

// NewConnPool creates a new connection pool. dial is used to establish
// new connections; pass nil to use a plain net.Dialer over tcp.
func NewConnPool(config *PoolConfig, dial Dialer, logger logging.Logger) *ConnPool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if dial == nil {
		dialer := &net.Dialer{Timeout: config.DialTimeout, KeepAlive: config.KeepAlive}
		dial = func(ctx context.Context, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", addr)
		}
	}

	return &ConnPool{
		conns:  make(map[string]*pooledConn),
		config: config,
		dial:   dial,
		logger: logger,
	}
}

// Get returns a connection to addr, dialing a new one if none is
// pooled yet.
func (p *ConnPool) Get(ctx context.Context, addr string) (net.Conn, error) {
	p.mu.RLock()
	pc, exists := p.conns[addr]
	p.mu.RUnlock()

	if exists {
		p.mu.Lock()
		pc.lastUsed = time.Now()
		pc.useCount++
		p.mu.Unlock()
		return pc.conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if pc, exists := p.conns[addr]; exists {
		pc.lastUsed = time.Now()
		pc.useCount++
		return pc.conn, nil
	}

	conn, err := p.dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	pc = &pooledConn{conn: conn, created: time.Now(), lastUsed: time.Now(), useCount: 1}
	p.conns[addr] = pc
	p.logger.Info("opened new peer connection", "addr", addr)

	return conn, nil
}

// Evict closes and removes the pooled connection to addr, if any. A
// caller that observes a broken connection calls this so the next Get
// dials fresh.
func (p *ConnPool) Evict(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc, exists := p.conns[addr]
	if !exists {
		return
	}
	_ = pc.conn.Close()
	delete(p.conns, addr)
}

// Stats returns statistics about the connection pool.
func (p *ConnPool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := PoolStats{
		TotalConns: len(p.conns),
		ConnStats:  make(map[string]ConnStats),
	}

	for addr, pc := range p.conns {
		stats.ConnStats[addr] = ConnStats{
			Created:  pc.created,
			LastUsed: pc.lastUsed,
			UseCount: pc.useCount,
		}
	}

	return stats
}

// CleanupIdleConns closes and removes connections unused for longer
// than maxIdleTime, returning the number removed.
func (p *ConnPool) CleanupIdleConns(maxIdleTime time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxIdleTime)

	for addr, pc := range p.conns {
		if pc.lastUsed.Before(cutoff) {
			_ = pc.conn.Close()
			delete(p.conns, addr)
			removed++

			p.logger.Info("removed idle peer connection",
				"addr", addr,
				"idle_duration", time.Since(pc.lastUsed),
			)
		}
	}

	return removed
}

// Close closes every pooled connection.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for addr, pc := range p.conns {
		_ = pc.conn.Close()
		delete(p.conns, addr)
	}

	p.logger.Info("closed all peer connections in pool")
	return nil
}

// PoolStats contains statistics about the connection pool.
type PoolStats struct {
	TotalConns int
	ConnStats  map[string]ConnStats
}

// ConnStats contains statistics for a single connection.
type ConnStats struct {
	Created  time.Time
	LastUsed time.Time
	UseCount int64
}

// HealthCheckFunc reports whether the peer at addr is still reachable
// and responsive over conn.
type HealthCheckFunc func(ctx context.Context, addr string, conn net.Conn) error

// ConnManager manages pooled-connection lifecycle and periodic health
// checks, mirroring the scheduling tick cadence the rest of the daemon
// runs on.
type ConnManager struct {
	pool            *ConnPool
	healthCheckFunc HealthCheckFunc
	cleanupInterval time.Duration
	maxIdleTime     time.Duration
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	logger          logging.Logger
}

// NewConnManager creates a new connection manager.
func NewConnManager(pool *ConnPool, healthCheck HealthCheckFunc, logger logging.Logger) *ConnManager {
	ctx, cancel := context.WithCancel(context.Background())

	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	return &ConnManager{
		pool:            pool,
		healthCheckFunc: healthCheck,
		cleanupInterval: 5 * time.Minute,
		maxIdleTime:     15 * time.Minute,
		ctx:             ctx,
		cancel:          cancel,
		logger:          logger,
	}
}

// Start begins the connection management routines.
func (cm *ConnManager) Start() {
	cm.wg.Add(1)
	go cm.cleanupRoutine()
}

// Stop stops the connection management routines.
func (cm *ConnManager) Stop() {
	cm.cancel()
	cm.wg.Wait()
}

func (cm *ConnManager) cleanupRoutine() {
	defer cm.wg.Done()

	ticker := time.NewTicker(cm.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := cm.pool.CleanupIdleConns(cm.maxIdleTime)
			if removed > 0 {
				cm.logger.Info("cleaned up idle connections", "removed", removed)
			}
		case <-cm.ctx.Done():
			return
		}
	}
}

// GetHealthyConn returns a healthy connection to addr, evicting and
// redialing if the health check fails.
func (cm *ConnManager) GetHealthyConn(ctx context.Context, addr string) (net.Conn, error) {
	conn, err := cm.pool.Get(ctx, addr)
	if err != nil {
		return nil, err
	}

	if cm.healthCheckFunc != nil {
		if err := cm.healthCheckFunc(ctx, addr, conn); err != nil {
			cm.pool.Evict(addr)
			return nil, fmt.Errorf("peer health check failed: %w", err)
		}
	}

	return conn, nil
}
