// Copyright 2025 The NexaDB Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package nexadb

import (
	"context"
	"sync"
	"time"
)

// DefaultPoolSize is used when PoolConfig.Size is zero.
const DefaultPoolSize = 4

// PoolConfig holds pool options.
type PoolConfig struct {
	// Config is the per-connection client configuration. Nil means
	// DefaultConfig.
	Config *Config

	// Size is the maximum number of concurrently borrowed connections.
	Size int

	// IdleTimeout closes connections that sat unused longer than this
	// bound; expired connections are replaced at checkout. Zero disables
	// eviction.
	IdleTimeout time.Duration
}

type poolEntry struct {
	client   *Client
	lastUsed time.Time
}

// Pool hands out independent clients, one borrower at a time per
// connection. A single NexaDB connection pairs requests and responses
// strictly sequentially, so overlapping logical operations require one
// connection each; the pool enforces the single-borrower rule that a bare
// Client cannot.
//
// Connections are dialed lazily on first checkout and recycled across
// borrows until they break or idle out.
type Pool struct {
	config      *Config
	idleTimeout time.Duration

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	free   chan poolEntry
}

// NewPool creates a pool. No connections are opened until Acquire.
func NewPool(config PoolConfig) *Pool {
	size := config.Size
	if size <= 0 {
		size = DefaultPoolSize
	}
	p := &Pool{
		config:      config.Config.withDefaults(),
		idleTimeout: config.IdleTimeout,
		done:        make(chan struct{}),
		free:        make(chan poolEntry, size),
	}
	for i := 0; i < size; i++ {
		p.free <- poolEntry{}
	}
	return p
}

// Acquire checks out a client, blocking until one is free or ctx is done.
// The caller must hand it back with Release.
func (p *Pool) Acquire(ctx context.Context) (*Client, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.mu.Unlock()

	select {
	case entry := <-p.free:
		if entry.client != nil {
			expired := p.idleTimeout > 0 && time.Since(entry.lastUsed) > p.idleTimeout
			if expired || !entry.client.Connected() {
				_ = entry.client.Close()
				entry.client = nil
			}
		}
		if entry.client == nil {
			client, err := Dial(p.config)
			if err != nil {
				p.free <- poolEntry{}
				return nil, err
			}
			entry.client = client
		}
		return entry.client, nil
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a borrowed client. Broken or closed clients are
// discarded; their slot redials on the next checkout.
func (p *Pool) Release(client *Client) {
	if client == nil {
		return
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		_ = client.Close()
		return
	}

	if !client.Connected() {
		_ = client.Close()
		p.free <- poolEntry{}
		return
	}
	p.free <- poolEntry{client: client, lastUsed: time.Now()}
}

// Do borrows a client for the duration of fn.
func (p *Pool) Do(ctx context.Context, fn func(*Client) error) error {
	client, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(client)
	return fn(client)
}

// Close closes every idle connection and marks the pool unusable. Blocked
// Acquire calls return ErrClosed; borrowed clients are closed when
// released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	for {
		select {
		case entry := <-p.free:
			if entry.client != nil {
				_ = entry.client.Close()
			}
		default:
			return nil
		}
	}
}
