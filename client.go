// Copyright 2025 The NexaDB Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package nexadb

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"time"
)

// Config holds client connection options.
type Config struct {
	// Host is the server host. Default: "localhost".
	Host string

	// Port is the server port. Default: 6970.
	Port int

	// Username for the authentication handshake. Default: "root".
	Username string

	// Password for the authentication handshake. Default: "nexadb123".
	Password string

	// Timeout bounds dialing and every request/response exchange.
	// Default: 30s.
	Timeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     6970,
		Username: "root",
		Password: "nexadb123",
		Timeout:  30 * time.Second,
	}
}

func (c *Config) withDefaults() *Config {
	out := &Config{}
	if c != nil {
		*out = *c
	}
	if out.Host == "" {
		out.Host = "localhost"
	}
	if out.Port == 0 {
		out.Port = 6970
	}
	if out.Username == "" {
		out.Username = "root"
	}
	if out.Password == "" {
		out.Password = "nexadb123"
	}
	if out.Timeout == 0 {
		out.Timeout = 30 * time.Second
	}
	return out
}

func (c *Config) address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client is a NexaDB connection handle. One client owns one socket and
// carries one request/response exchange at a time; calls are serialized
// internally. Use a Pool for concurrent workloads.
type Client struct {
	config *Config

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	broken    bool
	watching  bool
	closed    bool
}

// NewClient returns an unconnected client. Zero-value config fields fall
// back to the documented defaults.
func NewClient(config *Config) *Client {
	return &Client{config: config.withDefaults()}
}

// Dial creates a client and connects it.
func Dial(config *Config) (*Client, error) {
	c := NewClient(config)
	if err := c.Connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// With runs fn against a freshly connected client and always closes it,
// including on error and panic paths.
func With(config *Config, fn func(*Client) error) (err error) {
	c, err := Dial(config)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(c)
}

// Connect opens the transport and performs the authentication handshake.
// Connecting an already connected client is a no-op.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.connected && !c.broken {
		return nil
	}
	return c.dialLocked()
}

// dialLocked dials the server and sends the CONNECT frame. Called with
// c.mu held.
func (c *Client) dialLocked() error {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.connected = false
	}

	conn, err := net.DialTimeout("tcp", c.config.address(), c.config.Timeout)
	if err != nil {
		trackError("connection_error", "Connect")
		return &ConnectionError{Address: c.config.address(), Err: err}
	}
	c.conn = conn
	c.connected = true
	c.broken = false

	// Credentials are the first frame on the wire; the server accepts
	// nothing else before the handshake succeeds.
	op, payload, err := c.exchangeLocked(MsgConnect, &connectRequest{
		Username: c.config.Username,
		Password: c.config.Password,
	})
	if err == nil {
		err = decodeResult(op, payload, nil)
	}
	if err != nil {
		_ = conn.Close()
		c.conn = nil
		c.connected = false

		var srvErr *ServerError
		if errors.As(err, &srvErr) {
			trackError("auth_error", "Connect")
			return &AuthenticationError{Message: srvErr.Message}
		}
		return err
	}

	trackClientConnected()
	return nil
}

// Close disconnects from the server. It is idempotent and safe to call on
// a client that never connected.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.watching = false

	if c.conn == nil {
		return nil
	}

	if c.connected && !c.broken {
		// Best-effort goodbye; the server drops the session on socket
		// close either way.
		if frame, err := encodeFrame(MsgDisconnect, emptyBody{}); err == nil {
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_, _ = c.conn.Write(frame)
		}
	}

	err := c.conn.Close()
	c.conn = nil
	c.connected = false
	return err
}

// Connected reports whether the client holds a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && !c.broken && !c.closed
}

// call performs one request/response exchange, transparently reconnecting
// once when the connection turns out to be dropped. A second transport
// failure surfaces to the caller.
func (c *Client) call(op MsgType, req, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.watching {
		return ErrWatchActive
	}

	if !c.connected || c.broken {
		if err := c.dialLocked(); err != nil {
			return err
		}
	}

	respOp, payload, err := c.exchangeLocked(op, req)
	if err != nil && retriable(err) {
		if rerr := c.dialLocked(); rerr != nil {
			return rerr
		}
		respOp, payload, err = c.exchangeLocked(op, req)
	}
	if err != nil {
		return err
	}
	return decodeResult(respOp, payload, out)
}

// exchangeLocked writes one frame and reads the next one. Called with
// c.mu held on a connected client.
func (c *Client) exchangeLocked(op MsgType, req any) (MsgType, []byte, error) {
	frame, err := encodeFrame(op, req)
	if err != nil {
		return 0, nil, err
	}

	_ = c.conn.SetDeadline(time.Now().Add(c.config.Timeout))

	if _, err := c.conn.Write(frame); err != nil {
		return 0, nil, c.transportErrorLocked("write", err)
	}

	respOp, payload, err := readFrame(c.conn)
	if err != nil {
		return 0, nil, c.transportErrorLocked("read", err)
	}
	return respOp, payload, nil
}

// transportErrorLocked classifies a transport-level failure and marks the
// connection broken so the next call redials.
func (c *Client) transportErrorLocked(op string, err error) error {
	c.broken = true

	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		// A malformed frame desynchronizes the stream; the connection is
		// unusable but the error itself is a protocol one.
		trackError("protocol_error", op)
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		trackError("timeout_error", op)
		return &TimeoutError{Op: op, Err: err}
	}

	trackError("connection_error", op)
	return &ConnectionError{Address: c.config.address(), Err: err}
}

// retriable reports whether an exchange failure indicates a dropped
// connection worth one transparent reconnect. Timeouts are not retried:
// the request may have been applied and a replay would double it.
func retriable(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
