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
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Change event operation types.
const (
	OperationInsert         = "insert"
	OperationUpdate         = "update"
	OperationDelete         = "delete"
	OperationDropCollection = "dropCollection"
)

// watchPollInterval is how often Next wakes up to notice a concurrent
// Close while waiting for the server to push an event.
const watchPollInterval = time.Second

// errWatchPoll marks an idle poll tick inside Next.
var errWatchPoll = errors.New("watch poll elapsed")

// Namespace identifies the database and collection a change happened in.
type Namespace struct {
	Database   string `msgpack:"db"`
	Collection string `msgpack:"coll"`
}

// ChangeEvent describes one mutation to a watched collection, pushed by
// the server. FullDocument is set for inserts and updates only,
// UpdateDescription for updates only.
type ChangeEvent struct {
	OperationType     string         `msgpack:"operationType"`
	Namespace         Namespace      `msgpack:"ns"`
	DocumentKey       map[string]any `msgpack:"documentKey"`
	FullDocument      Document       `msgpack:"fullDocument,omitempty"`
	UpdateDescription map[string]any `msgpack:"updateDescription,omitempty"`
	Timestamp         float64        `msgpack:"timestamp"`
}

// ChangeStream is a lazily consumed, unbounded sequence of change events.
// Next blocks the calling goroutine until an event arrives; the sequence
// ends only through Close or a dropped connection, and restarting means
// subscribing again via Watch.
type ChangeStream struct {
	client    *Client
	done      chan struct{}
	closeOnce sync.Once
}

// Watch subscribes to change notifications and switches the connection
// into subscription mode. An empty collection watches every collection;
// WithOperations narrows the operation types (default insert, update,
// delete). Until the returned stream is closed, ordinary calls on this
// client fail with ErrWatchActive.
func (c *Client) Watch(collection string, opts ...CallOption) (*ChangeStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.watching {
		return nil, ErrWatchActive
	}
	if !c.connected || c.broken {
		if err := c.dialLocked(); err != nil {
			return nil, err
		}
	}

	s := newCallSettings(opts)
	operations := s.operations
	if len(operations) == 0 {
		operations = []string{OperationInsert, OperationUpdate, OperationDelete}
	}

	op, payload, err := c.exchangeLocked(MsgSubscribeChanges, &subscribeRequest{
		Collection: collection,
		Operations: operations,
	})
	if err == nil {
		err = decodeResult(op, payload, nil)
	}
	if err != nil {
		return nil, err
	}

	c.watching = true
	return &ChangeStream{client: c, done: make(chan struct{})}, nil
}

// Next blocks until the server pushes the next change event, the stream
// is closed, or the transport fails. Events are yielded exactly once, in
// arrival order.
func (s *ChangeStream) Next() (*ChangeEvent, error) {
	for {
		select {
		case <-s.done:
			return nil, ErrStreamClosed
		default:
		}

		op, payload, err := s.client.pollEventFrame(watchPollInterval)
		if errors.Is(err, errWatchPoll) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if op != MsgChangeEvent {
			return nil, &ProtocolError{Message: fmt.Sprintf("expected change event, got opcode %#x", byte(op))}
		}

		var event ChangeEvent
		if err := decodeBody(payload, &event); err != nil {
			return nil, err
		}
		return &event, nil
	}
}

// Close unsubscribes and returns the connection to call mode. It is
// idempotent and safe to call from any goroutine; a blocked Next call
// returns ErrStreamClosed within one poll interval.
func (s *ChangeStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.client.unsubscribe()
	})
	return err
}

// pollEventFrame reads one pushed frame under a short deadline so a
// concurrent Close can interrupt the wait. Deadline expiry between frames
// is an idle tick, not a failure.
func (c *Client) pollEventFrame(interval time.Duration) (MsgType, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn == nil {
		return 0, nil, ErrClosed
	}
	if !c.watching {
		return 0, nil, ErrStreamClosed
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(interval))
	cr := &countingReader{r: c.conn}
	op, payload, err := readFrame(cr)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() && cr.n == 0 {
			return 0, nil, errWatchPoll
		}
		// A deadline that expires mid-frame leaves unread bytes on the
		// wire, so it breaks the stream like any other transport failure.
		// The subscription does not survive; the caller restarts it by
		// watching again after reconnect.
		c.watching = false
		return 0, nil, c.transportErrorLocked("watch", err)
	}
	return op, payload, nil
}

// countingReader tracks how many bytes a poll consumed, distinguishing an
// idle deadline expiry from one that struck mid-frame.
type countingReader struct {
	r io.Reader
	n int
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += n
	return n, err
}

// unsubscribe sends UNSUBSCRIBE_CHANGES and drains change events still in
// flight until the server acknowledges.
func (c *Client) unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.watching {
		return nil
	}
	c.watching = false

	if c.closed || c.conn == nil || c.broken {
		return nil
	}

	frame, err := encodeFrame(MsgUnsubscribeChanges, emptyBody{})
	if err != nil {
		return err
	}

	_ = c.conn.SetDeadline(time.Now().Add(c.config.Timeout))
	if _, err := c.conn.Write(frame); err != nil {
		return c.transportErrorLocked("unsubscribe", err)
	}

	for {
		op, payload, err := readFrame(c.conn)
		if err != nil {
			return c.transportErrorLocked("unsubscribe", err)
		}
		if op == MsgChangeEvent {
			continue
		}
		return decodeResult(op, payload, nil)
	}
}
