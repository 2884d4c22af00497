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
)

// Common errors
var (
	// ErrClosed is returned when operating on a closed client.
	ErrClosed = errors.New("client closed")

	// ErrNotFound is returned when the server reports a missing document.
	// Get translates it into a nil document instead of surfacing it.
	ErrNotFound = errors.New("document not found")

	// ErrWatchActive is returned when a call is issued while a change
	// stream owns the connection.
	ErrWatchActive = errors.New("change stream active on this connection")

	// ErrStreamClosed is returned by ChangeStream.Next after Close.
	ErrStreamClosed = errors.New("change stream closed")
)

// ConnectionError represents a transport failure: unreachable server,
// dropped connection, or an exhausted reconnect attempt.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// AuthenticationError represents a credential rejection during the
// connection handshake.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// TimeoutError represents an expired response deadline. The connection is
// presumed broken afterwards; the next call reconnects.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout during %s: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ProtocolError represents a malformed frame, an unexpected opcode, or an
// undecodable body.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Message)
}

// ServerError represents a well-formed error response from the server,
// carrying the server's message.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Message)
}
