// Copyright 2025 The NexaDB Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package nexadb

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgType identifies which operation a frame requests or which event it
// reports. Values must match the NexaDB server opcode table exactly.
type MsgType uint8

// Client → Server message types
const (
	MsgConnect      MsgType = 0x01
	MsgCreate       MsgType = 0x02
	MsgGet          MsgType = 0x03
	MsgUpdate       MsgType = 0x04
	MsgDelete       MsgType = 0x05
	MsgQuery        MsgType = 0x06
	MsgVectorSearch MsgType = 0x07
	MsgBatchWrite   MsgType = 0x08
	MsgPing         MsgType = 0x09
	MsgDisconnect   MsgType = 0x0A
	MsgQueryTOON    MsgType = 0x0B
	MsgExportTOON   MsgType = 0x0C

	MsgListCollections MsgType = 0x20
	MsgDropCollection  MsgType = 0x21

	MsgSubscribeChanges   MsgType = 0x30
	MsgUnsubscribeChanges MsgType = 0x31

	MsgListDatabases  MsgType = 0x40
	MsgCreateDatabase MsgType = 0x41
	MsgDropDatabase   MsgType = 0x42
	MsgDatabaseStats  MsgType = 0x43
	MsgBuildHNSWIndex MsgType = 0x45
)

// Server → Client message types
const (
	MsgSuccess     MsgType = 0x81
	MsgError       MsgType = 0x82
	MsgNotFound    MsgType = 0x83
	MsgDuplicate   MsgType = 0x84
	MsgPong        MsgType = 0x88
	MsgChangeEvent MsgType = 0x90
)

const (
	// frameHeaderSize is length(4, big-endian) + opcode(1). The length
	// counts every byte after the length field, so opcode + body.
	frameHeaderSize = 5

	// maxFrameSize bounds a declared frame length before the body is read.
	maxFrameSize = 64 << 20
)

// encodeFrame serializes one request frame:
//
//	[4-byte big-endian length][1-byte opcode][MessagePack body]
//
// Bodies are encoded from tagged structs, so identical input always
// produces identical bytes.
func encodeFrame(op MsgType, body any) ([]byte, error) {
	payload, err := msgpack.Marshal(body)
	if err != nil {
		return nil, &ProtocolError{Message: fmt.Sprintf("encode %#x body: %v", byte(op), err)}
	}
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], uint32(1+len(payload)))
	frame[4] = byte(op)
	copy(frame[frameHeaderSize:], payload)
	return frame, nil
}

// readFrame reads one frame from r. Partial reads are normal on a stream
// socket; io.ReadFull blocks until the declared length is satisfied.
func readFrame(r io.Reader) (MsgType, []byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}

	length := binary.BigEndian.Uint32(header[0:4])
	if length == 0 {
		return 0, nil, &ProtocolError{Message: "frame length 0 leaves no room for opcode"}
	}
	if length > maxFrameSize {
		return 0, nil, &ProtocolError{Message: fmt.Sprintf("declared frame length %d exceeds %d-byte limit", length, maxFrameSize)}
	}

	op := MsgType(header[4])
	payload := make([]byte, length-1)
	if len(payload) > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}
	return op, payload, nil
}

// decodeBody unpacks a MessagePack frame body into v.
func decodeBody(payload []byte, v any) error {
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return &ProtocolError{Message: fmt.Sprintf("decode body: %v", err)}
	}
	return nil
}

// Request bodies. Field names and ordering are part of the wire contract.

type connectRequest struct {
	Username string `msgpack:"username"`
	Password string `msgpack:"password"`
}

type createRequest struct {
	Collection string   `msgpack:"collection"`
	Data       Document `msgpack:"data"`
	Database   string   `msgpack:"database"`
}

type keyRequest struct {
	Collection string `msgpack:"collection"`
	Key        string `msgpack:"key"`
	Database   string `msgpack:"database"`
}

type updateRequest struct {
	Collection string   `msgpack:"collection"`
	Key        string   `msgpack:"key"`
	Updates    Document `msgpack:"updates"`
	Database   string   `msgpack:"database"`
}

type queryRequest struct {
	Collection string         `msgpack:"collection"`
	Filters    Filter         `msgpack:"filters"`
	Limit      int            `msgpack:"limit"`
	Database   string         `msgpack:"database"`
	Projection map[string]int `msgpack:"projection,omitempty"`
}

type vectorSearchRequest struct {
	Collection string    `msgpack:"collection"`
	Vector     []float32 `msgpack:"vector"`
	Limit      int       `msgpack:"limit"`
	Dimensions int       `msgpack:"dimensions"`
	Database   string    `msgpack:"database"`
	Filters    Filter    `msgpack:"filters,omitempty"`
}

type batchWriteRequest struct {
	Collection string     `msgpack:"collection"`
	Documents  []Document `msgpack:"documents"`
	Database   string     `msgpack:"database"`
}

type collectionRequest struct {
	Collection string `msgpack:"collection"`
	Database   string `msgpack:"database"`
}

type databaseRequest struct {
	Database string `msgpack:"database"`
}

type subscribeRequest struct {
	Collection string   `msgpack:"collection"`
	Operations []string `msgpack:"operations"`
}

type buildIndexRequest struct {
	Collection     string `msgpack:"collection"`
	Database       string `msgpack:"database"`
	M              int    `msgpack:"M,omitempty"`
	EfConstruction int    `msgpack:"ef_construction,omitempty"`
}

// emptyBody is the zero-field MessagePack map sent by PING, DISCONNECT,
// LIST_DATABASES and UNSUBSCRIBE_CHANGES.
type emptyBody struct{}

// Response bodies.

type errorResponse struct {
	Error string `msgpack:"error"`
}

type getResponse struct {
	Document Document `msgpack:"document"`
}

type queryResponse struct {
	Documents []Document `msgpack:"documents"`
}

type vectorSearchResponse struct {
	Results []VectorMatch `msgpack:"results"`
}

type listCollectionsResponse struct {
	Collections []string `msgpack:"collections"`
}

type listDatabasesResponse struct {
	Databases []string `msgpack:"databases"`
}

// decodeResult maps a response frame onto the error taxonomy and, for
// success frames, unpacks the body into out (out may be nil when the
// caller only needs the status).
func decodeResult(op MsgType, payload []byte, out any) error {
	switch op {
	case MsgSuccess, MsgPong:
		if out == nil {
			return nil
		}
		return decodeBody(payload, out)
	case MsgNotFound:
		return ErrNotFound
	case MsgError, MsgDuplicate:
		var resp errorResponse
		if err := msgpack.Unmarshal(payload, &resp); err != nil || resp.Error == "" {
			resp.Error = "unknown server error"
		}
		return &ServerError{Message: resp.Error}
	case MsgChangeEvent:
		return &ProtocolError{Message: "change event received outside an active subscription"}
	default:
		return &ProtocolError{Message: fmt.Sprintf("unexpected response opcode %#x", byte(op))}
	}
}
