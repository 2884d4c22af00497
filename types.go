// Copyright 2025 The NexaDB Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package nexadb

// Document is a schemaless record stored in a named collection. The server
// assigns the "_id" key and timestamp fields on insert.
type Document = map[string]any

// Filter is a query filter forwarded verbatim to the server. Values are
// either literals (equality match) or nested operator maps keyed by the
// comparison operators below.
type Filter = map[string]any

// Comparison operator keys understood by the server's filter evaluator.
const (
	OpGreaterThan    = "$gt"
	OpGreaterOrEqual = "$gte"
	OpLessThan       = "$lt"
	OpLessOrEqual    = "$lte"
	OpNotEqual       = "$ne"
	OpIn             = "$in"
)

// WriteResult reports the outcome of a single-document write.
type WriteResult struct {
	Database   string `msgpack:"database"`
	Collection string `msgpack:"collection"`
	DocumentID string `msgpack:"document_id"`
	Message    string `msgpack:"message"`
}

// BatchFailure describes one document the server rejected during a batch
// write, identified by its index in the submitted slice.
type BatchFailure struct {
	Index int    `msgpack:"index"`
	Error string `msgpack:"error"`
}

// BatchResult reports the outcome of a batch write. Failures holds the
// per-document rejections; the client never retries them.
type BatchResult struct {
	Count       int            `msgpack:"count"`
	DocumentIDs []string       `msgpack:"document_ids"`
	Failures    []BatchFailure `msgpack:"failures"`
}

// VectorMatch is one ranked vector search result. Similarity is computed
// by the server; the document is returned denormalized.
type VectorMatch struct {
	Similarity float64  `msgpack:"similarity"`
	Document   Document `msgpack:"document"`
}

// Pong is the server's reply to a ping.
type Pong struct {
	Status    string  `msgpack:"status"`
	Timestamp float64 `msgpack:"timestamp"`
}

// DatabaseStats summarizes one database.
type DatabaseStats struct {
	Database    string `msgpack:"database"`
	Collections int    `msgpack:"collections_count"`
	Documents   int    `msgpack:"documents_count"`
}
