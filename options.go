// Copyright 2025 The NexaDB Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package nexadb

// DefaultDatabase is the database targeted when no WithDatabase option is
// given.
const DefaultDatabase = "default"

const (
	defaultQueryLimit        = 100
	defaultVectorSearchLimit = 10
)

// CallOption adjusts a single call. The client keeps no state about the
// chosen database or limits between calls; every option is pure parameter
// forwarding.
type CallOption func(*callSettings)

type callSettings struct {
	database         string
	limit            int
	limitSet         bool
	projection       map[string]int
	filters          Filter
	operations       []string
	vectorDimensions int
	m                int
	efConstruction   int
}

func newCallSettings(opts []CallOption) callSettings {
	s := callSettings{database: DefaultDatabase}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s *callSettings) limitOr(def int) int {
	if s.limitSet {
		return s.limit
	}
	return def
}

// WithDatabase targets a database other than "default".
func WithDatabase(name string) CallOption {
	return func(s *callSettings) {
		if name != "" {
			s.database = name
		}
	}
}

// WithLimit bounds the number of results a query or vector search returns.
func WithLimit(n int) CallOption {
	return func(s *callSettings) {
		if n > 0 {
			s.limit = n
			s.limitSet = true
		}
	}
}

// WithProjection restricts query results to the named fields. The "_id"
// field is always kept.
func WithProjection(fields ...string) CallOption {
	return func(s *callSettings) {
		if len(fields) == 0 {
			return
		}
		s.projection = make(map[string]int, len(fields))
		for _, f := range fields {
			s.projection[f] = 1
		}
	}
}

// WithFilters applies metadata filters to a vector search.
func WithFilters(filters Filter) CallOption {
	return func(s *callSettings) {
		s.filters = filters
	}
}

// WithOperations restricts a change stream to the named operation types
// (insert, update, delete, dropCollection).
func WithOperations(ops ...string) CallOption {
	return func(s *callSettings) {
		s.operations = ops
	}
}

// WithVectorDimensions declares the vector dimensionality of a collection
// at creation time, or overrides the auto-detected dimensionality of a
// vector search.
func WithVectorDimensions(n int) CallOption {
	return func(s *callSettings) {
		if n > 0 {
			s.vectorDimensions = n
		}
	}
}

// WithHNSWParams tunes HNSW index construction. m is the maximum number of
// connections per layer, efConstruction the dynamic candidate list size.
// Zero values keep the server defaults.
func WithHNSWParams(m, efConstruction int) CallOption {
	return func(s *callSettings) {
		s.m = m
		s.efConstruction = efConstruction
	}
}
