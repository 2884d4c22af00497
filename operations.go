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
	"time"
)

// Create inserts a document into a collection and returns the server's
// write result, including the assigned document ID.
func (c *Client) Create(collection string, data Document, opts ...CallOption) (*WriteResult, error) {
	s := newCallSettings(opts)
	var res WriteResult
	err := c.call(MsgCreate, &createRequest{
		Collection: collection,
		Data:       data,
		Database:   s.database,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Insert inserts a document and returns only the assigned document ID.
func (c *Client) Insert(collection string, data Document, opts ...CallOption) (string, error) {
	res, err := c.Create(collection, data, opts...)
	if err != nil {
		return "", err
	}
	return res.DocumentID, nil
}

// Get retrieves a document by ID. A missing document is a normal outcome:
// Get returns (nil, nil), never an error, when the server reports not
// found.
func (c *Client) Get(collection, key string, opts ...CallOption) (Document, error) {
	s := newCallSettings(opts)
	var res getResponse
	err := c.call(MsgGet, &keyRequest{
		Collection: collection,
		Key:        key,
		Database:   s.database,
	}, &res)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res.Document, nil
}

// Update applies a partial update to a document. Fields absent from
// updates are left unchanged by the server.
func (c *Client) Update(collection, key string, updates Document, opts ...CallOption) (*WriteResult, error) {
	s := newCallSettings(opts)
	var res WriteResult
	err := c.call(MsgUpdate, &updateRequest{
		Collection: collection,
		Key:        key,
		Updates:    updates,
		Database:   s.database,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Delete removes a document by ID.
func (c *Client) Delete(collection, key string, opts ...CallOption) (*WriteResult, error) {
	s := newCallSettings(opts)
	var res WriteResult
	err := c.call(MsgDelete, &keyRequest{
		Collection: collection,
		Key:        key,
		Database:   s.database,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Query returns the documents matching filters, bounded by WithLimit
// (default 100). Filters are evaluated entirely on the server and result
// ordering is whatever the server returns. A nil filter matches all
// documents.
func (c *Client) Query(collection string, filters Filter, opts ...CallOption) ([]Document, error) {
	s := newCallSettings(opts)
	if filters == nil {
		filters = Filter{}
	}

	var res queryResponse
	err := c.call(MsgQuery, &queryRequest{
		Collection: collection,
		Filters:    filters,
		Limit:      s.limitOr(defaultQueryLimit),
		Database:   s.database,
		Projection: s.projection,
	}, &res)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(res.Documents))
	for _, doc := range res.Documents {
		if isCollectionMarker(doc) {
			continue
		}
		if s.projection != nil {
			doc = projectDocument(doc, s.projection)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// BatchWrite inserts a document set in one frame. Per-document failures
// are collected from the server response; the client does not retry them.
func (c *Client) BatchWrite(collection string, documents []Document, opts ...CallOption) (*BatchResult, error) {
	s := newCallSettings(opts)
	var res BatchResult
	err := c.call(MsgBatchWrite, &batchWriteRequest{
		Collection: collection,
		Documents:  documents,
		Database:   s.database,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// VectorSearch runs a server-side similarity search and returns ranked
// matches. Dimensionality defaults to len(vector); override it with
// WithVectorDimensions. The client performs no similarity computation.
func (c *Client) VectorSearch(collection string, vector []float32, opts ...CallOption) ([]VectorMatch, error) {
	s := newCallSettings(opts)
	dims := s.vectorDimensions
	if dims == 0 {
		dims = len(vector)
	}

	var res vectorSearchResponse
	err := c.call(MsgVectorSearch, &vectorSearchRequest{
		Collection: collection,
		Vector:     vector,
		Limit:      s.limitOr(defaultVectorSearchLimit),
		Dimensions: dims,
		Database:   s.database,
		Filters:    s.filters,
	}, &res)
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

// Ping checks server liveness over the established connection.
func (c *Client) Ping() (*Pong, error) {
	var pong Pong
	if err := c.call(MsgPing, emptyBody{}, &pong); err != nil {
		return nil, err
	}
	return &pong, nil
}

// CreateCollection creates a collection. Collections spring into existence
// on first insert, so this writes a marker document the query layer hides
// from results. Declare WithVectorDimensions for vector collections.
func (c *Client) CreateCollection(name string, opts ...CallOption) error {
	s := newCallSettings(opts)
	marker := Document{
		"_nexadb_collection_marker": true,
		"_created_at":               float64(time.Now().UnixMilli()) / 1e3,
	}
	if s.vectorDimensions > 0 {
		marker["_vector_dimensions"] = s.vectorDimensions
	}
	_, err := c.Create(name, marker, WithDatabase(s.database))
	return err
}

// DropCollection removes a collection and all its documents.
func (c *Client) DropCollection(name string, opts ...CallOption) error {
	s := newCallSettings(opts)
	return c.call(MsgDropCollection, &collectionRequest{
		Collection: name,
		Database:   s.database,
	}, nil)
}

// ListCollections returns the collection names in a database.
func (c *Client) ListCollections(opts ...CallOption) ([]string, error) {
	s := newCallSettings(opts)
	var res listCollectionsResponse
	err := c.call(MsgListCollections, &databaseRequest{Database: s.database}, &res)
	if err != nil {
		return nil, err
	}
	return res.Collections, nil
}

// CreateDatabase creates a database. The server rejects duplicates.
func (c *Client) CreateDatabase(name string) error {
	return c.call(MsgCreateDatabase, &databaseRequest{Database: name}, nil)
}

// DropDatabase removes a database and every collection in it.
func (c *Client) DropDatabase(name string) error {
	return c.call(MsgDropDatabase, &databaseRequest{Database: name}, nil)
}

// ListDatabases returns all database names on the server.
func (c *Client) ListDatabases() ([]string, error) {
	var res listDatabasesResponse
	if err := c.call(MsgListDatabases, emptyBody{}, &res); err != nil {
		return nil, err
	}
	return res.Databases, nil
}

// DatabaseStats returns server-side statistics for one database.
func (c *Client) DatabaseStats(name string) (*DatabaseStats, error) {
	var stats DatabaseStats
	err := c.call(MsgDatabaseStats, &databaseRequest{Database: name}, &stats)
	if err != nil {
		return nil, err
	}
	if stats.Database == "" {
		stats.Database = name
	}
	return &stats, nil
}

// BuildHNSWIndex asks the server to build an HNSW index over a vector
// collection. Tune construction with WithHNSWParams.
func (c *Client) BuildHNSWIndex(collection string, opts ...CallOption) error {
	s := newCallSettings(opts)
	return c.call(MsgBuildHNSWIndex, &buildIndexRequest{
		Collection:     collection,
		Database:       s.database,
		M:              s.m,
		EfConstruction: s.efConstruction,
	}, nil)
}

// isCollectionMarker reports whether a document is the internal marker
// CreateCollection writes.
func isCollectionMarker(doc Document) bool {
	for _, key := range []string{"_nexadb_collection_marker", "_collection_init"} {
		if v, ok := doc[key]; ok {
			if b, ok := v.(bool); ok && b {
				return true
			}
		}
	}
	return false
}

// projectDocument keeps only the projected fields, always retaining "_id".
func projectDocument(doc Document, projection map[string]int) Document {
	out := Document{}
	for field, include := range projection {
		if include != 1 {
			continue
		}
		if v, ok := doc[field]; ok {
			out[field] = v
		}
	}
	if id, ok := doc["_id"]; ok {
		out["_id"] = id
	}
	return out
}
