// Copyright 2025 The NexaDB Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package nexadb

import (
	"fmt"
	"math"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// testServer is an in-process NexaDB stand-in speaking the real wire
// protocol, backed by maps. It exists so client tests exercise actual
// frames on an actual socket.
type testServer struct {
	t  *testing.T
	ln net.Listener

	user string
	pass string

	mu        sync.Mutex
	databases map[string]map[string]map[string]Document // database → collection → id → doc
	conns     map[net.Conn]*testConn

	dropAfterAuth int           // close this many connections right after a successful handshake
	stallNext     time.Duration // hold back the next response this long
}

type testConn struct {
	conn net.Conn
	wmu  sync.Mutex

	submu      sync.Mutex
	subscribed bool
	collection string
	operations map[string]bool
}

func (tc *testConn) reply(op MsgType, body any) {
	frame, err := encodeFrame(op, body)
	if err != nil {
		return
	}
	tc.wmu.Lock()
	defer tc.wmu.Unlock()
	_, _ = tc.conn.Write(frame)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &testServer{
		t:         t,
		ln:        ln,
		user:      "root",
		pass:      "nexadb123",
		databases: map[string]map[string]map[string]Document{"default": {}},
		conns:     map[net.Conn]*testConn{},
	}
	go s.acceptLoop()
	t.Cleanup(s.stop)
	return s
}

func (s *testServer) stop() {
	_ = s.ln.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// clientConfig returns a config pointing at this server, with a short
// timeout to keep failure tests fast.
func (s *testServer) clientConfig() *Config {
	host, portStr, err := net.SplitHostPort(s.ln.Addr().String())
	require.NoError(s.t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(s.t, err)
	return &Config{
		Host:     host,
		Port:     port,
		Username: s.user,
		Password: s.pass,
		Timeout:  2 * time.Second,
	}
}

// subscribedConn returns the connection currently in subscription mode,
// or nil.
func (s *testServer) subscribedConn() *testConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tc := range s.conns {
		tc.submu.Lock()
		sub := tc.subscribed
		tc.submu.Unlock()
		if sub {
			return tc
		}
	}
	return nil
}

// sendRaw writes bytes to a connection verbatim, bypassing frame encoding.
func (tc *testConn) sendRaw(b []byte) {
	tc.wmu.Lock()
	defer tc.wmu.Unlock()
	_, _ = tc.conn.Write(b)
}

// closeActiveConns severs every established connection, simulating a
// server-side drop.
func (s *testServer) closeActiveConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *testServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		tc := &testConn{conn: conn}
		s.mu.Lock()
		s.conns[conn] = tc
		s.mu.Unlock()
		go s.handleConn(tc)
	}
}

func (s *testServer) handleConn(tc *testConn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, tc.conn)
		s.mu.Unlock()
		_ = tc.conn.Close()
	}()

	// Authentication handshake comes first or the connection dies.
	op, payload, err := readFrame(tc.conn)
	if err != nil || op != MsgConnect {
		return
	}
	var creds connectRequest
	if decodeBody(payload, &creds) != nil {
		return
	}
	if creds.Username != s.user || creds.Password != s.pass {
		tc.reply(MsgError, errorResponse{Error: "invalid credentials"})
		return
	}
	tc.reply(MsgSuccess, map[string]any{"message": "authenticated"})

	s.mu.Lock()
	if s.dropAfterAuth > 0 {
		s.dropAfterAuth--
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	for {
		op, payload, err := readFrame(tc.conn)
		if err != nil {
			return
		}

		s.mu.Lock()
		stall := s.stallNext
		s.stallNext = 0
		s.mu.Unlock()
		if stall > 0 {
			time.Sleep(stall)
		}

		if op == MsgDisconnect {
			return
		}
		s.dispatch(tc, op, payload)
	}
}

func (s *testServer) dispatch(tc *testConn, op MsgType, payload []byte) {
	switch op {
	case MsgCreate:
		var req createRequest
		if decodeBody(payload, &req) != nil {
			tc.reply(MsgError, errorResponse{Error: "bad create body"})
			return
		}
		id := s.insert(req.Database, req.Collection, req.Data)
		s.broadcast(OperationInsert, req.Database, req.Collection, id, nil)
		tc.reply(MsgSuccess, WriteResult{
			Database:   req.Database,
			Collection: req.Collection,
			DocumentID: id,
			Message:    "Document inserted",
		})

	case MsgGet:
		var req keyRequest
		if decodeBody(payload, &req) != nil {
			tc.reply(MsgError, errorResponse{Error: "bad get body"})
			return
		}
		doc, ok := s.lookup(req.Database, req.Collection, req.Key)
		if !ok {
			tc.reply(MsgNotFound, emptyBody{})
			return
		}
		tc.reply(MsgSuccess, map[string]any{"document": doc})

	case MsgUpdate:
		var req updateRequest
		if decodeBody(payload, &req) != nil {
			tc.reply(MsgError, errorResponse{Error: "bad update body"})
			return
		}
		if !s.update(req.Database, req.Collection, req.Key, req.Updates) {
			tc.reply(MsgNotFound, emptyBody{})
			return
		}
		s.broadcast(OperationUpdate, req.Database, req.Collection, req.Key, req.Updates)
		tc.reply(MsgSuccess, WriteResult{
			Database:   req.Database,
			Collection: req.Collection,
			DocumentID: req.Key,
			Message:    "Document updated",
		})

	case MsgDelete:
		var req keyRequest
		if decodeBody(payload, &req) != nil {
			tc.reply(MsgError, errorResponse{Error: "bad delete body"})
			return
		}
		if !s.remove(req.Database, req.Collection, req.Key) {
			tc.reply(MsgNotFound, emptyBody{})
			return
		}
		s.broadcast(OperationDelete, req.Database, req.Collection, req.Key, nil)
		tc.reply(MsgSuccess, WriteResult{
			Database:   req.Database,
			Collection: req.Collection,
			DocumentID: req.Key,
			Message:    "Document deleted",
		})

	case MsgQuery:
		var req queryRequest
		if decodeBody(payload, &req) != nil {
			tc.reply(MsgError, errorResponse{Error: "bad query body"})
			return
		}
		tc.reply(MsgSuccess, map[string]any{
			"documents": s.query(req.Database, req.Collection, req.Filters, req.Limit),
		})

	case MsgBatchWrite:
		var req batchWriteRequest
		if decodeBody(payload, &req) != nil {
			tc.reply(MsgError, errorResponse{Error: "bad batch body"})
			return
		}
		ids := make([]string, 0, len(req.Documents))
		failures := []BatchFailure{}
		for i, doc := range req.Documents {
			if _, bad := doc["_fail"]; bad {
				failures = append(failures, BatchFailure{Index: i, Error: "rejected by test server"})
				continue
			}
			id := s.insert(req.Database, req.Collection, doc)
			ids = append(ids, id)
			s.broadcast(OperationInsert, req.Database, req.Collection, id, nil)
		}
		tc.reply(MsgSuccess, BatchResult{Count: len(ids), DocumentIDs: ids, Failures: failures})

	case MsgVectorSearch:
		var req vectorSearchRequest
		if decodeBody(payload, &req) != nil {
			tc.reply(MsgError, errorResponse{Error: "bad vector search body"})
			return
		}
		tc.reply(MsgSuccess, map[string]any{
			"results": s.vectorSearch(req.Database, req.Collection, req.Vector, req.Limit),
		})

	case MsgPing:
		tc.reply(MsgPong, Pong{Status: "ok", Timestamp: float64(time.Now().UnixMilli()) / 1e3})

	case MsgListCollections:
		var req databaseRequest
		_ = decodeBody(payload, &req)
		tc.reply(MsgSuccess, map[string]any{"collections": s.collections(req.Database)})

	case MsgDropCollection:
		var req collectionRequest
		if decodeBody(payload, &req) != nil {
			tc.reply(MsgError, errorResponse{Error: "bad drop body"})
			return
		}
		s.dropCollection(req.Database, req.Collection)
		s.broadcast(OperationDropCollection, req.Database, req.Collection, "", nil)
		tc.reply(MsgSuccess, map[string]any{"message": "Collection dropped"})

	case MsgSubscribeChanges:
		var req subscribeRequest
		if decodeBody(payload, &req) != nil {
			tc.reply(MsgError, errorResponse{Error: "bad subscribe body"})
			return
		}
		tc.submu.Lock()
		tc.subscribed = true
		tc.collection = req.Collection
		tc.operations = map[string]bool{}
		for _, op := range req.Operations {
			tc.operations[op] = true
		}
		tc.submu.Unlock()
		tc.reply(MsgSuccess, map[string]any{"message": "subscribed"})

	case MsgUnsubscribeChanges:
		tc.submu.Lock()
		tc.subscribed = false
		tc.submu.Unlock()
		tc.reply(MsgSuccess, map[string]any{"message": "unsubscribed"})

	case MsgListDatabases:
		tc.reply(MsgSuccess, map[string]any{"databases": s.databaseNames()})

	case MsgCreateDatabase:
		var req databaseRequest
		if decodeBody(payload, &req) != nil {
			tc.reply(MsgError, errorResponse{Error: "bad database body"})
			return
		}
		s.mu.Lock()
		_, exists := s.databases[req.Database]
		if !exists {
			s.databases[req.Database] = map[string]map[string]Document{}
		}
		s.mu.Unlock()
		if exists {
			tc.reply(MsgDuplicate, errorResponse{Error: fmt.Sprintf("database %q already exists", req.Database)})
			return
		}
		tc.reply(MsgSuccess, map[string]any{"database": req.Database, "message": "Database created"})

	case MsgDropDatabase:
		var req databaseRequest
		_ = decodeBody(payload, &req)
		s.mu.Lock()
		delete(s.databases, req.Database)
		s.mu.Unlock()
		tc.reply(MsgSuccess, map[string]any{"database": req.Database, "message": "Database dropped"})

	case MsgDatabaseStats:
		var req databaseRequest
		_ = decodeBody(payload, &req)
		collections, documents := s.stats(req.Database)
		tc.reply(MsgSuccess, DatabaseStats{
			Database:    req.Database,
			Collections: collections,
			Documents:   documents,
		})

	case MsgBuildHNSWIndex:
		var req buildIndexRequest
		if decodeBody(payload, &req) != nil {
			tc.reply(MsgError, errorResponse{Error: "bad index body"})
			return
		}
		tc.reply(MsgSuccess, map[string]any{"collection": req.Collection, "message": "Index built"})

	case MsgQueryTOON:
		var req queryRequest
		if decodeBody(payload, &req) != nil {
			tc.reply(MsgError, errorResponse{Error: "bad query body"})
			return
		}
		docs := s.query(req.Database, req.Collection, req.Filters, req.Limit)
		tc.reply(MsgSuccess, s.renderTOON(req.Collection, docs))

	case MsgExportTOON:
		var req collectionRequest
		if decodeBody(payload, &req) != nil {
			tc.reply(MsgError, errorResponse{Error: "bad export body"})
			return
		}
		docs := s.query(req.Database, req.Collection, nil, 0)
		tc.reply(MsgSuccess, s.renderTOON(req.Collection, docs))

	default:
		tc.reply(MsgError, errorResponse{Error: fmt.Sprintf("unknown opcode %#x", byte(op))})
	}
}

// Storage helpers.

func (s *testServer) collectionFor(database, collection string, create bool) map[string]Document {
	db, ok := s.databases[database]
	if !ok {
		if !create {
			return nil
		}
		db = map[string]map[string]Document{}
		s.databases[database] = db
	}
	coll, ok := db[collection]
	if !ok {
		if !create {
			return nil
		}
		coll = map[string]Document{}
		db[collection] = coll
	}
	return coll
}

func (s *testServer) insert(database, collection string, data Document) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	doc := Document{"_id": id, "_created_at": float64(time.Now().UnixMilli()) / 1e3}
	for k, v := range data {
		doc[k] = v
	}
	s.collectionFor(database, collection, true)[id] = doc
	return id
}

func (s *testServer) lookup(database, collection, id string) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collectionFor(database, collection, false)
	if coll == nil {
		return nil, false
	}
	doc, ok := coll[id]
	return doc, ok
}

func (s *testServer) update(database, collection, id string, updates Document) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collectionFor(database, collection, false)
	if coll == nil {
		return false
	}
	doc, ok := coll[id]
	if !ok {
		return false
	}
	for k, v := range updates {
		doc[k] = v
	}
	return true
}

func (s *testServer) remove(database, collection, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collectionFor(database, collection, false)
	if coll == nil {
		return false
	}
	if _, ok := coll[id]; !ok {
		return false
	}
	delete(coll, id)
	return true
}

func (s *testServer) dropCollection(database, collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.databases[database]; ok {
		delete(db, collection)
	}
}

func (s *testServer) collections(database string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := []string{}
	for name := range s.databases[database] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *testServer) databaseNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := []string{}
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *testServer) stats(database string) (collections, documents int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, coll := range s.databases[database] {
		collections++
		documents += len(coll)
	}
	return collections, documents
}

func (s *testServer) query(database, collection string, filters Filter, limit int) []Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collectionFor(database, collection, false)
	docs := []Document{}
	for _, doc := range coll {
		if matchesFilters(doc, filters) {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i]["_id"].(string) < docs[j]["_id"].(string)
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}

func (s *testServer) vectorSearch(database, collection string, vector []float32, limit int) []VectorMatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := []VectorMatch{}
	for _, doc := range s.collectionFor(database, collection, false) {
		stored, ok := doc["vector"]
		if !ok {
			continue
		}
		matches = append(matches, VectorMatch{
			Similarity: cosineSimilarity(vector, toFloatSlice(stored)),
			Document:   doc,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func (s *testServer) renderTOON(collection string, docs []Document) TOONResult {
	var b strings.Builder
	fmt.Fprintf(&b, "collection: %s\n", collection)
	fmt.Fprintf(&b, "documents[%d]{_id}:\n", len(docs))
	for _, doc := range docs {
		fmt.Fprintf(&b, "  %v\n", doc["_id"])
	}
	data := b.String()
	jsonTokens := 4 * (len(docs) + 1)
	toonTokens := len(docs) + 2
	return TOONResult{
		Data:  data,
		Count: len(docs),
		TokenStats: TokenStats{
			JSONTokens:       jsonTokens,
			TOONTokens:       toonTokens,
			ReductionPercent: 100 * float64(jsonTokens-toonTokens) / float64(jsonTokens),
		},
	}
}

// broadcast pushes a change event to every subscribed connection whose
// collection and operation filters match.
func (s *testServer) broadcast(operation, database, collection, id string, updates Document) {
	event := ChangeEvent{
		OperationType: operation,
		Namespace:     Namespace{Database: database, Collection: collection},
		DocumentKey:   map[string]any{"_id": id},
		Timestamp:     float64(time.Now().UnixMilli()) / 1e3,
	}
	if operation == OperationInsert || operation == OperationUpdate {
		if doc, ok := s.lookup(database, collection, id); ok {
			event.FullDocument = doc
		}
	}
	if operation == OperationUpdate {
		event.UpdateDescription = map[string]any{"updatedFields": updates}
	}

	s.mu.Lock()
	targets := make([]*testConn, 0, len(s.conns))
	for _, tc := range s.conns {
		targets = append(targets, tc)
	}
	s.mu.Unlock()

	for _, tc := range targets {
		tc.submu.Lock()
		interested := tc.subscribed &&
			(tc.collection == "" || tc.collection == collection) &&
			(len(tc.operations) == 0 || tc.operations[operation])
		tc.submu.Unlock()
		if interested {
			tc.reply(MsgChangeEvent, event)
		}
	}
}

// Filter evaluation, just enough for the operators the tests use.

func matchesFilters(doc Document, filters Filter) bool {
	for field, want := range filters {
		got, ok := doc[field]
		if !ok {
			return false
		}
		if ops, isOp := want.(map[string]any); isOp {
			if !matchesOperators(got, ops) {
				return false
			}
			continue
		}
		if !looseEqual(got, want) {
			return false
		}
	}
	return true
}

func matchesOperators(got any, ops map[string]any) bool {
	gf, gok := toFloat(got)
	for op, operand := range ops {
		of, ook := toFloat(operand)
		if !gok || !ook {
			return false
		}
		switch op {
		case OpGreaterThan:
			if !(gf > of) {
				return false
			}
		case OpGreaterOrEqual:
			if !(gf >= of) {
				return false
			}
		case OpLessThan:
			if !(gf < of) {
				return false
			}
		case OpLessOrEqual:
			if !(gf <= of) {
				return false
			}
		case OpNotEqual:
			if gf == of {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func looseEqual(got, want any) bool {
	if gf, ok := toFloat(got); ok {
		if wf, ok := toFloat(want); ok {
			return gf == wf
		}
		return false
	}
	return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func toFloatSlice(v any) []float64 {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, _ := toFloat(item)
		out = append(out, f)
	}
	return out
}

func cosineSimilarity(query []float32, stored []float64) float64 {
	n := len(query)
	if len(stored) < n {
		n = len(stored)
	}
	var dot, qn, sn float64
	for i := 0; i < n; i++ {
		q := float64(query[i])
		dot += q * stored[i]
		qn += q * q
		sn += stored[i] * stored[i]
	}
	if qn == 0 || sn == 0 {
		return 0
	}
	return dot / (math.Sqrt(qn) * math.Sqrt(sn))
}
