// Copyright 2025 The NexaDB Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

// TOON is NexaDB's token-oriented text format: a tabular rendering of
// query results that costs 40-50% fewer LLM tokens than JSON. The server
// renders it; the client forwards the text and the token accounting.

package nexadb

// TokenStats compares the token cost of a TOON rendering against JSON.
type TokenStats struct {
	JSONTokens       int     `msgpack:"json_tokens"`
	TOONTokens       int     `msgpack:"toon_tokens"`
	ReductionPercent float64 `msgpack:"reduction_percent"`
}

// TOONResult carries a TOON-rendered result set.
type TOONResult struct {
	Data       string     `msgpack:"data"`
	Count      int        `msgpack:"count"`
	TokenStats TokenStats `msgpack:"token_stats"`
}

// QueryTOON runs a filtered query whose results the server renders as
// TOON text instead of documents.
func (c *Client) QueryTOON(collection string, filters Filter, opts ...CallOption) (*TOONResult, error) {
	s := newCallSettings(opts)
	if filters == nil {
		filters = Filter{}
	}

	var res TOONResult
	err := c.call(MsgQueryTOON, &queryRequest{
		Collection: collection,
		Filters:    filters,
		Limit:      s.limitOr(defaultQueryLimit),
		Database:   s.database,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ExportTOON renders an entire collection as TOON text.
func (c *Client) ExportTOON(collection string, opts ...CallOption) (*TOONResult, error) {
	s := newCallSettings(opts)
	var res TOONResult
	err := c.call(MsgExportTOON, &collectionRequest{
		Collection: collection,
		Database:   s.database,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
