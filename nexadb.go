// Copyright 2025 The NexaDB Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

// Package nexadb provides the Go client for NexaDB.
//
// The client speaks the NexaDB binary protocol over a persistent TCP
// connection: length-prefixed frames tagged with a one-byte opcode and a
// MessagePack-encoded body. All storage, indexing, query evaluation and
// vector search happen on the server; this package only encodes requests
// and decodes responses.
//
// Example (scoped lifecycle, recommended):
//
//	err := nexadb.With(nexadb.DefaultConfig(), func(db *nexadb.Client) error {
//	    res, err := db.Create("users", nexadb.Document{
//	        "name":  "Alice",
//	        "email": "alice@example.com",
//	    })
//	    if err != nil {
//	        return err
//	    }
//	    doc, err := db.Get("users", res.DocumentID)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(doc["name"])
//	    return nil
//	})
//
// Example (manual lifecycle):
//
//	db, err := nexadb.Dial(&nexadb.Config{Host: "db.internal", Port: 6970})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	users, err := db.Query("users", nexadb.Filter{"age": nexadb.Filter{"$gte": 25}})
//
// A single Client carries one request/response exchange at a time. For
// concurrent workloads use a Pool of clients, each with its own connection.
package nexadb

// Version is the current SDK version.
const Version = "3.0.0"
