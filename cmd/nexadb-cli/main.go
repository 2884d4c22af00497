// Copyright 2025 The NexaDB Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

// Command nexadb-cli is a small shell around the Go client for poking at
// a NexaDB server: ping, CRUD, queries, and change streams.
//
// Usage:
//
//	nexadb-cli [flags] ping
//	nexadb-cli [flags] create <collection> <json-document>
//	nexadb-cli [flags] get <collection> <id>
//	nexadb-cli [flags] delete <collection> <id>
//	nexadb-cli [flags] query <collection> [json-filters]
//	nexadb-cli [flags] collections
//	nexadb-cli [flags] databases
//	nexadb-cli [flags] stats <database>
//	nexadb-cli [flags] watch [collection]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	nexadb "github.com/nexadb/nexadb-go"
)

var (
	host     = flag.String("host", "localhost", "server host")
	port     = flag.Int("port", 6970, "server port")
	username = flag.String("user", "root", "username")
	password = flag.String("pass", "nexadb123", "password")
	database = flag.String("db", "default", "target database")
	timeout  = flag.Duration("timeout", 30*time.Second, "call timeout")
	limit    = flag.Int("limit", 100, "query result limit")
)

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := &nexadb.Config{
		Host:     *host,
		Port:     *port,
		Username: *username,
		Password: *password,
		Timeout:  *timeout,
	}

	err := nexadb.With(cfg, func(db *nexadb.Client) error {
		return run(db, args)
	})
	if err != nil {
		log.Fatal(err)
	}
}

func run(db *nexadb.Client, args []string) error {
	inDB := nexadb.WithDatabase(*database)

	switch cmd := args[0]; cmd {
	case "ping":
		pong, err := db.Ping()
		if err != nil {
			return err
		}
		fmt.Printf("%s (server time %.3f)\n", pong.Status, pong.Timestamp)
		return nil

	case "create":
		if len(args) != 3 {
			return fmt.Errorf("usage: create <collection> <json-document>")
		}
		var doc nexadb.Document
		if err := json.Unmarshal([]byte(args[2]), &doc); err != nil {
			return fmt.Errorf("parse document: %w", err)
		}
		res, err := db.Create(args[1], doc, inDB)
		if err != nil {
			return err
		}
		fmt.Println(res.DocumentID)
		return nil

	case "get":
		if len(args) != 3 {
			return fmt.Errorf("usage: get <collection> <id>")
		}
		doc, err := db.Get(args[1], args[2], inDB)
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("no document %q in %q", args[2], args[1])
		}
		return printJSON(doc)

	case "delete":
		if len(args) != 3 {
			return fmt.Errorf("usage: delete <collection> <id>")
		}
		_, err := db.Delete(args[1], args[2], inDB)
		return err

	case "query":
		if len(args) < 2 {
			return fmt.Errorf("usage: query <collection> [json-filters]")
		}
		filters := nexadb.Filter{}
		if len(args) == 3 {
			if err := json.Unmarshal([]byte(args[2]), &filters); err != nil {
				return fmt.Errorf("parse filters: %w", err)
			}
		}
		docs, err := db.Query(args[1], filters, inDB, nexadb.WithLimit(*limit))
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := printJSON(doc); err != nil {
				return err
			}
		}
		return nil

	case "collections":
		names, err := db.ListCollections(inDB)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil

	case "databases":
		names, err := db.ListDatabases()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil

	case "stats":
		if len(args) != 2 {
			return fmt.Errorf("usage: stats <database>")
		}
		stats, err := db.DatabaseStats(args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d collections, %d documents\n", stats.Database, stats.Collections, stats.Documents)
		return nil

	case "watch":
		collection := ""
		if len(args) > 1 {
			collection = args[1]
		}
		stream, err := db.Watch(collection)
		if err != nil {
			return err
		}
		defer stream.Close()
		log.Printf("watching %q (ctrl-c to stop)", collection)
		for {
			event, err := stream.Next()
			if err != nil {
				return err
			}
			fmt.Printf("%s %s.%s key=%v\n",
				event.OperationType, event.Namespace.Database, event.Namespace.Collection, event.DocumentKey)
		}

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printJSON(v any) error {
	out, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
