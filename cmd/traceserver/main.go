// Command traceserver serves the read-only trace inspection API over a
// sqlite trace database produced by schedsim runs. Adapted from
// cmd/analytics-server's flag-parsing and log.Fatalf idiom, repurposed
// from the mutable repository API to internal/tracedb's read-only one.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/halvorsen/schedsim-go/internal/api"
	"github.com/halvorsen/schedsim-go/internal/tracedb"
)

func main() {
	var (
		dbPath = flag.String("db", "schedsim.db", "Path to sqlite trace database")
		port   = flag.String("port", "8080", "Port to run the inspection API on")
	)
	flag.Parse()

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil && filepath.Dir(*dbPath) != "." {
		log.Fatalf("failed to create database directory: %v", err)
	}

	log.Printf("connecting to trace database at %s", *dbPath)
	db, err := tracedb.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open trace database: %v", err)
	}
	defer db.Close()

	log.Printf("starting trace inspection API on port %s", *port)
	server := api.NewServer(db, *port)
	if err := server.Start(); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
