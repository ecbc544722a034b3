// Seed program: creates database "demo" with three indexes and sample rows.
// Run: go run ./cmd/seed
// Then inspect: go run ./cmd/inspect_idx demo <index>
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	executor "DaemonIndex/command_executor"
	"DaemonIndex/config"
	storageengine "DaemonIndex/storage_engine"
)

const dbName = "demo"

func main() {
	cfg := config.DefaultConfig()
	// small pages so a few hundred rows already build a multi-level tree
	cfg.BTree.MaxRowsPerPage = 8

	// start fresh
	if err := os.RemoveAll(filepath.Join(cfg.Storage.DataDir, dbName)); err != nil {
		log.Fatalf("remove old database: %v", err)
	}

	se, err := storageengine.NewStorageEngine(cfg, nil)
	if err != nil {
		log.Fatalf("storage engine: %v", err)
	}
	vm := executor.NewVM(se, os.Stdout, nil)

	run := func(line string) {
		fmt.Printf("idx> %s\n", line)
		if err := vm.ExecuteLine(line); err != nil {
			log.Fatalf("execute %q: %v", line, err)
		}
	}

	run("create database " + dbName)
	run("use " + dbName)

	// Index 1: unique order ids, bulk loaded
	run("create index orders_by_id on orders (id int) unique")
	run("load orders_by_id range 1 300")

	// Index 2: customers by age, duplicates allowed
	run("create index customers_by_age on customers (age int, name string)")
	run("insert customers_by_age (31, 'alice'), (24, 'bob'), (31, 'carol'), (45, 'dave'), (19, 'erin')")
	run("insert customers_by_age (24, 'frank'), (52, 'grace'), (38, 'heidi'), (24, 'ivan'), (61, 'judy')")
	run("insert customers_by_age (null, 'mallory') at 9:1")

	// Index 3: almost-unique emails, newest first
	run("create index users_by_email on users (email string desc) unique nulls")
	run("insert users_by_email ('a@example.com'), ('b@example.com'), (null) at 3:1, (null) at 3:2")

	// deletes in a transaction, some rolled back
	run("begin")
	run("delete orders_by_id from (100) to (150)")
	run("commit")
	run("begin")
	run("delete customers_by_age where age < 30")
	run("rollback")

	fmt.Println("\n--- scan customers_by_age ---")
	run("scan customers_by_age")
	fmt.Println("\n--- scan orders_by_id from (95) to (155) ---")
	run("scan orders_by_id from (95) to (155)")
	fmt.Println("\n--- max ---")
	run("max orders_by_id")
	run("max customers_by_age where age < 40")

	run("checkpoint")
	run("stats")

	if err := vm.Close(); err != nil {
		log.Fatalf("close vm: %v", err)
	}
	if err := se.Close(); err != nil {
		log.Fatalf("close engine: %v", err)
	}

	fmt.Println("\nDone. Inspect:")
	fmt.Println("  - Index files:      ", filepath.Join(cfg.Storage.DataDir, dbName, "indexes", "*.idx"))
	fmt.Println("  - Index schemas:    ", filepath.Join(cfg.Storage.DataDir, dbName, "indexes", "*_schema.json"))
	fmt.Println("  - Table-file map:   ", filepath.Join(cfg.Storage.DataDir, dbName, "metadata", "table_file_mapping.json"))
	fmt.Println("  - Log segments:     ", filepath.Join(cfg.Storage.DataDir, dbName, "logs"))
}
