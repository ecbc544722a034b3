// Inspect a B-tree index: runs the consistency check and dumps every page.
// Usage: go run ./cmd/inspect_idx [-config file] <database> <index>
// Example: go run ./cmd/inspect_idx demo orders_by_id
package main

import (
	"flag"
	"fmt"
	"os"

	"DaemonIndex/config"
	storageengine "DaemonIndex/storage_engine"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	check := flag.Bool("check", true, "run the consistency check before the dump")
	flag.Parse()

	if flag.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-config file] <database> <index>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s demo orders_by_id\n", os.Args[0])
		os.Exit(1)
	}
	if err := inspect(*configPath, flag.Arg(0), flag.Arg(1), *check); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func inspect(configPath, db, index string, check bool) (err error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		if cfg, err = config.LoadConfig(configPath); err != nil {
			return err
		}
	}

	se, err := storageengine.NewStorageEngine(cfg, nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := se.Close(); err == nil {
			err = cerr
		}
	}()
	if err := se.UseDatabase(db); err != nil {
		return err
	}

	if check {
		report, err := se.CheckIndex(index)
		if err != nil {
			return err
		}
		fmt.Printf("Consistency: ok, %s\n", report)
		for level := report.Height - 1; level >= 0; level-- {
			fmt.Printf("  level %d: %d row(s)\n", level, report.RowsPerLevel[level])
		}
		fmt.Println()
	}
	return se.InspectIndex(index, os.Stdout)
}
