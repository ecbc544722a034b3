// dump_sample runs the seed and inspects every index it creates, writing all
// output to cmd/sample_run_output.txt. Run from repo root: go run ./cmd/dump_sample
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const (
	dbName     = "demo"
	outputFile = "cmd/sample_run_output.txt"
)

var indexes = []string{"orders_by_id", "customers_by_age", "users_by_email"}

func main() {
	root := repoRoot()
	outPath := filepath.Join(root, outputFile)

	f, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	// 1) Run seed: capture stdout/stderr to file
	fmt.Fprintln(f, "========== SEED (create DB demo, indexes, inserts, scans) ==========")
	if err := goRun(f, root, "./cmd/seed"); err != nil {
		fmt.Fprintf(f, "seed exited with error: %v\n", err)
	}

	// 2) Check and dump each index
	for _, name := range indexes {
		fmt.Fprintf(f, "\n========== INSPECT %s ==========\n", name)
		if err := goRun(f, root, "./cmd/inspect_idx", dbName, name); err != nil {
			fmt.Fprintf(f, "inspect exited with error: %v\n", err)
		}
	}

	fmt.Printf("Output written to %s\n", outPath)
}

func goRun(f *os.File, dir string, args ...string) error {
	cmd := exec.Command("go", append([]string{"run"}, args...)...)
	cmd.Stdout = f
	cmd.Stderr = f
	cmd.Dir = dir
	return cmd.Run()
}

func repoRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
