package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	executor "DaemonIndex/command_executor"
	"DaemonIndex/config"
	"DaemonIndex/logging"
	storageengine "DaemonIndex/storage_engine"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	database := flag.String("db", "", "database to use on start")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	se, err := storageengine.NewStorageEngine(cfg, logger)
	if err != nil {
		logger.Fatal("failed to start storage engine", zap.Error(err))
	}
	vm := executor.NewVM(se, os.Stdout, logger)

	if *database != "" {
		if err := vm.ExecuteLine("use " + *database); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	// REPL
	for {
		fmt.Print("idx> ")

		if !scanner.Scan() { // Ctrl+D pressed
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			break
		}
		if line == "" {
			continue
		}

		if err := vm.ExecuteLine(line); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}

	if err := vm.Close(); err != nil {
		logger.Warn("failed to roll back the open transaction", zap.Error(err))
	}
	if err := se.Close(); err != nil {
		logger.Error("failed to close storage engine", zap.Error(err))
		os.Exit(1)
	}
}

// loadConfig reads path, or the defaults with DAEMONINDEX_* overrides when
// no file is given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.ParseConfig(nil)
	}
	return config.LoadConfig(path)
}
