// Package main provides the Docker container entrypoint
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

func main() {
	// Get environment variables with defaults
	runType := getEnvWithDefault("RUN_TYPE", "worker")
	workerType := getEnvWithDefault("WORKER_TYPE", "reconcile")
	autoMigrate := strings.EqualFold(os.Getenv("AUTO_MIGRATE"), "true")

	// Execute the appropriate binary based on RUN_TYPE
	switch runType {
	case "worker":
		args := []string{}
		if autoMigrate {
			args = append(args, "--auto-migrate")
		}
		if workerID := os.Getenv("WORKER_ID"); workerID != "" {
			args = append(args, "--worker-id", workerID)
		}
		execBinary("/app/bin/worker", append(args, workerType)...)
	case "migrate":
		execBinary("/app/bin/db", "migrate")
	default:
		fmt.Fprintf(os.Stderr, "Invalid RUN_TYPE. Must be either 'worker' or 'migrate'\n")
		fmt.Fprintf(os.Stderr, "Usage: RUN_TYPE=worker [WORKER_TYPE=reconcile] [WORKER_ID=<id>] [AUTO_MIGRATE=true]\n")
		os.Exit(1)
	}
}

// getEnvWithDefault returns the environment variable value or the default if not set.
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// execBinary executes the specified binary with given arguments.
func execBinary(path string, args ...string) {
	cmd := exec.Command(path, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute %s: %v\n", filepath.Base(path), err)
		os.Exit(1)
	}
}
