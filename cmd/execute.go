// Package cmd contains the command-line entry points for the surfers
// backend. main.go stays a minimal shim; all initialization, flag parsing,
// and command routing live here.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/surfersbangs/surfers/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.0.1"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point for the surfers backend.
// Called from main(); also callable from tests.
func Execute() error {
	// Handle special flags before full initialization so --version and
	// --help work even when config is invalid.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			return printVersionInfo()
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "serve":
			return runServe()
		default:
			printHelp()
			return fmt.Errorf("unknown command: %s", os.Args[1])
		}
	}

	// Serving is the only mode, so a bare invocation serves.
	return runServe()
}

// initLogger builds the process logger.
//
// Log level is controlled by the DEBUG environment variable:
//   - DEBUG set (any value): debug level logging
//   - DEBUG not set: info level logging
//
// SURFERS_LOG_JSON switches to JSON output for log aggregation.
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	if os.Getenv("SURFERS_LOG_JSON") != "" {
		cfg.JSON = true
	}
	return log.New(cfg)
}

// printVersionInfo displays version information.
func printVersionInfo() error {
	fmt.Printf("surfers v%s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
	return nil
}

// printHelp displays the help message.
func printHelp() {
	fmt.Println("surfers - backend for the Surfers app builder")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  surfers                  Start the HTTP server (default)")
	fmt.Println("  surfers serve [:port]    Start the HTTP server on an address")
	fmt.Println("  surfers --version        Show version information")
	fmt.Println("  surfers --help           Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  SURFERS_API_KEY          Required: upstream model API key")
	fmt.Println("  SURFERS_BASE_URL         Optional: upstream base URL")
	fmt.Println("  SURFERS_MODEL_NAME       Optional: upstream model name")
	fmt.Println("  SURFERS_DATA_DIR         Optional: artifact storage directory")
	fmt.Println("  SURFERS_PUBLIC_BASE_URL  Optional: absolute URL for preview/live links")
	fmt.Println("  DEBUG                    Optional: enable debug logging")
	fmt.Println()
	fmt.Println("Learn more: https://github.com/surfersbangs/surfers")
}
