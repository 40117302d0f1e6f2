// Package cmd provides the easel command line interface.
//
// Commands:
//   - serve: HTTP API server with SSE chat streaming
//   - sessions: list and export stored chat sessions
//   - version: build information
//
// Signal handling and graceful shutdown are implemented via context
// cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/easelhq/easel/internal/log"
)

// Execute is the main entry point for the easel CLI.
func Execute() error {
	// Bootstrap logger; serve replaces it once config is loaded
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "sessions":
		return runSessions()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Easel - streaming chat server with an artifact canvas")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  easel serve [addr]          Start the HTTP API server (default: 127.0.0.1:8420)")
	fmt.Println("  easel sessions list         List stored chat sessions")
	fmt.Println("  easel sessions export <id>  Export a session transcript")
	fmt.Println("  easel --version             Show version information")
	fmt.Println("  easel --help                Show this help")
	fmt.Println()
	fmt.Println("Export flags:")
	fmt.Println("  --format json|markdown      Transcript format (default: markdown)")
	fmt.Println("  --preview                   Render the markdown transcript in the terminal")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  EASEL_SERVER_PORT           Override the listen port")
	fmt.Println("  DATABASE_URL                PostgreSQL connection URL")
	fmt.Println("  DEBUG                       Enable debug logging")
	fmt.Println()
	fmt.Println("Learn more: https://github.com/easelhq/easel")
}
