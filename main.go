package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/easelhq/easel/cmd"
)

func main() {
	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load(".env")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
