package cmd

import (
	"fmt"

	"github.com/easelhq/easel/internal/version"
)

// runVersion prints build information.
func runVersion() {
	fmt.Printf("Easel %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
}
