// Command iqrah is a thin CLI driver over iqrah-core: the out-of-scope
// "CLI tooling" collaborator from spec.md §1, included only so the core is
// exercisable end-to-end against a local SQLite snapshot. Grounded on the
// teacher's cobra entry point (internal/cli/agent.go's rootCmd + init()
// registration style).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
