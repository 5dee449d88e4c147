// Command rv resolves, locks, and syncs a project's dependency closure.
package main

import (
	"fmt"
	"os"

	"github.com/rv-tools/rv/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
