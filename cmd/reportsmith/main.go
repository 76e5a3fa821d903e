// Command reportsmith manages and renders report templates.
package main

import (
	"os"

	"github.com/opencode-ai/reportsmith/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
