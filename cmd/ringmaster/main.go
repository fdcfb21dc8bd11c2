// Command ringmaster plays GTP Go engines against each other.
package main

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/ringmaster/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ringmaster: %v\n", err)
		os.Exit(1)
	}
}
