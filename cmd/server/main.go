// Command jdcp-server runs the platform's client-and-worker-facing server:
// the Job Manager, Task Scheduler, and Versioned Class Manager behind a
// gRPC listener.
package main

import (
	"fmt"
	"os"

	"github.com/bwkimmel/jdcp-go/internal/cli"
)

func main() {
	if err := cli.BuildServerCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
