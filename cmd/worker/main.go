// Command jdcp-worker runs one worker host: a Worker Pool pulling tasks
// from a server or hub, gated by the Courtesy Monitor and reconciled by
// the Completion Poller.
package main

import (
	"fmt"
	"os"

	"github.com/bwkimmel/jdcp-go/internal/cli"
)

func main() {
	if err := cli.BuildWorkerCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
