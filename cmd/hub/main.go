// Command jdcp-hub runs a hub: a multiplexing Router fanning a downstream
// set of workers out across an upstream set of servers.
package main

import (
	"fmt"
	"os"

	"github.com/bwkimmel/jdcp-go/internal/cli"
)

func main() {
	if err := cli.BuildHubCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
