// Command portsweep scans hosts for reachable TCP and UDP ports and serves
// background scan jobs over HTTP.
package main

import (
	"github.com/anstrom/portsweep/cmd/cli"
)

// Build information, set by ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
