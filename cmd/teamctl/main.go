// teamctl is the launcher CLI for starting, monitoring, and stopping a
// team of autonomous coding agents.
package main

import (
	"os"

	"github.com/omx/teamctl/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
