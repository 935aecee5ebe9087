// Command ec2spotconverter converts a live EC2 instance between on-demand
// and persistent spot billing.
package main

import (
	"os"

	"github.com/3leaps/ec2spotconverter/internal/cmd"
	"github.com/3leaps/ec2spotconverter/internal/observability"
)

// version, commit, and buildDate are set at build time via:
//
//	go build -ldflags "-X main.version=... -X main.commit=... -X main.buildDate=..."
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	defer observability.Sync()

	os.Exit(cmd.Execute())
}
