// entitycore compiles entity schemas, imports records through their
// pipelines and serves a storage backend over gRPC
package main

import (
	"os"

	"github.com/nainya/entitycore/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
