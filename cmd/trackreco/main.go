// Command trackreco reconstructs drift-chamber tracks and manages the run
// database.
package main

import (
	"os"

	"github.com/banshee-data/trackreco/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
