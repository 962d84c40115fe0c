// Command configrepo validates, compares and serves config repository job definitions.
package main

import (
	"os"

	"github.com/Promptonauts/configrepo/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
