// Package main is the entrypoint for keyctl, the keygate operator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/keygate/keygate/cmd/keyctl/cli"
)

// Set via -ldflags at build time
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
