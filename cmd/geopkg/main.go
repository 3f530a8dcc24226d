// Package main is the entry point for the geopkg binary.
package main

import (
	"os"

	"geopkg-maker/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
