// Package main is the single-binary entrypoint for the gridd node.
package main

import "github.com/threefoldtech/substrate-research/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
