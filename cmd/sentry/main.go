// Package main is the single-binary entrypoint for Sentry.
package main

import "github.com/sentrymesh/sentry/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
