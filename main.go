// Package main is the entry point for the groundview telemetry viewer.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/groundview/cmd"
	_ "firestige.xyz/groundview/plugins"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
