// Package main is the entry point for the flowstat trace analyzer.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/flowstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
