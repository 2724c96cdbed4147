// Package main implements nearmectl, an operator CLI for inspecting merchant
// feeds with the same discovery pipeline the API uses.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
