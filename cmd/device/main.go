package main

import (
	"fmt"
	"os"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	root, release := newRootCommand(openAgent)
	err := root.Execute()
	if closeErr := release(); closeErr != nil {
		fmt.Fprintln(os.Stderr, "error closing outbox:", closeErr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
