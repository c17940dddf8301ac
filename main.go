// The main package for the arxiv-harvest executable.
package main

import (
	"github.com/JakeFAU/arxiv-harvest/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
