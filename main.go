// The main package for the invcrawler executable.
package main

import (
	"github.com/libertymp-tools/invcrawler/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
