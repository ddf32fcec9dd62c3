// The main package for the jobradar executable.
package main

import (
	"github.com/careermap/jobradar/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
