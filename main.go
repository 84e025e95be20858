// The main package for the waitbot executable.
package main

import (
	"github.com/atlwait/waitbot/cmd"
)

// main defers all execution to the Cobra CLI layer.
func main() {
	cmd.Execute()
}
