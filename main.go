// The main package for the sitepoke executable.
package main

import (
	"github.com/JakeFAU/sitepoke/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
