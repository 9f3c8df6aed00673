// The main package for the webharvest executable.
package main

import (
	"github.com/webharvest/webharvest/cmd"
)

func main() {
	cmd.Execute()
}
