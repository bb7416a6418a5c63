package main

import (
	"github.com/tmooney/pVACtools/cmd"
)

func main() {
	cmd.Execute() // initialize cobra commands
}
