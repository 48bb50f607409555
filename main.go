package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/cli"
	"github.com/mecaplan/mecaplan/command"
	"github.com/mecaplan/mecaplan/version"
)

func main() {
	os.Exit(Run(os.Args[1:]))
}

// Run executes the CLI and returns the exit code.
func Run(args []string) int {
	c := cli.NewCLI("mecaplan", version.GetVersion().VersionNumber())
	c.Args = args
	c.Commands = command.Commands(nil)

	exitCode, err := c.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing CLI: %s\n", err)
		return 1
	}
	return exitCode
}
