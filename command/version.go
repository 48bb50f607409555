package command

import (
	"github.com/hashicorp/cli"
	"github.com/mecaplan/mecaplan/version"
)

// VersionCommand prints the build version.
type VersionCommand struct {
	Ui      cli.Ui
	Version *version.VersionInfo
}

func (c *VersionCommand) Help() string {
	return ""
}

func (c *VersionCommand) Run(_ []string) int {
	c.Ui.Output(c.Version.FullVersionNumber(true))
	return 0
}

func (c *VersionCommand) Synopsis() string {
	return "Prints the version"
}
