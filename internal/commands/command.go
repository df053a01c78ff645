package commands

import (
	"context"
	"strings"

	"github.com/ichi0g0y/alliance-bot/internal/platform"
)

// Command is one entry of the command table. A command with subcommands
// runs its own Run only when no subcommand name matches.
type Command struct {
	Name        string
	Aliases     []string
	Brief       string
	Permission  platform.Permission
	Args        []ArgSpec
	Subcommands []*Command
	Run         func(ctx context.Context, req *Request) (string, error)

	parent *Command
}

func (c *Command) subcommand(name string) (*Command, bool) {
	name = strings.ToLower(name)
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			return sub, true
		}
	}
	return nil, false
}

// permission falls back to the parent's requirement.
func (c *Command) permission() platform.Permission {
	if c.Permission == 0 && c.parent != nil {
		return c.parent.permission()
	}
	return c.Permission
}

func (c *Command) qualifiedName() string {
	if c.parent != nil {
		return c.parent.qualifiedName() + " " + c.Name
	}
	return c.Name
}

func (c *Command) signature() string {
	parts := make([]string, 0, len(c.Args))
	for _, a := range c.Args {
		parts = append(parts, a.signature())
	}
	return strings.Join(parts, " ")
}

func link(parent *Command) *Command {
	for _, sub := range parent.Subcommands {
		sub.parent = parent
	}
	return parent
}
