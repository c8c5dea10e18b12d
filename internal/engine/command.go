package engine

import (
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Subcommands consumed from the engine.
const (
	SubListLocks  = "list locks"
	SubUnlock     = "unlock"
	SubBackup     = "backup"
	SubForget     = "forget"
	SubPrune      = "prune"
	SubCheck      = "check"
	SubSelfUpdate = "self-update"
	SubCatConfig  = "cat config"
)

// Command is a typed engine invocation. Argv renders
// `<subcommand> [global flags] [subcommand args] [pass-through args]` as a
// plain argument vector; nothing is ever interpolated through a shell.
type Command struct {
	sub    []string
	global []string
	args   []string
	extra  []string
}

// NewCommand starts a command for a subcommand such as "backup" or "list locks".
func NewCommand(subcommand string) *Command {
	return &Command{sub: strings.Fields(subcommand)}
}

// Global appends engine-wide flags.
func (c *Command) Global(flags ...string) *Command {
	c.global = append(c.global, nonEmpty(flags)...)
	return c
}

// Arg appends positional or flag arguments for the subcommand.
func (c *Command) Arg(values ...string) *Command {
	c.args = append(c.args, nonEmpty(values)...)
	return c
}

// Flag appends a "--name value" pair. Empty values are skipped so optional
// settings can be passed unconditionally.
func (c *Command) Flag(name, value string) *Command {
	if strings.TrimSpace(value) == "" {
		return c
	}
	c.args = append(c.args, name, value)
	return c
}

// Extra appends pass-through arguments already split into words.
func (c *Command) Extra(values ...string) *Command {
	c.extra = append(c.extra, nonEmpty(values)...)
	return c
}

// ExtraString splits a shell-quoted argument string and appends the words.
func (c *Command) ExtraString(raw string) error {
	words, err := SplitArgs(raw)
	if err != nil {
		return err
	}
	c.extra = append(c.extra, words...)
	return nil
}

// Subcommand returns the subcommand words joined by a space.
func (c *Command) Subcommand() string {
	return strings.Join(c.sub, " ")
}

// Argv returns the argument vector handed to exec.
func (c *Command) Argv() []string {
	argv := make([]string, 0, len(c.sub)+len(c.global)+len(c.args)+len(c.extra))
	argv = append(argv, c.sub...)
	argv = append(argv, c.global...)
	argv = append(argv, c.args...)
	argv = append(argv, c.extra...)
	return argv
}

// String renders the command with shell quoting for logs.
func (c *Command) String() string {
	return shellquote.Join(c.Argv()...)
}

// SplitArgs splits a configured argument string using POSIX shell word rules.
func SplitArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	words, err := shellquote.Split(raw)
	if err != nil {
		return nil, fmt.Errorf("split arguments %q: %w", raw, err)
	}
	return words, nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
