package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// fatalExitCode is reserved for startup failures so it never collides with
// a failed-attempt count.
const fatalExitCode = 255

// exitError carries a process exit status out of a command. A nil err means
// nothing further needs printing.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	err := cmd.Execute()
	return exitCode(err, cmd.ErrOrStderr())
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil && !errors.Is(exitErr.err, context.Canceled) {
			fmt.Fprintln(stderr, exitErr.err)
		}
		return exitErr.code
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, err)
	}
	return 1
}
