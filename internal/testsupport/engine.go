package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// StubEngine is a shell script standing in for the backup engine. Each
// invocation appends its arguments as one line to CallsFile and exits with
// the code configured for its first argument (0 when unset).
type StubEngine struct {
	Path      string
	CallsFile string
}

// StubOption customizes the generated script.
type StubOption func(*stubPlan)

type stubPlan struct {
	exitCodes map[string]int
	stdout    map[string]string
}

// ExitWith makes the stub exit with code for the given first argument
// (backup, forget, prune, check, self-update, list, unlock, cat).
func ExitWith(subcommand string, code int) StubOption {
	return func(s *stubPlan) { s.exitCodes[subcommand] = code }
}

// Print makes the stub write output to stdout for the given first argument.
func Print(subcommand, output string) StubOption {
	return func(s *stubPlan) { s.stdout[subcommand] = output }
}

// NewStubEngine writes an engine stub into a temp directory.
func NewStubEngine(t testing.TB, opts ...StubOption) *StubEngine {
	t.Helper()
	plan := &stubPlan{exitCodes: map[string]int{}, stdout: map[string]string{}}
	for _, opt := range opts {
		opt(plan)
	}

	dir := t.TempDir()
	stub := &StubEngine{
		Path:      filepath.Join(dir, "restic"),
		CallsFile: filepath.Join(dir, "calls.txt"),
	}

	var script strings.Builder
	script.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&script, "echo \"$*\" >> '%s'\n", stub.CallsFile)
	script.WriteString("case \"$1\" in\n")
	keys := make(map[string]struct{})
	for k := range plan.exitCodes {
		keys[k] = struct{}{}
	}
	for k := range plan.stdout {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, sub := range sorted {
		fmt.Fprintf(&script, "  %s)\n", sub)
		if out, ok := plan.stdout[sub]; ok {
			fmt.Fprintf(&script, "    printf '%%s\\n' '%s'\n", out)
		}
		if code := plan.exitCodes[sub]; code != 0 {
			fmt.Fprintf(&script, "    echo '%s failed' >&2\n", sub)
			fmt.Fprintf(&script, "    exit %d\n", code)
		}
		script.WriteString("    ;;\n")
	}
	script.WriteString("esac\nexit 0\n")

	if err := os.WriteFile(stub.Path, []byte(script.String()), 0o755); err != nil {
		t.Fatalf("write stub engine: %v", err)
	}
	return stub
}

// Calls returns the recorded argument lines.
func (s *StubEngine) Calls(t testing.TB) []string {
	t.Helper()
	data, err := os.ReadFile(s.CallsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read stub calls: %v", err)
	}
	trimmed := strings.TrimRight(string(data), "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

// CallsWithPrefix returns the recorded lines starting with prefix.
func (s *StubEngine) CallsWithPrefix(t testing.TB, prefix string) []string {
	t.Helper()
	var out []string
	for _, call := range s.Calls(t) {
		if strings.HasPrefix(call, prefix) {
			out = append(out, call)
		}
	}
	return out
}
