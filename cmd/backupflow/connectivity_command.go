package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/juju/clock"
	"github.com/spf13/cobra"

	"backupflow/internal/connectivity"
	"backupflow/internal/logging"
)

var errConnectivityBlocked = errors.New("repository not reachable")

func newConnectivityCommand(ctx *commandContext) *cobra.Command {
	var attempts int

	cmd := &cobra.Command{
		Use:   "connectivity",
		Short: "Evaluate the connectivity gate against the configured repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			logger, closer := ctx.logger(cmd.ErrOrStderr())
			defer closer.Close()

			if attempts <= 0 {
				attempts = 1
			}
			gate := connectivity.NewGate(cfg, clock.WallClock, logging.NewComponentLogger(logger, "cli"))
			verdict := gate.Evaluate(cmd.Context(), cfg.Engine.Repository, attempts)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, strings.Join(verdictLines(verdict, colorize), "\n"))
			if !verdict.OK {
				return errConnectivityBlocked
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&attempts, "attempts", 1, "Checks to run before giving up")
	return cmd
}

func verdictLines(v connectivity.Verdict, colorize bool) []string {
	kind := statusOK
	result := "usable"
	if !v.OK {
		kind = statusError
		result = "blocked"
	}
	lines := []string{renderStatusLine("Repository", kind, fmt.Sprintf("%s (%s)", result, v.Reason), colorize)}
	if v.Host != "" {
		lines = append(lines, renderStatusLine("Host", statusInfo, v.Host, colorize))
	}
	if v.Interface != "" {
		lines = append(lines, renderStatusLine("Interface", statusInfo, v.Interface, colorize))
	}
	if v.Attempts > 0 {
		lines = append(lines, renderStatusLine("Checks", statusInfo, fmt.Sprintf("%d (%d probes)", v.Attempts, v.Probes), colorize))
	}
	return lines
}
