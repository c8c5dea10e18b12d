package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"backupflow/internal/history"
	"backupflow/internal/orchestrator"
	"backupflow/internal/preflight"
	"backupflow/internal/state"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show persisted state, recent attempts and startup checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			now := time.Now()

			var lines []string
			lines = append(lines, renderSectionHeader("State", colorize)...)
			st, err := state.NewStore(cfg.Paths.StateFile).Load()
			if err != nil {
				lines = append(lines, renderStatusLine("State file", statusWarn, err.Error(), colorize))
			}
			lines = append(lines, stateLines(st, now, colorize)...)

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("History", colorize)...)
			table, rates, herr := loadHistory(cmd, cfg.Paths.HistoryDB, cfg.History.Limit, recent)
			switch {
			case herr != nil:
				lines = append(lines, renderStatusLine("History", statusWarn, herr.Error(), colorize))
			default:
				for _, phase := range []string{orchestrator.PhaseBackup, orchestrator.PhaseMaintenance} {
					lines = append(lines, rateLine(phase, rates[phase], colorize))
				}
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Checks", colorize)...)
			lines = append(lines, preflightLines(preflight.RunAll(cmd.Context(), cfg), colorize)...)

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			if table != "" {
				fmt.Fprintln(out)
				fmt.Fprintln(out, table)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&recent, "recent", "n", 10, "Number of recent attempts to list")
	return cmd
}

// loadHistory reads recent attempts and per-phase rates. A database that
// does not exist yet is reported without creating it.
func loadHistory(cmd *cobra.Command, path string, limit, recent int) (string, map[string]history.Rate, error) {
	if _, err := os.Stat(path); err != nil {
		return "", nil, fmt.Errorf("no history at %s", path)
	}
	store, err := history.Open(path, limit)
	if err != nil {
		return "", nil, err
	}
	defer store.Close()

	rates := make(map[string]history.Rate, 2)
	for _, phase := range []string{orchestrator.PhaseBackup, orchestrator.PhaseMaintenance} {
		rate, err := store.SuccessRate(cmd.Context(), phase)
		if err != nil {
			return "", nil, err
		}
		rates[phase] = rate
	}
	if recent <= 0 {
		return "", rates, nil
	}
	entries, err := store.Recent(cmd.Context(), recent)
	if err != nil {
		return "", nil, err
	}
	if len(entries) == 0 {
		return "", rates, nil
	}
	return historyTable(entries), rates, nil
}
