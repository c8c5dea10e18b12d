package main

import (
	"fmt"

	"github.com/juju/clock"
	"github.com/spf13/cobra"

	"backupflow/internal/engine"
)

func newUnlockCommand(ctx *commandContext) *cobra.Command {
	var removeAll bool

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Remove stale repository locks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			logger, closer := ctx.logger(cmd.ErrOrStderr())
			defer closer.Close()

			secrets, err := cfg.LoadSecrets()
			if err != nil {
				return err
			}
			runner := &engine.ExecRunner{Binary: cfg.EngineBinary(), Env: cfg.EngineEnvironment(secrets), Logger: logger}
			eng := engine.New(runner, cfg.Engine.GlobalFlags, clock.WallClock, logger)
			sinks := engine.Sinks{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}

			locks, err := eng.ListLocks(cmd.Context(), sinks)
			if err != nil {
				return fmt.Errorf("list locks: %w", err)
			}
			if len(locks) == 0 && !removeAll {
				fmt.Fprintln(cmd.OutOrStdout(), "No locks present")
				return nil
			}
			if err := eng.Unlock(cmd.Context(), sinks, removeAll); err != nil {
				return fmt.Errorf("unlock: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unlocked repository (%d lock(s) listed)\n", len(locks))
			return nil
		},
	}

	cmd.Flags().BoolVar(&removeAll, "remove-all", false, "Remove all locks, including ones that look active")
	return cmd
}
