package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nstogner/arena/pkg/console"
)

func newRunCmd(root *rootFlags) *cobra.Command {
	var showPrompts bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play the configured episodes and print their transcripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			setupLogging(os.Stderr, cfg.LogLevel)
			ctx := cmd.Context()

			provider, cleanup, err := newProvider(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			mgr, results, err := openStores(cfg.Store.Dir)
			if err != nil {
				return err
			}
			defer results.Close()

			out := cmd.OutOrStdout()
			r := newRunner(cfg, provider, mgr, results, console.New(out, showPrompts))
			records, err := runTask(ctx, cfg, r)
			if err != nil {
				return err
			}

			overall, err := results.Overall(ctx, cfg.Task)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nPlayed %d episodes.\n", len(records))
			printOverall(out, overall)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showPrompts, "show-prompts", false, "Also print the prompts sent to players")
	return cmd
}
