package main

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nstogner/arena/pkg/store"
)

func newOverallCmd(root *rootFlags) *cobra.Command {
	var task string

	cmd := &cobra.Command{
		Use:   "overall",
		Short: "Summarize every recorded episode of a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			setupLogging(os.Stderr, cfg.LogLevel)
			if task == "" {
				task = cfg.Task
			}

			_, results, err := openStores(cfg.Store.Dir)
			if err != nil {
				return err
			}
			defer results.Close()

			overall, err := results.Overall(cmd.Context(), task)
			if err != nil {
				return err
			}
			printOverall(cmd.OutOrStdout(), overall)
			return nil
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "Task to summarize (avalon or gops); defaults to the configured task")
	return cmd
}

func newModelsCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models served by the configured provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			setupLogging(os.Stderr, cfg.LogLevel)

			provider, cleanup, err := newProvider(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			names, err := provider.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func printOverall(w io.Writer, o store.Overall) {
	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().
		Foreground(lipgloss.Color("#FFFDF5")).
		Background(lipgloss.Color("#25A065")).
		Padding(0, 1)
	label := r.NewStyle().Foreground(lipgloss.Color("240")).Width(24)

	fmt.Fprintln(w, title.Render("Overall: "+o.Task))
	row := func(name, value string) {
		fmt.Fprintln(w, label.Render(name)+value)
	}
	row("Episodes", fmt.Sprintf("%d", o.Episodes))
	row("Completed", fmt.Sprintf("%d", o.Completed))
	for _, status := range sortedKeys(o.StatusCounts) {
		row("  "+status, fmt.Sprintf("%d", o.StatusCounts[status]))
	}
	row("Win rate", fmt.Sprintf("%.3f", o.WinRate))
	if o.Task == store.TaskGOPS {
		row("Tie rate", fmt.Sprintf("%.3f", o.TieRate))
	} else {
		row("Deduction accuracy", fmt.Sprintf("%.3f", o.AvgDeductionAccuracy))
	}
	seats := make([]int, 0, len(o.SeatWinRates))
	for s := range o.SeatWinRates {
		seats = append(seats, s)
	}
	slices.Sort(seats)
	for _, s := range seats {
		row(fmt.Sprintf("  Seat %d win rate", s), fmt.Sprintf("%.3f", o.SeatWinRates[s]))
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
