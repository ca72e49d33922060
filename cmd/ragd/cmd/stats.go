package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show vector store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd)
		},
	}
}

func runStats(cmd *cobra.Command) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.store.GetStats(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("live_chunks=%d tombstoned_chunks=%d tracked_files=%d ann_nodes=%d\n",
		stats.LiveChunks, stats.TombstonedChunks, stats.TrackedFiles, stats.ANNNodes)
	return nil
}
