package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nesall/ragd/internal/retrieval"
)

func newSearchCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), topK)
		},
	}
	cmd.Flags().IntVar(&topK, "top", 0, "maximum results to return (default: embedding.top_k)")
	return cmd
}

func runSearch(cmd *cobra.Command, query string, topK int) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	// Plan always runs with the configured TopK; --top trims the result
	// set afterward rather than overriding retrieval.Config.
	req := retrieval.Request{Message: query}
	results, err := a.planner.Plan(cmd.Context(), req)
	if err != nil {
		return err
	}
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}

	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s (%s:%d-%d)\n", i+1, r.Similarity, r.SourceID, r.ChunkID, r.Start, r.End)
	}
	if len(results) == 0 {
		fmt.Println("no results")
	}
	return nil
}
