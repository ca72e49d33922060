package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newEmbedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "embed",
		Short: "Embed every configured source into the vector store",
		Long: `Run the Source Collector, Chunker, and Embedding Client once over every
configured source, regardless of what's already indexed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmbed(cmd.Context())
		},
	}
}

func runEmbed(ctx context.Context) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	// embed always re-embeds the full corpus, unlike update's incremental
	// diff, so clear whatever's already tracked first.
	if err := a.store.Clear(ctx); err != nil {
		return err
	}

	total := 0
	for _, u := range a.updaters {
		info, err := u.DetectChanges(ctx)
		if err != nil {
			return err
		}
		n, err := u.Apply(ctx, info)
		if err != nil {
			return err
		}
		total += n
	}
	if err := a.store.Persist(ctx); err != nil {
		return err
	}
	fmt.Printf("embedded %d file(s)\n", total)
	return nil
}
