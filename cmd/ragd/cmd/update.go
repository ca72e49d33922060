package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Incrementally re-embed new, modified, and deleted sources",
		Long: `Run one DetectChanges+Apply pass per configured source, processing only
what changed since the last run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd.Context())
		},
	}
}

func runUpdate(ctx context.Context) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	var new, modified, deleted, applied int
	for _, u := range a.updaters {
		info, err := u.DetectChanges(ctx)
		if err != nil {
			return err
		}
		new += len(info.New)
		modified += len(info.Modified)
		deleted += len(info.Deleted)
		n, err := u.Apply(ctx, info)
		if err != nil {
			return err
		}
		applied += n
	}
	if err := a.store.Persist(ctx); err != nil {
		return err
	}
	fmt.Printf("new=%d modified=%d deleted=%d files_applied=%d\n", new, modified, deleted, applied)
	return nil
}
