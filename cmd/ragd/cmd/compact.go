package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Rebuild the ANN index, dropping tombstoned vectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(cmd)
		},
	}
}

func runCompact(cmd *cobra.Command) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Compact(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("store compacted")
	return nil
}
