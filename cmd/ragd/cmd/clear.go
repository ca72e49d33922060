package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every chunk and tracked file from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(cmd)
		},
	}
}

func runClear(cmd *cobra.Command) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("store cleared")
	return nil
}
