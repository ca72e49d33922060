package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nesall/ragd/internal/completion"
	"github.com/nesall/ragd/internal/retrieval"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Plan retrieval context and ask the completion API one question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, strings.Join(args, " "))
		},
	}
}

func runChat(cmd *cobra.Command, message string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.completionClient()
	if err != nil {
		return err
	}

	results, err := a.planner.Plan(cmd.Context(), retrieval.Request{Message: message})
	if err != nil {
		return err
	}

	prompt := completion.BuildPrompt(client.Config(), results, message, a.tok)

	answer, err := client.Complete(cmd.Context(), []completion.Message{{Role: "user", Content: message}}, prompt)
	if err != nil {
		return err
	}
	fmt.Println(answer)
	return nil
}
