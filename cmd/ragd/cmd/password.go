package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nesall/ragd/internal/auth"
)

func newResetPasswordCmd() *cobra.Command {
	var pass string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set the administrator password non-interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pass == "" {
				return fmt.Errorf("--pass is required")
			}
			return runResetPassword(pass)
		},
	}
	cmd.Flags().StringVar(&pass, "pass", "", "new administrator password")
	return cmd
}

func newResetPasswordInteractiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password-interactive",
		Short: "Set the administrator password, prompting on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print("new admin password: ")
			scanner := bufio.NewScanner(os.Stdin)
			if !scanner.Scan() {
				return fmt.Errorf("no password entered")
			}
			pass := scanner.Text()
			if pass == "" {
				return fmt.Errorf("password must not be empty")
			}
			return runResetPassword(pass)
		},
	}
}

func newPasswordStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "password-status",
		Short: "Report whether the administrator password is still the default",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPasswordStatus()
		},
	}
}

func runResetPassword(newPassword string) error {
	cfg, err := loadConfigOnly(configPath)
	if err != nil {
		return err
	}
	admin, err := auth.Load(adminPasswordPath(cfg))
	if err != nil {
		return err
	}
	if err := admin.SetPassword(newPassword); err != nil {
		return err
	}
	fmt.Println("password updated")
	return nil
}

func runPasswordStatus() error {
	cfg, err := loadConfigOnly(configPath)
	if err != nil {
		return err
	}
	admin, err := auth.Load(adminPasswordPath(cfg))
	if err != nil {
		return err
	}
	if admin.IsDefaultPassword() {
		fmt.Println("default password is still in effect")
	} else {
		fmt.Println("password has been changed from the default")
	}
	if modTime, ok := admin.FileModTime(); ok {
		fmt.Printf("password file last modified: %s\n", modTime.Format("2006-01-02 15:04:05"))
	}
	return nil
}
