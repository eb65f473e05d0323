package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/config"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all enrolled credentials",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	eng, cleanup, err := buildEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	creds, err := eng.List(cmd.Context())
	if err != nil {
		return err
	}

	if len(creds) == 0 {
		fmt.Println("No credentials enrolled")
		return nil
	}

	fmt.Printf("%-14s %-20s %-22s %s\n", "ROLE", "USERNAME", "REGISTERED", "LAST LOGIN")
	for _, cred := range creds {
		lastLogin := "-"
		if cred.LastLoginTime != nil {
			lastLogin = cred.LastLoginTime.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-14s %-20s %-22s %s\n",
			cred.Key.Role, cred.Key.Username,
			cred.RegistrationTime.Format("2006-01-02 15:04:05"), lastLogin)
	}
	return nil
}
