package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/store"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show stored metadata for an enrolled credential",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().String("role", "", "Role of the credential (required)")
	infoCmd.Flags().String("username", "", "Username of the credential (required)")
	infoCmd.Flags().Bool("json", false, "Print the result as JSON")
	infoCmd.MarkFlagRequired("role")
	infoCmd.MarkFlagRequired("username")
}

func runInfo(cmd *cobra.Command, args []string) error {
	role := mustGetString(cmd, "role")
	username := mustGetString(cmd, "username")
	asJSON := mustGetBool(cmd, "json")

	cfg := config.Load()
	eng, cleanup, err := buildEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	cred, err := eng.Info(cmd.Context(), role, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no credential enrolled for %s/%s", role, username)
		}
		return err
	}

	if asJSON {
		out := map[string]any{
			"role":              string(cred.Key.Role),
			"username":          cred.Key.Username,
			"registration_time": cred.RegistrationTime.UTC().Format(time.RFC3339),
		}
		if cred.LastLoginTime != nil {
			out["last_login_time"] = cred.LastLoginTime.UTC().Format(time.RFC3339)
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	fmt.Printf("Role:       %s\n", cred.Key.Role)
	fmt.Printf("Username:   %s\n", cred.Key.Username)
	fmt.Printf("Registered: %s\n", cred.RegistrationTime.Format("2006-01-02 15:04:05"))
	lastLogin := "-"
	if cred.LastLoginTime != nil {
		lastLogin = cred.LastLoginTime.Format("2006-01-02 15:04:05")
	}
	fmt.Printf("Last login: %s\n", lastLogin)
	return nil
}
