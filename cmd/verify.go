package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/config"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Authenticate a face image against an enrolled credential",
	Long: `Verify compares a probe image against the credential enrolled for the
given role and username. Every attempt is recorded in the audit log and
the attempt image is archived regardless of the outcome.`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().String("role", "", "Role of the credential (required)")
	verifyCmd.Flags().String("username", "", "Username of the credential (required)")
	verifyCmd.Flags().String("image", "", "Path to the probe image (required)")
	verifyCmd.Flags().Bool("json", false, "Print the result as JSON")
	verifyCmd.MarkFlagRequired("role")
	verifyCmd.MarkFlagRequired("username")
	verifyCmd.MarkFlagRequired("image")
}

func runVerify(cmd *cobra.Command, args []string) error {
	role := mustGetString(cmd, "role")
	username := mustGetString(cmd, "username")
	imagePath := mustGetString(cmd, "image")
	asJSON := mustGetBool(cmd, "json")

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	cfg := config.Load()
	eng, cleanup, err := buildEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := eng.Verify(cmd.Context(), role, username, image)
	if err != nil {
		return err
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(res)
	}
	printResult(res)
	return nil
}
