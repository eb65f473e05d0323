package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/config"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll a new credential from a face image",
	Long: `Enroll registers a credential for a role and username from a captured
face image. An identity can be enrolled only once per role; repeated
enrollment is rejected without touching the existing record.`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("role", "", "Role to enroll under (required)")
	enrollCmd.Flags().String("username", "", "Username to enroll (required)")
	enrollCmd.Flags().String("image", "", "Path to the captured face image (required)")
	enrollCmd.Flags().Bool("json", false, "Print the result as JSON")
	enrollCmd.MarkFlagRequired("role")
	enrollCmd.MarkFlagRequired("username")
	enrollCmd.MarkFlagRequired("image")
}

func runEnroll(cmd *cobra.Command, args []string) error {
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

	res, err := eng.Enroll(cmd.Context(), role, username, image)
	if err != nil {
		return err
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(res)
	}
	printResult(res)
	return nil
}
