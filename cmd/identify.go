package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/config"
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Find the enrolled credential closest to a face image",
	Long: `Identify searches the whole gallery for the enrolled credential closest
to the probe image. The same match threshold applies as for verify.`,
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().String("image", "", "Path to the probe image (required)")
	identifyCmd.Flags().Bool("json", false, "Print the result as JSON")
	identifyCmd.MarkFlagRequired("image")
}

func runIdentify(cmd *cobra.Command, args []string) error {
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

	if err := eng.LoadGallery(cmd.Context()); err != nil {
		return err
	}

	res, err := eng.Identify(cmd.Context(), image)
	if err != nil {
		return err
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(res)
	}
	printResult(res)
	return nil
}
