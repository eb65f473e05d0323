package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/engine"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-enroll credentials from a directory of face images",
	Long: `Import walks a directory laid out as <role>/<username>.<ext> and enrolls
every image it finds. Images that fail to enroll (no face, already
enrolled) are reported and skipped; the import continues.`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("dir", "", "Directory with <role>/<username>.<ext> images (required)")
	importCmd.MarkFlagRequired("dir")
}

type importItem struct {
	role     string
	username string
	path     string
}

// collectImportItems finds candidate images under dir/<role>/<username>.<ext>.
func collectImportItems(dir string) ([]importItem, error) {
	roleEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read import directory: %w", err)
	}

	var items []importItem
	for _, roleEntry := range roleEntries {
		if !roleEntry.IsDir() {
			continue
		}
		images, err := os.ReadDir(filepath.Join(dir, roleEntry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read role directory: %w", err)
		}
		for _, img := range images {
			if img.IsDir() {
				continue
			}
			name := img.Name()
			ext := strings.ToLower(filepath.Ext(name))
			switch ext {
			case ".jpg", ".jpeg", ".png", ".bmp", ".gif":
			default:
				continue
			}
			items = append(items, importItem{
				role:     roleEntry.Name(),
				username: strings.TrimSuffix(name, filepath.Ext(name)),
				path:     filepath.Join(dir, roleEntry.Name(), name),
			})
		}
	}
	return items, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")

	items, err := collectImportItems(dir)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No images found to import")
		return nil
	}

	cfg := config.Load()
	eng, cleanup, err := buildEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	bar := progressbar.Default(int64(len(items)), "enrolling")

	enrolled := 0
	var skipped []string
	for _, item := range items {
		image, err := os.ReadFile(item.path)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", item.path, err))
			bar.Add(1)
			continue
		}

		res, err := eng.Enroll(cmd.Context(), item.role, item.username, image)
		switch {
		case err != nil:
			skipped = append(skipped, fmt.Sprintf("%s: %v", item.path, err))
		case res.Outcome != engine.OutcomeSuccess:
			skipped = append(skipped, fmt.Sprintf("%s: %s", item.path, res.Message))
		default:
			enrolled++
		}
		bar.Add(1)
	}

	fmt.Printf("Enrolled %d of %d credentials\n", enrolled, len(items))
	for _, s := range skipped {
		fmt.Printf("  skipped %s\n", s)
	}
	return nil
}
