package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/config"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit trail for one UTC day",
	RunE:  runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().String("date", "", "UTC date to show (YYYY-MM-DD, defaults to today)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	day := time.Now().UTC()
	if d := mustGetString(cmd, "date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", d)
		}
		day = parsed
	}

	cfg := config.Load()
	eng, cleanup, err := buildEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := eng.Audit(day)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Printf("No authentication attempts on %s\n", day.Format("2006-01-02"))
		return nil
	}

	for _, rec := range records {
		line := fmt.Sprintf("%s  %-8s %s/%s distance=%.4f",
			rec.Timestamp, rec.Status, rec.Role, rec.Username, rec.Distance)
		if rec.Error != "" {
			line += " error=" + rec.Error
		}
		fmt.Println(line)
	}
	fmt.Printf("%d attempts\n", len(records))
	return nil
}
