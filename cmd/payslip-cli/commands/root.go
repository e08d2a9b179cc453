package commands

import (
	"context"
	"fmt"
	"os"
	"payslip-scraper/lib/telemetry"

	"github.com/spf13/cobra"
)

var verbose *bool

func init() {
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
}

var rootCmd = &cobra.Command{
	Use:   "payslip-cli",
	Short: "payslip-cli downloads payroll records from the portal.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
