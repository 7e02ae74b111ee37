package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/audit"
)

var auditFlags struct {
	failOnFindings bool
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Scan the graph for structural problems",
	Long:  "audit reports duplicate edges, branching or merged chains, conflicting decisions\nand events without a proposer. It never modifies the graph.",
	RunE:  runAudit,
}

func init() {
	auditCmd.Flags().BoolVar(&auditFlags.failOnFindings, "fail-on-findings", false, "Exit non-zero when the scan reports anything")
}

func runAudit(cmd *cobra.Command, _ []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	if err := a.start(cmd.Context()); err != nil {
		return err
	}
	defer a.stop(cmd.Context())

	report, err := audit.NewScanner(a.store, a.logger).Scan(cmd.Context())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if auditFlags.failOnFindings && len(report.Findings) > 0 {
		return fmt.Errorf("%d findings in %d vertices", len(report.Findings), report.ScannedVertices)
	}
	return nil
}
