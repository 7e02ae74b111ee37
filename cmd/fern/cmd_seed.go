package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/fixtures"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixtures.yaml>",
	Short: "Load users and subjects from a YAML fixtures file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	file, err := fixtures.Load(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(appOptions{schema: true})
	if err != nil {
		return err
	}
	if err := a.start(cmd.Context()); err != nil {
		return err
	}
	defer a.stop(cmd.Context())

	result, err := fixtures.Apply(cmd.Context(), catalog.NewService(a.store, a.logger), file, a.logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %d, skipped %d existing\n", result.Created, result.Skipped)
	return nil
}
