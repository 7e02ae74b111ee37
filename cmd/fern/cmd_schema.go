package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/graph/cypher"
)

var schemaFlags struct {
	print bool
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the indexes and constraints of the configured graph store",
	Long:  "schema applies the Cypher indexes and unique constraints on Memgraph or Neo4j,\nor runs the PostgreSQL migrations. Every step is idempotent.",
	RunE:  runSchema,
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaFlags.print, "print", false, "Print the Cypher statements for GRAPH_DB_DIALECT and exit")
}

func runSchema(cmd *cobra.Command, _ []string) error {
	a, err := newApp(appOptions{schema: true})
	if err != nil {
		return err
	}

	if schemaFlags.print {
		dialect, err := cypher.ParseDialect(a.cfg.GraphDBDialect)
		if err != nil {
			return err
		}
		for _, statement := range cypher.SchemaStatements(dialect) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s;\n", statement)
		}
		return nil
	}

	if err := a.start(cmd.Context()); err != nil {
		return err
	}
	defer a.stop(cmd.Context())

	fmt.Fprintf(cmd.OutOrStdout(), "Schema of the %s graph store is up to date\n", a.cfg.GraphBackend)
	return nil
}
