package cypher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaStatements lists the index and constraint statements for a dialect: the vertex id
// index, one unique constraint per natural key and the dataset lookup indexes.
func SchemaStatements(dialect Dialect) []string {
	var statements []string

	statements = append(statements, index(dialect, vertexLabel, propID))

	unique := models.UniqueKeys()
	labels := make([]string, 0, len(unique))
	for label := range unique {
		labels = append(labels, string(label))
	}
	sort.Strings(labels)
	for _, label := range labels {
		statements = append(statements, uniqueConstraint(dialect, label, unique[models.Label(label)]))
	}

	indexed := models.IndexedProperties()
	labels = labels[:0]
	for label := range indexed {
		labels = append(labels, string(label))
	}
	sort.Strings(labels)
	for _, label := range labels {
		for _, prop := range indexed[models.Label(label)] {
			statements = append(statements, index(dialect, label, prop))
		}
	}

	return statements
}

func index(dialect Dialect, label, prop string) string {
	if dialect == DialectNeo4j {
		return fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s)", schemaName("idx", label, prop), label, prop)
	}
	return fmt.Sprintf("CREATE INDEX ON :%s(%s)", label, prop)
}

func uniqueConstraint(dialect Dialect, label, prop string) string {
	if dialect == DialectNeo4j {
		return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE", schemaName("uniq", label, prop), label, prop)
	}
	return fmt.Sprintf("CREATE CONSTRAINT ON (n:%s) ASSERT n.%s IS UNIQUE", label, prop)
}

func schemaName(prefix, label, prop string) string {
	return strings.ToLower(fmt.Sprintf("%s_%s_%s", prefix, label, prop))
}

// EnsureSchema applies SchemaStatements. Every statement is idempotent.
func (c *Client) EnsureSchema(ctx context.Context, dialect Dialect) error {
	ctx, span := tracing.StartSpan(ctx, "cypher.Client.EnsureSchema")
	defer span.End()

	for _, statement := range SchemaStatements(dialect) {
		if err := c.Exec(ctx, statement, nil); err != nil {
			c.logger.WithContext(ctx).WithError(err).WithField("statement", statement).Error("Failed to apply graph schema")
			return fmt.Errorf("failed to apply %q: %w", statement, err)
		}
		c.logger.WithContext(ctx).WithField("statement", statement).Debug("Applied graph schema statement")
	}

	c.logger.WithContext(ctx).WithField("dialect", dialect).Info("Graph schema is up to date")
	return nil
}
