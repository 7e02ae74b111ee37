// Package audit is a read-only diagnostic scan of the graph. It reports structural problems and
// never repairs them.
package audit

import (
	"context"
	"fmt"
	"sort"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type FindingType string

const (
	// FindingMultipleEdges: a vertex reaches the same vertex through more than one outgoing edge.
	FindingMultipleEdges FindingType = "multiple_edges"
	// FindingChainBranch: a vertex has more than one outgoing HAS_EVENT edge.
	FindingChainBranch FindingType = "chain_branch"
	// FindingChainMerge: an event has more than one incoming HAS_EVENT edge.
	FindingChainMerge FindingType = "chain_merge"
	// FindingDecisionConflict: an event carries more than one decision edge.
	FindingDecisionConflict FindingType = "decision_conflict"
	// FindingMissingProposer: an event does not have exactly one ADDED_BY edge.
	FindingMissingProposer FindingType = "missing_proposer"
)

type Finding struct {
	Type      FindingType `json:"type"`
	VertexID  string      `json:"vertexId"`
	Label     string      `json:"label"`
	TargetID  string      `json:"targetId,omitempty"`
	EdgeTypes []string    `json:"edgeTypes,omitempty"`
	Message   string      `json:"message"`
}

type Report struct {
	ScannedVertices int       `json:"scannedVertices"`
	Findings        []Finding `json:"findings"`
}

// Scanner walks every vertex of the graph in one read transaction
type Scanner struct {
	store  graph.Store
	logger ectologger.Logger
}

// NewScanner creates a new diagnostic scanner
func NewScanner(store graph.Store, logger ectologger.Logger) *Scanner {
	return &Scanner{
		store:  store,
		logger: logger,
	}
}

// Scan reports every finding in the graph.
func (s *Scanner) Scan(ctx context.Context) (*Report, error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Scanner.Scan")
	defer span.End()

	report := &Report{Findings: []Finding{}}
	err := s.store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		vertices, err := r.ListVertices(ctx, "")
		if err != nil {
			return fmt.Errorf("list vertices: %w", err)
		}
		report.ScannedVertices = len(vertices)

		for _, v := range vertices {
			findings, err := scanVertex(ctx, r, v)
			if err != nil {
				return err
			}
			report.Findings = append(report.Findings, findings...)
		}
		return nil
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Diagnostic scan failed")
		return nil, err
	}

	for _, f := range report.Findings {
		metrics.RecordAuditFinding(string(f.Type))
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"type":      f.Type,
			"vertex_id": f.VertexID,
			"label":     f.Label,
			"target_id": f.TargetID,
		}).Warn(f.Message)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"scanned_vertices": report.ScannedVertices,
		"findings":         len(report.Findings),
	}).Info("Diagnostic scan complete")

	return report, nil
}

func scanVertex(ctx context.Context, r graph.Reader, v *graph.Vertex) ([]Finding, error) {
	var findings []Finding
	finding := func(t FindingType, target string, edgeTypes []string, format string, args ...any) {
		findings = append(findings, Finding{
			Type:      t,
			VertexID:  v.ID,
			Label:     string(v.Label),
			TargetID:  target,
			EdgeTypes: edgeTypes,
			Message:   fmt.Sprintf(format, args...),
		})
	}

	out, err := r.Edges(ctx, v.ID, graph.Outgoing)
	if err != nil {
		return nil, fmt.Errorf("load edges of %s: %w", v.ID, err)
	}

	byTarget := make(map[string][]*graph.Edge)
	for _, e := range out {
		byTarget[e.To] = append(byTarget[e.To], e)
	}
	targets := make([]string, 0, len(byTarget))
	for target := range byTarget {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	for _, target := range targets {
		edges := byTarget[target]
		if len(edges) < 2 {
			continue
		}
		types := ectolinq.Map(edges, func(e *graph.Edge) string { return string(e.Type) })
		finding(FindingMultipleEdges, target, types, "%s %s is connected to %s more than once", v.Label, v.ID, target)
	}

	chainOut := countType(out, models.EdgeHasEvent)
	if chainOut > 1 {
		finding(FindingChainBranch, "", nil, "%s %s has %d outgoing %s edges", v.Label, v.ID, chainOut, models.EdgeHasEvent)
	}

	if !v.Label.IsEvent() {
		return findings, nil
	}

	in, err := r.Edges(ctx, v.ID, graph.Incoming, models.EdgeHasEvent)
	if err != nil {
		return nil, fmt.Errorf("load chain edges of %s: %w", v.ID, err)
	}
	if len(in) > 1 {
		finding(FindingChainMerge, "", nil, "event %s has %d incoming %s edges", v.ID, len(in), models.EdgeHasEvent)
	}

	if decisions := countType(out, models.EdgeAuthorisedBy) + countType(out, models.EdgeRejectedBy); decisions > 1 {
		finding(FindingDecisionConflict, "", nil, "event %s has %d decision edges", v.ID, decisions)
	}
	if proposers := countType(out, models.EdgeAddedBy); proposers != 1 {
		finding(FindingMissingProposer, "", nil, "event %s has %d %s edges", v.ID, proposers, models.EdgeAddedBy)
	}

	return findings, nil
}

func countType(edges []*graph.Edge, t models.EdgeType) int {
	return len(ectolinq.Filter(edges, func(e *graph.Edge) bool { return e.Type == t }))
}
