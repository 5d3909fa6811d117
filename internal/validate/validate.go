package validate

import (
	"context"
	"fmt"
)

type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warning"
)

const (
	codeMissingEvidence  = "fact_missing_evidence"
	codeOrphanedInstance = "orphaned_instance"
)

type Issue struct {
	Severity Severity
	Code     string
	Message  string
	NodeID   string
}

// Report carries the audit findings plus a node count snapshot so
// successive runs can confirm the graph only ever grows.
type Report struct {
	Issues    []Issue
	NodeCount int64
}

func (r *Report) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Run audits the canonical graph for structural defects the write path
// should have made impossible.
func Run(ctx context.Context, auditor GraphAuditor) (*Report, error) {
	if auditor == nil {
		return nil, fmt.Errorf("graph auditor is required")
	}

	issues := make([]Issue, 0)

	missing, err := auditor.ListFactsMissingEvidence(ctx)
	if err != nil {
		return nil, fmt.Errorf("list facts missing evidence: %w", err)
	}
	for _, fact := range missing {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     codeMissingEvidence,
			Message:  fmt.Sprintf("canonical %s has no supporting evidence", fact.Kind),
			NodeID:   fact.ID,
		})
	}

	orphans, err := auditor.ListOrphanedInstances(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orphaned instances: %w", err)
	}
	for _, inst := range orphans {
		issues = append(issues, Issue{
			Severity: SeverityWarn,
			Code:     codeOrphanedInstance,
			Message:  fmt.Sprintf("instance %q has no archetype", inst.Name),
			NodeID:   inst.ID,
		})
	}

	count, err := auditor.NodeCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("count canon nodes: %w", err)
	}

	return &Report{Issues: issues, NodeCount: count}, nil
}
