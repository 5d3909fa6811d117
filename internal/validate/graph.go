package validate

import (
	"context"

	"canonkeep/internal/canon"
)

type GraphAuditor interface {
	ListFactsMissingEvidence(ctx context.Context) ([]canon.Fact, error)
	ListOrphanedInstances(ctx context.Context) ([]canon.Instance, error)
	NodeCount(ctx context.Context) (int64, error)
}
