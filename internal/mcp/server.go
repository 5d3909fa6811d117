package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"canonkeep/internal/canon"
	"canonkeep/internal/canonizer"
	"canonkeep/internal/staging"
)

// CanonStore is the slice of the canonical store the server needs.
// Story and source creation are the only writes exposed here; everything
// else reaches canon through the canonization engine.
type CanonStore interface {
	CreateStory(ctx context.Context, cap canon.WriteCap, story canon.Story) error
	CreateSource(ctx context.Context, cap canon.WriteCap, src canon.Source) error
	GetStory(ctx context.Context, id string) (*canon.Story, error)
	GetFact(ctx context.Context, id string) (*canon.Fact, error)
	CanonContext(ctx context.Context, universeID string, entityIDs []string) ([]canon.Fact, error)
}

type StagingStore interface {
	CreateScene(ctx context.Context, scene staging.Scene) error
	GetScene(ctx context.Context, id string) (*staging.Scene, error)
	CreateProposal(ctx context.Context, p staging.Proposal) error
	PendingProposals(ctx context.Context, sceneID string) ([]staging.Proposal, error)
}

type Canonizer interface {
	EndScene(ctx context.Context, sceneID string) (*canonizer.Report, error)
	CanonizeScene(ctx context.Context, sceneID string) (*canonizer.Report, error)
	Retcon(ctx context.Context, authority canon.Authority, factID, supersededBy, reason string) error
}

type Server struct {
	canon   CanonStore
	staging StagingStore
	engine  Canonizer
	cap     canon.WriteCap
	now     func() time.Time
	newID   func() string
	mcp     *sdk.Server
}

func NewServer(canonStore CanonStore, stagingStore StagingStore, engine Canonizer, version string) (*Server, error) {
	cap, err := canon.NewWriteCap(canon.RoleOrchestrator)
	if err != nil {
		return nil, err
	}
	s := &Server{
		canon:   canonStore,
		staging: stagingStore,
		engine:  engine,
		cap:     cap,
		now:     time.Now,
		newID:   uuid.NewString,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "canonkeep",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s, nil
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
