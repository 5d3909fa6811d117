package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"canonkeep/internal/canon"
	"canonkeep/internal/canonizer"
	"canonkeep/internal/staging"
)

type CreateStoryInput struct {
	Name string `json:"name" jsonschema:"story name"`
}

type CreateSourceInput struct {
	UniverseID string `json:"universe_id" jsonschema:"story id the source belongs to"`
	Kind       string `json:"kind" jsonschema:"document, gm_statement, or player_action"`
	Ref        string `json:"ref" jsonschema:"external reference, e.g. a document locator"`
}

type CreateSceneInput struct {
	UniverseID string `json:"universe_id" jsonschema:"story id the scene belongs to"`
	Name       string `json:"name,omitempty" jsonschema:"optional scene name"`
}

type GetSceneInput struct {
	SceneID string `json:"scene_id" jsonschema:"scene id"`
}

type EntitySpecInput struct {
	Name        string         `json:"name" jsonschema:"entity name"`
	Category    string         `json:"category,omitempty" jsonschema:"entity category, e.g. character or location"`
	Archetype   bool           `json:"archetype,omitempty" jsonschema:"create an archetype instead of an instance"`
	ArchetypeID string         `json:"archetype_id,omitempty" jsonschema:"archetype the instance derives from"`
	Properties  map[string]any `json:"properties,omitempty" jsonschema:"arbitrary entity properties"`
}

type CreateProposalInput struct {
	SceneID    string           `json:"scene_id" jsonschema:"scene to stage the proposal in"`
	UniverseID string           `json:"universe_id" jsonschema:"story id the proposal targets"`
	Type       string           `json:"type" jsonschema:"fact, event, entity, or state_change"`
	Authority  string           `json:"authority" jsonschema:"source, gm, player, or system"`
	Confidence float64          `json:"confidence" jsonschema:"asserter confidence in [0,1]"`
	Statement  string           `json:"statement,omitempty" jsonschema:"what the proposal asserts"`
	Entities   []string         `json:"entities,omitempty" jsonschema:"canonical ids of involved entities"`
	Dimension  string           `json:"dimension,omitempty" jsonschema:"state dimension for state changes"`
	Tag        string           `json:"tag,omitempty" jsonschema:"state tag for state changes"`
	Evidence   []string         `json:"evidence,omitempty" jsonschema:"canonical source, fact, or event ids"`
	Causes     []string         `json:"causes,omitempty" jsonschema:"event ids this node causes"`
	CausesFrom string           `json:"causes_from,omitempty" jsonschema:"existing event to attach the causes edges to"`
	Entity     *EntitySpecInput `json:"entity,omitempty" jsonschema:"entity spec for entity proposals"`
}

type GetPendingProposalsInput struct {
	SceneID string `json:"scene_id" jsonschema:"scene id"`
}

type GetFactInput struct {
	FactID string `json:"fact_id" jsonschema:"canonical fact id"`
}

type GetCanonContextInput struct {
	UniverseID string   `json:"universe_id" jsonschema:"story id"`
	Entities   []string `json:"entities" jsonschema:"canonical entity ids to pull facts for"`
}

type EndSceneInput struct {
	SceneID string `json:"scene_id" jsonschema:"scene to finalize and canonize"`
}

type CanonizeSceneInput struct {
	SceneID string `json:"scene_id" jsonschema:"finalizing scene to canonize or retry"`
}

type RetconFactInput struct {
	Authority    string `json:"authority" jsonschema:"authority requesting the retcon"`
	FactID       string `json:"fact_id" jsonschema:"canonical fact to supersede"`
	SupersededBy string `json:"superseded_by,omitempty" jsonschema:"fact id that replaces it"`
	Reason       string `json:"reason" jsonschema:"why the fact is being retconned"`
}

type StoryOutput struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SourceOutput struct {
	ID         string `json:"id"`
	UniverseID string `json:"universe_id"`
	Kind       string `json:"kind"`
	Ref        string `json:"ref"`
}

type SceneOutput struct {
	ID         string `json:"id"`
	UniverseID string `json:"universe_id"`
	Name       string `json:"name,omitempty"`
	Status     string `json:"status"`
}

type ProposalOutput struct {
	ID             string   `json:"id"`
	SceneID        string   `json:"scene_id"`
	Type           string   `json:"type"`
	Authority      string   `json:"authority"`
	Confidence     float64  `json:"confidence"`
	Statement      string   `json:"statement,omitempty"`
	Status         string   `json:"status"`
	Rationale      string   `json:"rationale,omitempty"`
	Contradictions []string `json:"contradictions,omitempty"`
}

type PendingProposalsOutput struct {
	Proposals []ProposalOutput `json:"proposals"`
}

type FactOutput struct {
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	Statement    string   `json:"statement"`
	Level        string   `json:"level"`
	Authority    string   `json:"authority"`
	Confidence   float64  `json:"confidence"`
	Dimension    string   `json:"dimension,omitempty"`
	Tag          string   `json:"tag,omitempty"`
	Involves     []string `json:"involves,omitempty"`
	Evidence     []string `json:"evidence,omitempty"`
	Causes       []string `json:"causes,omitempty"`
	SupersededBy string   `json:"superseded_by,omitempty"`
	RetconReason string   `json:"retcon_reason,omitempty"`
}

type CanonContextOutput struct {
	Facts []FactOutput `json:"facts"`
}

type ProposalErrorOutput struct {
	ProposalID string `json:"proposal_id"`
	Reason     string `json:"reason"`
}

type ReportOutput struct {
	SceneID  string                `json:"scene_id"`
	Accepted []string              `json:"accepted"`
	Rejected []string              `json:"rejected"`
	Errors   []ProposalErrorOutput `json:"errors,omitempty"`
	Complete bool                  `json:"complete"`
}

type RetconFactOutput struct {
	FactID string `json:"fact_id"`
	Status string `json:"status"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "create_story",
		Description: "Create a story, the container for a universe of canon",
	}, s.handleCreateStory)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "create_source",
		Description: "Register a provenance source that evidence links can point at",
	}, s.handleCreateSource)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "create_scene",
		Description: "Open a new active scene for staging proposals",
	}, s.handleCreateScene)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_scene",
		Description: "Retrieve a scene and its lifecycle status",
	}, s.handleGetScene)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "create_proposal",
		Description: "Stage a proposed fact, event, entity, or state change in a scene",
	}, s.handleCreateProposal)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_pending_proposals",
		Description: "List a scene's unresolved proposals in canonization order",
	}, s.handleGetPendingProposals)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_fact",
		Description: "Retrieve a canonical fact with its edges and retcon status",
	}, s.handleGetFact)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_canon_context",
		Description: "Read the canonical facts involving the given entities",
	}, s.handleGetCanonContext)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "end_scene",
		Description: "Finalize a scene and canonize its staged proposals",
	}, s.handleEndScene)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "canonize_scene",
		Description: "Canonize or retry a finalizing scene",
	}, s.handleCanonizeScene)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "retcon_fact",
		Description: "Supersede a canonical fact without deleting it",
	}, s.handleRetconFact)
}

func (s *Server) handleCreateStory(ctx context.Context, req *sdk.CallToolRequest, input CreateStoryInput) (*sdk.CallToolResult, StoryOutput, error) {
	if input.Name == "" {
		return nil, StoryOutput{}, fmt.Errorf("name is required")
	}
	story := canon.Story{
		ID:        s.newID(),
		Name:      input.Name,
		CreatedAt: s.now(),
	}
	if err := s.canon.CreateStory(ctx, s.cap, story); err != nil {
		return nil, StoryOutput{}, err
	}
	return nil, StoryOutput{ID: story.ID, Name: story.Name}, nil
}

func (s *Server) handleCreateSource(ctx context.Context, req *sdk.CallToolRequest, input CreateSourceInput) (*sdk.CallToolResult, SourceOutput, error) {
	if input.UniverseID == "" {
		return nil, SourceOutput{}, fmt.Errorf("universe_id is required")
	}
	kind := canon.SourceKind(input.Kind)
	switch kind {
	case canon.SourceDocument, canon.SourceGMStatement, canon.SourcePlayerAction:
	default:
		return nil, SourceOutput{}, fmt.Errorf("invalid source kind: %s", input.Kind)
	}
	src := canon.Source{
		ID:         s.newID(),
		UniverseID: input.UniverseID,
		Kind:       kind,
		Ref:        input.Ref,
		CreatedAt:  s.now(),
	}
	if err := s.canon.CreateSource(ctx, s.cap, src); err != nil {
		return nil, SourceOutput{}, err
	}
	return nil, SourceOutput{ID: src.ID, UniverseID: src.UniverseID, Kind: string(src.Kind), Ref: src.Ref}, nil
}

func (s *Server) handleCreateScene(ctx context.Context, req *sdk.CallToolRequest, input CreateSceneInput) (*sdk.CallToolResult, SceneOutput, error) {
	if input.UniverseID == "" {
		return nil, SceneOutput{}, fmt.Errorf("universe_id is required")
	}
	if _, err := s.canon.GetStory(ctx, input.UniverseID); err != nil {
		return nil, SceneOutput{}, err
	}
	now := s.now()
	scene := staging.Scene{
		ID:         s.newID(),
		UniverseID: input.UniverseID,
		Name:       input.Name,
		Status:     staging.SceneActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.staging.CreateScene(ctx, scene); err != nil {
		return nil, SceneOutput{}, err
	}
	return nil, sceneOutputFromStaging(&scene), nil
}

func (s *Server) handleGetScene(ctx context.Context, req *sdk.CallToolRequest, input GetSceneInput) (*sdk.CallToolResult, SceneOutput, error) {
	if input.SceneID == "" {
		return nil, SceneOutput{}, fmt.Errorf("scene_id is required")
	}
	scene, err := s.staging.GetScene(ctx, input.SceneID)
	if err != nil {
		return nil, SceneOutput{}, err
	}
	return nil, sceneOutputFromStaging(scene), nil
}

func (s *Server) handleCreateProposal(ctx context.Context, req *sdk.CallToolRequest, input CreateProposalInput) (*sdk.CallToolResult, ProposalOutput, error) {
	proposal := staging.Proposal{
		ID:         s.newID(),
		SceneID:    input.SceneID,
		UniverseID: input.UniverseID,
		Type:       staging.ProposalType(input.Type),
		Authority:  canon.Authority(input.Authority),
		Confidence: input.Confidence,
		Status:     staging.StatusProposed,
		CreatedAt:  s.now(),
		Payload: staging.Payload{
			Statement:  input.Statement,
			Entities:   input.Entities,
			Dimension:  input.Dimension,
			Tag:        input.Tag,
			Evidence:   input.Evidence,
			Causes:     input.Causes,
			CausesFrom: input.CausesFrom,
		},
	}
	if input.Entity != nil {
		proposal.Payload.Entity = &staging.EntitySpec{
			Name:        input.Entity.Name,
			Category:    input.Entity.Category,
			Archetype:   input.Entity.Archetype,
			ArchetypeID: input.Entity.ArchetypeID,
			Properties:  input.Entity.Properties,
		}
	}
	if err := proposal.Validate(); err != nil {
		return nil, ProposalOutput{}, err
	}
	if err := s.staging.CreateProposal(ctx, proposal); err != nil {
		return nil, ProposalOutput{}, err
	}
	return nil, proposalOutputFromStaging(proposal), nil
}

func (s *Server) handleGetPendingProposals(ctx context.Context, req *sdk.CallToolRequest, input GetPendingProposalsInput) (*sdk.CallToolResult, PendingProposalsOutput, error) {
	if input.SceneID == "" {
		return nil, PendingProposalsOutput{}, fmt.Errorf("scene_id is required")
	}
	proposals, err := s.staging.PendingProposals(ctx, input.SceneID)
	if err != nil {
		return nil, PendingProposalsOutput{}, err
	}
	output := make([]ProposalOutput, 0, len(proposals))
	for _, p := range proposals {
		output = append(output, proposalOutputFromStaging(p))
	}
	return nil, PendingProposalsOutput{Proposals: output}, nil
}

func (s *Server) handleGetFact(ctx context.Context, req *sdk.CallToolRequest, input GetFactInput) (*sdk.CallToolResult, FactOutput, error) {
	if input.FactID == "" {
		return nil, FactOutput{}, fmt.Errorf("fact_id is required")
	}
	fact, err := s.canon.GetFact(ctx, input.FactID)
	if err != nil {
		return nil, FactOutput{}, err
	}
	return nil, factOutputFromCanon(*fact), nil
}

func (s *Server) handleGetCanonContext(ctx context.Context, req *sdk.CallToolRequest, input GetCanonContextInput) (*sdk.CallToolResult, CanonContextOutput, error) {
	if input.UniverseID == "" {
		return nil, CanonContextOutput{}, fmt.Errorf("universe_id is required")
	}
	if len(input.Entities) == 0 {
		return nil, CanonContextOutput{}, fmt.Errorf("at least one entity id is required")
	}
	facts, err := s.canon.CanonContext(ctx, input.UniverseID, input.Entities)
	if err != nil {
		return nil, CanonContextOutput{}, err
	}
	output := make([]FactOutput, 0, len(facts))
	for _, fact := range facts {
		output = append(output, factOutputFromCanon(fact))
	}
	return nil, CanonContextOutput{Facts: output}, nil
}

func (s *Server) handleEndScene(ctx context.Context, req *sdk.CallToolRequest, input EndSceneInput) (*sdk.CallToolResult, ReportOutput, error) {
	if input.SceneID == "" {
		return nil, ReportOutput{}, fmt.Errorf("scene_id is required")
	}
	report, err := s.engine.EndScene(ctx, input.SceneID)
	if err != nil {
		return nil, ReportOutput{}, err
	}
	return nil, reportOutput(report), nil
}

func (s *Server) handleCanonizeScene(ctx context.Context, req *sdk.CallToolRequest, input CanonizeSceneInput) (*sdk.CallToolResult, ReportOutput, error) {
	if input.SceneID == "" {
		return nil, ReportOutput{}, fmt.Errorf("scene_id is required")
	}
	report, err := s.engine.CanonizeScene(ctx, input.SceneID)
	if err != nil {
		return nil, ReportOutput{}, err
	}
	return nil, reportOutput(report), nil
}

func (s *Server) handleRetconFact(ctx context.Context, req *sdk.CallToolRequest, input RetconFactInput) (*sdk.CallToolResult, RetconFactOutput, error) {
	if input.FactID == "" {
		return nil, RetconFactOutput{}, fmt.Errorf("fact_id is required")
	}
	if input.Reason == "" {
		return nil, RetconFactOutput{}, fmt.Errorf("reason is required")
	}
	if err := s.engine.Retcon(ctx, canon.Authority(input.Authority), input.FactID, input.SupersededBy, input.Reason); err != nil {
		return nil, RetconFactOutput{}, err
	}
	return nil, RetconFactOutput{FactID: input.FactID, Status: string(canon.LevelRetconned)}, nil
}

func sceneOutputFromStaging(scene *staging.Scene) SceneOutput {
	if scene == nil {
		return SceneOutput{}
	}
	return SceneOutput{
		ID:         scene.ID,
		UniverseID: scene.UniverseID,
		Name:       scene.Name,
		Status:     string(scene.Status),
	}
}

func proposalOutputFromStaging(p staging.Proposal) ProposalOutput {
	return ProposalOutput{
		ID:             p.ID,
		SceneID:        p.SceneID,
		Type:           string(p.Type),
		Authority:      string(p.Authority),
		Confidence:     p.Confidence,
		Statement:      p.Payload.Statement,
		Status:         string(p.Status),
		Rationale:      p.Rationale,
		Contradictions: append([]string{}, p.Contradictions...),
	}
}

func factOutputFromCanon(fact canon.Fact) FactOutput {
	return FactOutput{
		ID:           fact.ID,
		Kind:         string(fact.Kind),
		Statement:    fact.Statement,
		Level:        string(fact.Level),
		Authority:    string(fact.Authority),
		Confidence:   fact.Confidence,
		Dimension:    fact.Dimension,
		Tag:          fact.Tag,
		Involves:     append([]string{}, fact.Involves...),
		Evidence:     append([]string{}, fact.Evidence...),
		Causes:       append([]string{}, fact.Causes...),
		SupersededBy: fact.SupersededBy,
		RetconReason: fact.RetconReason,
	}
}

func reportOutput(report *canonizer.Report) ReportOutput {
	if report == nil {
		return ReportOutput{}
	}
	out := ReportOutput{
		SceneID:  report.SceneID,
		Accepted: append([]string{}, report.Accepted...),
		Rejected: append([]string{}, report.Rejected...),
		Complete: report.OK(),
	}
	for _, e := range report.Errors {
		out.Errors = append(out.Errors, ProposalErrorOutput{ProposalID: e.ProposalID, Reason: e.Reason})
	}
	return out
}
