package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"canonkeep/internal/canon"
	"canonkeep/internal/staging"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, now func() time.Time) *Client {
	t.Helper()
	ctx := context.Background()

	dsn := "sqlite://" + filepath.Join(t.TempDir(), "test.db")
	client, err := New(ctx, dsn, now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { client.Close(ctx) })

	if err := client.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return client
}

func canonizerCap(t *testing.T) canon.WriteCap {
	t.Helper()
	cap, err := canon.NewWriteCap(canon.RoleCanonizer)
	if err != nil {
		t.Fatalf("NewWriteCap: %v", err)
	}
	return cap
}

// seedUniverse creates a story, a source, and one instance.
func seedUniverse(t *testing.T, client *Client) canon.WriteCap {
	t.Helper()
	ctx := context.Background()
	cap := canonizerCap(t)

	if err := client.CreateStory(ctx, cap, canon.Story{ID: "story-1", Name: "Test", CreatedAt: testTime}); err != nil {
		t.Fatalf("CreateStory: %v", err)
	}
	if err := client.CreateSource(ctx, cap, canon.Source{ID: "src-1", UniverseID: "story-1", Kind: canon.SourceGMStatement, CreatedAt: testTime}); err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	if err := client.CreateInstance(ctx, cap, canon.Instance{ID: "inst-1", UniverseID: "story-1", Name: "Gandalf", Category: "character", CreatedAt: testTime}); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	return cap
}

func TestWriteFact_RoundTrip(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()
	cap := seedUniverse(t, client)

	fact := canon.Fact{
		ID:         "fact-1",
		UniverseID: "story-1",
		Kind:       canon.KindEvent,
		Statement:  "Gandalf falls in Moria",
		Level:      canon.LevelCanon,
		Authority:  canon.AuthorityGM,
		Confidence: 0.9,
		RecordedAt: testTime,
		Dimension:  "life",
		Tag:        "dead",
		Involves:   []string{"inst-1"},
		Evidence:   []string{"src-1"},
	}
	if err := client.WriteFact(ctx, cap, fact); err != nil {
		t.Fatalf("WriteFact: %v", err)
	}

	got, err := client.GetFact(ctx, "fact-1")
	if err != nil {
		t.Fatalf("GetFact: %v", err)
	}
	if got.Statement != fact.Statement || got.Kind != canon.KindEvent || got.Authority != canon.AuthorityGM {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Involves) != 1 || got.Involves[0] != "inst-1" {
		t.Fatalf("involves = %v", got.Involves)
	}
	if len(got.Evidence) != 1 || got.Evidence[0] != "src-1" {
		t.Fatalf("evidence = %v", got.Evidence)
	}

	inst, err := client.GetInstance(ctx, "inst-1")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if inst.StateTags["life"] != "dead" {
		t.Fatalf("state tags = %v", inst.StateTags)
	}
}

func TestWriteFact_RequiresEvidence(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()
	cap := seedUniverse(t, client)

	err := client.WriteFact(ctx, cap, canon.Fact{
		ID: "fact-1", UniverseID: "story-1", Kind: canon.KindFact,
		Statement: "unsupported", Level: canon.LevelCanon,
		Authority: canon.AuthorityGM, RecordedAt: testTime,
	})
	if !errors.Is(err, canon.ErrMissingEvidence) {
		t.Fatalf("expected ErrMissingEvidence, got %v", err)
	}
}

func TestWriteFact_AtomicOnBadReference(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()
	cap := seedUniverse(t, client)

	before, _ := client.NodeCount(ctx)
	err := client.WriteFact(ctx, cap, canon.Fact{
		ID: "fact-1", UniverseID: "story-1", Kind: canon.KindFact,
		Statement: "dangling", Level: canon.LevelCanon, Authority: canon.AuthorityGM,
		RecordedAt: testTime,
		Involves:   []string{"inst-1"},
		Evidence:   []string{"src-missing"},
	})
	if !errors.Is(err, canon.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	after, _ := client.NodeCount(ctx)
	if before != after {
		t.Fatalf("failed write left partial rows: %d -> %d", before, after)
	}
	if _, err := client.GetFact(ctx, "fact-1"); !errors.Is(err, canon.ErrNotFound) {
		t.Fatalf("fact should not exist, got %v", err)
	}
}

func TestWriteFact_CapabilityEnforced(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()
	seedUniverse(t, client)

	orchestrator, err := canon.NewWriteCap(canon.RoleOrchestrator)
	if err != nil {
		t.Fatalf("NewWriteCap: %v", err)
	}
	err = client.WriteFact(ctx, orchestrator, canon.Fact{
		ID: "fact-1", UniverseID: "story-1", Kind: canon.KindFact,
		Statement: "forbidden", Level: canon.LevelCanon, Authority: canon.AuthorityGM,
		RecordedAt: testTime, Evidence: []string{"src-1"},
	})
	if !errors.Is(err, canon.ErrWriteDenied) {
		t.Fatalf("expected ErrWriteDenied, got %v", err)
	}
}

func writeEvent(t *testing.T, client *Client, cap canon.WriteCap, id string, causes []string, causesFrom string) error {
	t.Helper()
	return client.WriteFact(context.Background(), cap, canon.Fact{
		ID: id, UniverseID: "story-1", Kind: canon.KindEvent,
		Statement: id, Level: canon.LevelCanon, Authority: canon.AuthorityGM,
		Confidence: 0.9, RecordedAt: testTime,
		Involves: []string{"inst-1"}, Evidence: []string{"src-1"},
		Causes: causes, CausesFrom: causesFrom,
	})
}

func TestCausesChainStaysAcyclic(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()
	cap := seedUniverse(t, client)

	// evt-a -> evt-b -> evt-c, built back to front so targets exist.
	if err := writeEvent(t, client, cap, "evt-c", nil, ""); err != nil {
		t.Fatalf("evt-c: %v", err)
	}
	if err := writeEvent(t, client, cap, "evt-b", []string{"evt-c"}, ""); err != nil {
		t.Fatalf("evt-b: %v", err)
	}
	if err := writeEvent(t, client, cap, "evt-a", []string{"evt-b"}, ""); err != nil {
		t.Fatalf("evt-a: %v", err)
	}

	exists, err := client.CausesPathExists(ctx, "evt-a", "evt-c")
	if err != nil {
		t.Fatalf("CausesPathExists: %v", err)
	}
	if !exists {
		t.Fatalf("transitive path a -> c should exist")
	}

	// Closing the loop from c back to a must be refused whole.
	before, _ := client.NodeCount(ctx)
	err = writeEvent(t, client, cap, "evt-link", []string{"evt-a"}, "evt-c")
	if !errors.Is(err, canon.ErrCausesCycle) {
		t.Fatalf("expected ErrCausesCycle, got %v", err)
	}
	after, _ := client.NodeCount(ctx)
	if before != after {
		t.Fatalf("rejected cycle wrote rows: %d -> %d", before, after)
	}

	if err := writeEvent(t, client, cap, "evt-self", []string{"evt-self"}, "evt-self"); !errors.Is(err, canon.ErrCausesCycle) {
		t.Fatalf("expected self-loop rejection, got %v", err)
	}
}

func TestRetconFact(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()
	cap := seedUniverse(t, client)

	if err := writeEvent(t, client, cap, "fact-1", nil, ""); err != nil {
		t.Fatalf("WriteFact: %v", err)
	}

	before, _ := client.NodeCount(ctx)
	if err := client.RetconFact(ctx, cap, "fact-1", "fact-2", "the body was never found"); err != nil {
		t.Fatalf("RetconFact: %v", err)
	}

	fact, err := client.GetFact(ctx, "fact-1")
	if err != nil {
		t.Fatalf("GetFact: %v", err)
	}
	if fact.Level != canon.LevelRetconned || fact.SupersededBy != "fact-2" || fact.RetconReason == "" {
		t.Fatalf("retcon not recorded: %+v", fact)
	}
	after, _ := client.NodeCount(ctx)
	if before != after {
		t.Fatalf("retcon must not add or remove nodes: %d -> %d", before, after)
	}

	if err := client.RetconFact(ctx, cap, "fact-1", "", "again"); !errors.Is(err, canon.ErrAlreadyRetconned) {
		t.Fatalf("expected ErrAlreadyRetconned, got %v", err)
	}
	if err := client.RetconFact(ctx, cap, "fact-missing", "", "x"); !errors.Is(err, canon.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCanonContextOrdering(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()
	cap := seedUniverse(t, client)

	times := []time.Time{testTime.Add(2 * time.Second), testTime, testTime.Add(time.Second)}
	for i, id := range []string{"fact-late", "fact-early", "fact-mid"} {
		err := client.WriteFact(ctx, cap, canon.Fact{
			ID: id, UniverseID: "story-1", Kind: canon.KindFact,
			Statement: id, Level: canon.LevelCanon, Authority: canon.AuthorityGM,
			RecordedAt: times[i], Involves: []string{"inst-1"}, Evidence: []string{"src-1"},
		})
		if err != nil {
			t.Fatalf("WriteFact %s: %v", id, err)
		}
	}

	facts, err := client.CanonContext(ctx, "story-1", []string{"inst-1"})
	if err != nil {
		t.Fatalf("CanonContext: %v", err)
	}
	var ids []string
	for _, f := range facts {
		ids = append(ids, f.ID)
	}
	want := []string{"fact-early", "fact-mid", "fact-late"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}

	// Unrelated entities see nothing.
	none, err := client.CanonContext(ctx, "story-1", []string{"inst-other"})
	if err != nil {
		t.Fatalf("CanonContext: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no facts, got %d", len(none))
	}
}

func TestCanonContextOrdering_SubSecond(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()
	cap := seedUniverse(t, client)

	// 500ms vs 550ms: a trimmed fractional second would sort these
	// lexicographically backwards.
	write := func(id string, offset time.Duration) {
		t.Helper()
		err := client.WriteFact(ctx, cap, canon.Fact{
			ID: id, UniverseID: "story-1", Kind: canon.KindFact,
			Statement: id, Level: canon.LevelCanon, Authority: canon.AuthorityGM,
			RecordedAt: testTime.Add(offset), Involves: []string{"inst-1"}, Evidence: []string{"src-1"},
		})
		if err != nil {
			t.Fatalf("WriteFact %s: %v", id, err)
		}
	}
	write("fact-b", 550*time.Millisecond)
	write("fact-a", 500*time.Millisecond)

	facts, err := client.CanonContext(ctx, "story-1", []string{"inst-1"})
	if err != nil {
		t.Fatalf("CanonContext: %v", err)
	}
	if facts[0].ID != "fact-a" || facts[1].ID != "fact-b" {
		t.Fatalf("creation order violated: got %s, %s", facts[0].ID, facts[1].ID)
	}
}

func TestCausesEndpointsMustBeEvents(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()
	cap := seedUniverse(t, client)

	plainFact := canon.Fact{
		ID: "fact-plain", UniverseID: "story-1", Kind: canon.KindFact,
		Statement: "a plain fact", Level: canon.LevelCanon, Authority: canon.AuthorityGM,
		Confidence: 0.9, RecordedAt: testTime,
		Involves: []string{"inst-1"}, Evidence: []string{"src-1"},
	}
	if err := client.WriteFact(ctx, cap, plainFact); err != nil {
		t.Fatalf("WriteFact: %v", err)
	}
	if err := writeEvent(t, client, cap, "evt-1", nil, ""); err != nil {
		t.Fatalf("WriteFact event: %v", err)
	}

	// A plain fact is not a valid causal target.
	err := writeEvent(t, client, cap, "evt-2", []string{"fact-plain"}, "")
	if !errors.Is(err, canon.ErrNotFound) {
		t.Fatalf("fact as causes target should be refused, got %v", err)
	}
	// Nor a valid causal source.
	err = writeEvent(t, client, cap, "evt-3", []string{"evt-1"}, "fact-plain")
	if !errors.Is(err, canon.ErrNotFound) {
		t.Fatalf("fact as causes source should be refused, got %v", err)
	}

	// A new non-event node cannot originate causes edges either.
	badSource := plainFact
	badSource.ID = "fact-causing"
	badSource.Causes = []string{"evt-1"}
	if err := client.WriteFact(ctx, cap, badSource); err == nil {
		t.Fatalf("plain fact with causes edges should be refused")
	}
}

func TestFindInstanceByName(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()
	seedUniverse(t, client)

	inst, err := client.FindInstanceByName(ctx, "story-1", "gandalf")
	if err != nil {
		t.Fatalf("FindInstanceByName: %v", err)
	}
	if inst.ID != "inst-1" {
		t.Fatalf("instance = %+v", inst)
	}

	if _, err := client.FindInstanceByName(ctx, "story-1", "saruman"); !errors.Is(err, canon.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInstanceArchetypeEdge(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()
	cap := seedUniverse(t, client)

	if err := client.CreateArchetype(ctx, cap, canon.Archetype{ID: "arch-1", UniverseID: "story-1", Name: "Wizard", Category: "character", CreatedAt: testTime}); err != nil {
		t.Fatalf("CreateArchetype: %v", err)
	}
	if err := client.CreateInstance(ctx, cap, canon.Instance{ID: "inst-2", UniverseID: "story-1", Name: "Radagast", ArchetypeID: "arch-1", CreatedAt: testTime}); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}

	inst, err := client.GetInstance(ctx, "inst-2")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if inst.ArchetypeID != "arch-1" {
		t.Fatalf("archetype id = %q", inst.ArchetypeID)
	}

	err = client.CreateInstance(ctx, cap, canon.Instance{ID: "inst-3", UniverseID: "story-1", Name: "X", ArchetypeID: "arch-missing", CreatedAt: testTime})
	if !errors.Is(err, canon.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing archetype, got %v", err)
	}
}

func TestSceneLifecycle(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()

	scene := staging.Scene{ID: "scene-1", UniverseID: "story-1", Status: staging.SceneActive, CreatedAt: testTime}
	if err := client.CreateScene(ctx, scene); err != nil {
		t.Fatalf("CreateScene: %v", err)
	}

	if err := client.TransitionScene(ctx, "scene-1", staging.SceneActive, staging.SceneCompleted); !errors.Is(err, staging.ErrInvalidTransition) {
		t.Fatalf("active -> completed should fail, got %v", err)
	}
	if err := client.TransitionScene(ctx, "scene-1", staging.SceneActive, staging.SceneFinalizing); err != nil {
		t.Fatalf("active -> finalizing: %v", err)
	}
	// CAS: the stored status is no longer active.
	if err := client.TransitionScene(ctx, "scene-1", staging.SceneActive, staging.SceneFinalizing); !errors.Is(err, staging.ErrInvalidTransition) {
		t.Fatalf("stale transition should fail, got %v", err)
	}
	if err := client.TransitionScene(ctx, "scene-1", staging.SceneFinalizing, staging.SceneCompleted); err != nil {
		t.Fatalf("finalizing -> completed: %v", err)
	}

	got, err := client.GetScene(ctx, "scene-1")
	if err != nil {
		t.Fatalf("GetScene: %v", err)
	}
	if got.Status != staging.SceneCompleted {
		t.Fatalf("status = %s", got.Status)
	}

	err = client.CreateProposal(ctx, staging.Proposal{
		ID: "prop-1", SceneID: "scene-1", UniverseID: "story-1",
		Type: staging.TypeFact, Authority: canon.AuthorityGM, Confidence: 0.9,
		Payload: staging.Payload{Statement: "too late"}, CreatedAt: testTime,
	})
	if !errors.Is(err, staging.ErrSceneCompleted) {
		t.Fatalf("expected ErrSceneCompleted, got %v", err)
	}
}

func TestProposalLifecycle(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()

	if err := client.CreateScene(ctx, staging.Scene{ID: "scene-1", UniverseID: "story-1", Status: staging.SceneActive, CreatedAt: testTime}); err != nil {
		t.Fatalf("CreateScene: %v", err)
	}

	stage := func(id string, at time.Time) {
		t.Helper()
		err := client.CreateProposal(ctx, staging.Proposal{
			ID: id, SceneID: "scene-1", UniverseID: "story-1",
			Type: staging.TypeFact, Authority: canon.AuthorityGM, Confidence: 0.9,
			Payload:   staging.Payload{Statement: "statement " + id, Evidence: []string{"src-1"}},
			CreatedAt: at,
		})
		if err != nil {
			t.Fatalf("CreateProposal %s: %v", id, err)
		}
	}
	stage("prop-b", testTime)
	stage("prop-a", testTime)
	stage("prop-c", testTime.Add(-time.Second))

	pending, err := client.PendingProposals(ctx, "scene-1")
	if err != nil {
		t.Fatalf("PendingProposals: %v", err)
	}
	var ids []string
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	want := []string{"prop-c", "prop-a", "prop-b"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}

	if err := client.ResolveProposal(ctx, "prop-a", staging.StatusRejected, "rejected: no evidence", []string{"fact-9"}); err != nil {
		t.Fatalf("ResolveProposal: %v", err)
	}
	got, err := client.GetProposal(ctx, "prop-a")
	if err != nil {
		t.Fatalf("GetProposal: %v", err)
	}
	if got.Status != staging.StatusRejected || got.Rationale == "" || len(got.Contradictions) != 1 {
		t.Fatalf("resolution not recorded: %+v", got)
	}
	if got.ResolvedAt.IsZero() {
		t.Fatalf("resolved_at not set")
	}

	if err := client.ResolveProposal(ctx, "prop-a", staging.StatusAccepted, "flip", nil); !errors.Is(err, staging.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	if err := client.ResolveProposal(ctx, "prop-b", staging.StatusProposed, "", nil); err == nil {
		t.Fatalf("non-terminal resolution should fail")
	}

	pending, err = client.PendingProposals(ctx, "scene-1")
	if err != nil {
		t.Fatalf("PendingProposals: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
}

func TestPendingProposals_SubSecondOrdering(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()

	if err := client.CreateScene(ctx, staging.Scene{ID: "scene-1", UniverseID: "story-1", Status: staging.SceneActive, CreatedAt: testTime}); err != nil {
		t.Fatalf("CreateScene: %v", err)
	}

	stage := func(id string, offset time.Duration) {
		t.Helper()
		err := client.CreateProposal(ctx, staging.Proposal{
			ID: id, SceneID: "scene-1", UniverseID: "story-1",
			Type: staging.TypeFact, Authority: canon.AuthorityGM, Confidence: 0.9,
			Payload:   staging.Payload{Statement: id, Evidence: []string{"src-1"}},
			CreatedAt: testTime.Add(offset),
		})
		if err != nil {
			t.Fatalf("CreateProposal %s: %v", id, err)
		}
	}
	// 500ms and 550ms into the same second: a trimmed fractional second
	// sorts the later proposal first.
	stage("prop-later", 550*time.Millisecond)
	stage("prop-early", 500*time.Millisecond)

	pending, err := client.PendingProposals(ctx, "scene-1")
	if err != nil {
		t.Fatalf("PendingProposals: %v", err)
	}
	if pending[0].ID != "prop-early" || pending[1].ID != "prop-later" {
		t.Fatalf("creation order violated: got %s, %s", pending[0].ID, pending[1].ID)
	}
}

func TestLease(t *testing.T) {
	current := testTime
	client := newTestClient(t, func() time.Time { return current })
	ctx := context.Background()

	if err := client.AcquireLease(ctx, "scene-1", "holder-1", time.Minute); err != nil {
		t.Fatalf("AcquireLease: %v", err)
	}
	// Same holder refreshes.
	if err := client.AcquireLease(ctx, "scene-1", "holder-1", time.Minute); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	// A live lease blocks other holders.
	if err := client.AcquireLease(ctx, "scene-1", "holder-2", time.Minute); !errors.Is(err, staging.ErrCanonizationInFlight) {
		t.Fatalf("expected ErrCanonizationInFlight, got %v", err)
	}

	// Expired leases are claimable.
	current = current.Add(2 * time.Minute)
	if err := client.AcquireLease(ctx, "scene-1", "holder-2", time.Minute); err != nil {
		t.Fatalf("claim after expiry: %v", err)
	}

	// Releasing someone else's lease is a no-op.
	if err := client.ReleaseLease(ctx, "scene-1", "holder-1"); err != nil {
		t.Fatalf("ReleaseLease: %v", err)
	}
	if err := client.AcquireLease(ctx, "scene-1", "holder-3", time.Minute); !errors.Is(err, staging.ErrCanonizationInFlight) {
		t.Fatalf("lease should still be held by holder-2, got %v", err)
	}

	if err := client.ReleaseLease(ctx, "scene-1", "holder-2"); err != nil {
		t.Fatalf("ReleaseLease: %v", err)
	}
	if err := client.AcquireLease(ctx, "scene-1", "holder-3", time.Minute); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestLease_SubSecondExpiry(t *testing.T) {
	current := testTime
	client := newTestClient(t, func() time.Time { return current })
	ctx := context.Background()

	if err := client.AcquireLease(ctx, "scene-1", "holder-1", 500*time.Millisecond); err != nil {
		t.Fatalf("AcquireLease: %v", err)
	}

	// 50ms past expiry the lease is claimable; the expiry comparison
	// must hold for sub-second margins.
	current = current.Add(550 * time.Millisecond)
	if err := client.AcquireLease(ctx, "scene-1", "holder-2", time.Minute); err != nil {
		t.Fatalf("claim just past expiry: %v", err)
	}
}

func TestRunSQL_ReadOnly(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()
	seedUniverse(t, client)

	rows, err := client.RunSQL(ctx, "SELECT id, node_type FROM canon_nodes ORDER BY id", nil)
	if err != nil {
		t.Fatalf("RunSQL: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}

	if _, err := client.RunSQL(ctx, "DELETE FROM canon_nodes", nil); err == nil {
		t.Fatalf("writes must be refused")
	}
}
