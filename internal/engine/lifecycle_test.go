package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"traceline/internal/domain"
	"traceline/internal/engine"
	"traceline/internal/repo"
)

func TestTransitionClosure(t *testing.T) {
	env := newTestEnv(t)
	k, _ := domain.LookupKind(domain.TypeRequirement)
	req := env.requirement(t, "closure")

	for _, from := range domain.Statuses() {
		allowed := map[string]bool{}
		for _, to := range engine.AllowedTransitions(from) {
			allowed[to] = true
		}
		for _, to := range domain.Statuses() {
			from := from
			require.NoError(t, env.Engine.Repo.UpdateArtifact(env.Ctx, nil, k, req.ID, repo.ArtifactPatch{Status: &from, UpdatedAt: "2024-01-01T00:00:00Z"}))
			_, err := env.transition(t, req.ID, to)
			if allowed[to] {
				require.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			require.ErrorIs(t, err, domain.ErrInvalidTransition, "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatusesHaveNoTargets(t *testing.T) {
	require.Empty(t, engine.AllowedTransitions(domain.StatusSuperseded))
	require.Empty(t, engine.AllowedTransitions(domain.StatusRetired))
	require.Equal(t, []string{domain.StatusReadyForReview}, engine.AllowedTransitions("draft"))
}

func TestTransitionChecks(t *testing.T) {
	env := newTestEnv(t)
	req := env.requirement(t, "checks")

	_, err := env.Engine.Transition(env.Ctx, engine.TransitionInput{Type: domain.TypeRequirement, ID: req.ID, To: domain.StatusReadyForReview, Rationale: "  "})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.Engine.Transition(env.Ctx, engine.TransitionInput{Type: domain.TypeRequirement, ID: req.ID, To: "Shipped", Rationale: "r"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.Engine.Transition(env.Ctx, engine.TransitionInput{Type: domain.TypeRequirement, ID: "DEMO-SYS-REQ-404", To: domain.StatusReadyForReview, Rationale: "r"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.Engine.Transition(env.Ctx, engine.TransitionInput{Type: domain.TypeRequirement, ID: req.ID, From: domain.StatusInReview, To: domain.StatusApproved, Rationale: "r"})
	require.ErrorIs(t, err, domain.ErrConflict)

	evt, err := env.Engine.Transition(env.Ctx, engine.TransitionInput{
		Type: domain.TypeRequirement, ID: req.ID, From: "draft", To: "ready_for_review",
		Rationale: "r", Comment: "looks complete", ActorID: "alice",
	})
	require.NoError(t, err)
	require.Equal(t, "alice", evt.ActorID)
	require.Equal(t, "looks complete", evt.Comment)
	require.Equal(t, req.ID, evt.EntityID)

	got, err := env.Engine.GetArtifact(env.Ctx, domain.TypeRequirement, req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusReadyForReview, got.Status)
}

func TestUpdateArtifact(t *testing.T) {
	env := newTestEnv(t)
	req := env.requirement(t, "update")

	later := env.Engine.WithClock(func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) })
	empty, err := later.UpdateArtifact(env.Ctx, engine.UpdateArtifactInput{Type: domain.TypeRequirement, ID: req.ID})
	require.NoError(t, err)
	require.Equal(t, req.Fields, empty.Fields)
	require.Equal(t, req.Status, empty.Status)
	require.Equal(t, req.Area, empty.Area)
	require.Equal(t, req.CreatedAt, empty.CreatedAt)
	require.Equal(t, "2024-01-01T00:00:00Z", req.UpdatedAt)
	require.Equal(t, "2025-01-01T00:00:00Z", empty.UpdatedAt)

	text := "The system shall restart"
	status := "Ready_for_Review"
	got, err := env.Engine.UpdateArtifact(env.Ctx, engine.UpdateArtifactInput{
		Type:   domain.TypeRequirement,
		ID:     req.ID,
		Status: &status,
		Fields: map[string]*string{"text": &text, "rationale": nil},
	})
	require.NoError(t, err)
	require.Equal(t, text, got.Fields["text"])
	require.Equal(t, "update", got.Fields["short_name"])
	require.Equal(t, domain.StatusReadyForReview, got.Status)

	approved := domain.StatusRetired
	_, err = env.Engine.UpdateArtifact(env.Ctx, engine.UpdateArtifactInput{Type: domain.TypeRequirement, ID: req.ID, Status: &approved})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	hist, err := env.Engine.History(env.Ctx, domain.TypeRequirement, req.ID)
	require.NoError(t, err)
	types := []string{}
	for _, e := range hist {
		types = append(types, e.Type)
	}
	require.Equal(t, []string{"ArtifactUpdated", "StatusChanged", "ArtifactUpdated", "ArtifactCreated"}, types)

	_, err = env.Engine.UpdateArtifact(env.Ctx, engine.UpdateArtifactInput{Type: domain.TypeRequirement, ID: "DEMO-SYS-REQ-404"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateKeepsParentLinkageInSync(t *testing.T) {
	env := newTestEnv(t)
	n1 := env.need(t, "n1")
	n2 := env.need(t, "n2")
	uc, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactInput{
		Type: domain.TypeUseCase, ProjectID: "p1", ParentID: n1.ID, Fields: map[string]string{"title": "uc"},
	})
	require.NoError(t, err)

	retarget := n2.ID
	got, err := env.Engine.UpdateArtifact(env.Ctx, engine.UpdateArtifactInput{Type: domain.TypeUseCase, ID: uc.ID, ParentID: &retarget})
	require.NoError(t, err)
	require.Equal(t, n2.ID, got.ParentID)
	links, err := env.Engine.ListLinkagesBySource(env.Ctx, domain.TypeUseCase, uc.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)

	none := ""
	got, err = env.Engine.UpdateArtifact(env.Ctx, engine.UpdateArtifactInput{Type: domain.TypeUseCase, ID: uc.ID, ParentID: &none})
	require.NoError(t, err)
	require.Empty(t, got.ParentID)
	links, err = env.Engine.ListLinkagesBySource(env.Ctx, domain.TypeUseCase, uc.ID)
	require.NoError(t, err)
	require.Empty(t, links)

	missing := "DEMO-SYS-NEED-404"
	_, err = env.Engine.UpdateArtifact(env.Ctx, engine.UpdateArtifactInput{Type: domain.TypeUseCase, ID: uc.ID, ParentID: &missing})
	require.ErrorIs(t, err, domain.ErrInvalidReference)
}

func TestListArtifactsFilters(t *testing.T) {
	env := newTestEnv(t)
	for _, in := range []engine.CreateArtifactInput{
		{Type: domain.TypeRequirement, ProjectID: "p1", Area: "SYS", Fields: map[string]string{"short_name": "alpha", "text": "Fast boot", "level": "sys", "owner": "Alice"}},
		{Type: domain.TypeRequirement, ProjectID: "p1", Area: "OPS", Fields: map[string]string{"short_name": "beta", "text": "Slow drain", "level": "stk", "ears_type": "event-driven"}},
		{Type: domain.TypeRequirement, ProjectID: "p1", Area: "SYS", Fields: map[string]string{"short_name": "gamma", "text": "Quick BOOT", "owner": "bob"}},
	} {
		_, err := env.Engine.CreateArtifact(env.Ctx, in)
		require.NoError(t, err)
	}
	_, err := env.transition(t, "DEMO-SYS-REQ-001", domain.StatusReadyForReview)
	require.NoError(t, err)

	ids := func(q engine.ArtifactQuery) []string {
		t.Helper()
		list, err := env.Engine.ListArtifacts(env.Ctx, domain.TypeRequirement, q)
		require.NoError(t, err)
		out := []string{}
		for _, a := range list {
			out = append(out, a.ID)
		}
		return out
	}
	require.Equal(t, []string{"DEMO-OPS-REQ-001", "DEMO-SYS-REQ-001", "DEMO-SYS-REQ-002"}, ids(engine.ArtifactQuery{ProjectID: "p1"}))
	require.Equal(t, []string{"DEMO-SYS-REQ-001", "DEMO-SYS-REQ-002"}, ids(engine.ArtifactQuery{Areas: []string{"SYS"}}))
	require.Equal(t, []string{"DEMO-SYS-REQ-001"}, ids(engine.ArtifactQuery{Statuses: []string{"ready_for_review"}}))
	require.Equal(t, []string{"DEMO-SYS-REQ-001"}, ids(engine.ArtifactQuery{Owner: "alice"}))
	require.Equal(t, []string{"DEMO-SYS-REQ-001", "DEMO-SYS-REQ-002"}, ids(engine.ArtifactQuery{Search: "boot"}))
	require.Equal(t, []string{"DEMO-OPS-REQ-001"}, ids(engine.ArtifactQuery{Extra: map[string][]string{"ears_type": {"EVENT-DRIVEN"}}}))
	require.Equal(t, []string{"DEMO-OPS-REQ-001", "DEMO-SYS-REQ-001"}, ids(engine.ArtifactQuery{Extra: map[string][]string{"level": {"sys", "stk"}}}))
	require.Len(t, ids(engine.ArtifactQuery{SelectAll: true, Areas: []string{"NONE"}}), 3)

	_, err = env.Engine.ListArtifacts(env.Ctx, domain.TypeRequirement, engine.ArtifactQuery{Statuses: []string{"Shipped"}})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = env.Engine.ListArtifacts(env.Ctx, domain.TypeVision, engine.ArtifactQuery{Extra: map[string][]string{"level": {"sys"}}})
	require.ErrorIs(t, err, domain.ErrValidation)
}
