package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"traceline/internal/domain"
	"traceline/internal/engine"
)

var countedTables = []string{
	"needs", "use_cases", "requirements", "linkages", "comments", "events",
	"need_sites", "need_components", "use_case_preconditions", "use_case_postconditions",
	"use_case_exceptions", "use_case_stakeholders",
}

func (env testEnv) rowCounts(t *testing.T) map[string]int {
	t.Helper()
	out := map[string]int{}
	for _, table := range countedTables {
		var n int
		require.NoError(t, env.Engine.DB.QueryRowContext(env.Ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
		out[table] = n
	}
	return out
}

func TestRenameRewritesEveryReference(t *testing.T) {
	env := newTestEnv(t)
	site, err := env.Engine.CreateCatalogItem(env.Ctx, domain.CatalogItem{Kind: domain.CatalogSite, ProjectID: "p1", Name: "Plant"})
	require.NoError(t, err)
	n, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactInput{
		Type: domain.TypeNeed, ProjectID: "p1", Area: "SYS", Fields: map[string]string{"title": "n"},
		Relations: map[string][]string{"site_ids": {site.ID}},
	})
	require.NoError(t, err)
	uc, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactInput{
		Type: domain.TypeUseCase, ProjectID: "p1", ParentID: n.ID, Fields: map[string]string{"title": "uc"},
	})
	require.NoError(t, err)
	_, err = env.Engine.CreateLinkage(env.Ctx, engine.LinkageInput{
		SourceType: domain.TypeNeed, SourceID: n.ID, TargetType: "url", TargetID: "https://example.com",
		RelationshipType: domain.RelDocumentedIn, ProjectID: "p1",
	})
	require.NoError(t, err)
	_, err = env.Engine.CreateComment(env.Ctx, engine.CommentInput{ArtifactID: n.ID, Text: "clarify"})
	require.NoError(t, err)

	before := env.rowCounts(t)
	counts, err := env.Engine.RenameArtifact(env.Ctx, domain.TypeNeed, n.ID, "DEMO-SYS-NEED-042", "tester")
	require.NoError(t, err)
	require.Equal(t, before, env.rowCounts(t))
	require.EqualValues(t, 2, counts.Linkages)
	require.EqualValues(t, 1, counts.Comments)
	require.EqualValues(t, 1, counts.Events)
	require.EqualValues(t, 1, counts.Joins)

	renamed, err := env.Engine.GetArtifact(env.Ctx, domain.TypeNeed, "DEMO-SYS-NEED-042")
	require.NoError(t, err)
	require.Equal(t, []string{site.ID}, renamed.Relations["site_ids"])
	child, err := env.Engine.GetArtifact(env.Ctx, domain.TypeUseCase, uc.ID)
	require.NoError(t, err)
	require.Equal(t, "DEMO-SYS-NEED-042", child.ParentID)
	comments, err := env.Engine.ListComments(env.Ctx, "DEMO-SYS-NEED-042", nil)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	stale, err := env.Engine.ListLinkagesBySource(env.Ctx, domain.TypeNeed, n.ID)
	require.NoError(t, err)
	require.Empty(t, stale)
}

func TestRenameRejections(t *testing.T) {
	env := newTestEnv(t)
	a := env.need(t, "a")
	b := env.need(t, "b")
	before := env.rowCounts(t)

	_, err := env.Engine.RenameArtifact(env.Ctx, domain.TypeNeed, a.ID, b.ID, "tester")
	require.ErrorIs(t, err, domain.ErrConflict)
	_, err = env.Engine.RenameArtifact(env.Ctx, domain.TypeNeed, "DEMO-SYS-NEED-404", "X", "tester")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.Engine.RenameArtifact(env.Ctx, domain.TypeNeed, a.ID, " ", "tester")
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = env.Engine.RenameArtifact(env.Ctx, domain.TypeNeed, a.ID, a.ID, "tester")
	require.ErrorIs(t, err, domain.ErrValidation)

	require.Equal(t, before, env.rowCounts(t))
	_, err = env.Engine.GetArtifact(env.Ctx, domain.TypeNeed, a.ID)
	require.NoError(t, err)
}
