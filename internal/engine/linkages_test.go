package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"traceline/internal/domain"
	"traceline/internal/engine"
)

func TestLinkageEndpointValidation(t *testing.T) {
	env := newTestEnv(t)
	n := env.need(t, "n")
	r := env.requirement(t, "r")

	_, err := env.Engine.CreateLinkage(env.Ctx, engine.LinkageInput{
		SourceType: domain.TypeRequirement, SourceID: r.ID,
		TargetType: domain.TypeNeed, TargetID: "DEMO-SYS-NEED-404",
		RelationshipType: domain.RelSatisfies, ProjectID: "p1",
	})
	require.ErrorIs(t, err, domain.ErrInvalidReference)
	var ref *domain.ReferenceError
	require.ErrorAs(t, err, &ref)
	require.Equal(t, "target", ref.Side)

	_, err = env.Engine.CreateLinkage(env.Ctx, engine.LinkageInput{
		SourceType: "epic", SourceID: r.ID, TargetType: domain.TypeNeed, TargetID: n.ID,
		RelationshipType: domain.RelSatisfies, ProjectID: "p1",
	})
	require.ErrorIs(t, err, domain.ErrInvalidReference)

	_, err = env.Engine.CreateLinkage(env.Ctx, engine.LinkageInput{
		SourceType: domain.TypeRequirement, SourceID: r.ID, TargetType: domain.TypeNeed, TargetID: n.ID,
		RelationshipType: "blesses", ProjectID: "p1",
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.Engine.CreateLinkage(env.Ctx, engine.LinkageInput{
		SourceType: domain.TypeRequirement, SourceID: r.ID, TargetType: domain.TypeNeed, TargetID: n.ID,
		RelationshipType: domain.RelSatisfies, ProjectID: "nope",
	})
	require.ErrorIs(t, err, domain.ErrNotFound)

	ext, err := env.Engine.CreateLinkage(env.Ctx, engine.LinkageInput{
		SourceType: domain.TypeRequirement, SourceID: r.ID, TargetType: "URL", TargetID: "https://example.com/spec",
		RelationshipType: "Documented_In", ProjectID: "p1",
	})
	require.NoError(t, err)
	require.Equal(t, "url", ext.TargetType)
	require.Equal(t, domain.RelDocumentedIn, ext.RelationshipType)
}

func TestLinkageCRUDAndListing(t *testing.T) {
	env := newTestEnv(t)
	n := env.need(t, "n")
	r1 := env.requirement(t, "r1")
	r2 := env.requirement(t, "r2")
	comp, err := env.Engine.CreateCatalogItem(env.Ctx, domain.CatalogItem{Kind: domain.CatalogComponent, ProjectID: "p1", Name: "Pump"})
	require.NoError(t, err)

	create := func(srcType, src, tgtType, tgt, rel string) domain.Linkage {
		t.Helper()
		l, err := env.Engine.CreateLinkage(env.Ctx, engine.LinkageInput{
			SourceType: srcType, SourceID: src, TargetType: tgtType, TargetID: tgt,
			RelationshipType: rel, ProjectID: "p1",
		})
		require.NoError(t, err)
		return l
	}
	l1 := create(domain.TypeRequirement, r1.ID, domain.TypeNeed, n.ID, domain.RelSatisfies)
	l2 := create(domain.TypeRequirement, r1.ID, domain.TypeComponent, comp.ID, domain.RelAllocatedTo)
	l3 := create(domain.TypeRequirement, r2.ID, domain.TypeNeed, n.ID, domain.RelSatisfies)

	got, err := env.Engine.GetLinkage(env.Ctx, l1.ID)
	require.NoError(t, err)
	require.Equal(t, l1, got)

	bySource, err := env.Engine.ListLinkagesBySource(env.Ctx, "", r1.ID)
	require.NoError(t, err)
	require.Equal(t, []string{l1.ID, l2.ID}, linkageIDs(bySource))

	byTarget, err := env.Engine.ListLinkagesByTarget(env.Ctx, domain.TypeNeed, n.ID)
	require.NoError(t, err)
	require.Equal(t, []string{l1.ID, l3.ID}, linkageIDs(byTarget))

	byRel, err := env.Engine.ListLinkagesBySourceAndType(env.Ctx, r1.ID, domain.RelAllocatedTo)
	require.NoError(t, err)
	require.Equal(t, []string{l2.ID}, linkageIDs(byRel))

	byProject, err := env.Engine.ListLinkagesByProject(env.Ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, []string{l1.ID, l2.ID, l3.ID}, linkageIDs(byProject))

	verifies := domain.RelVerifies
	updated, err := env.Engine.UpdateLinkage(env.Ctx, l3.ID, engine.LinkagePatch{RelationshipType: &verifies})
	require.NoError(t, err)
	require.Equal(t, domain.RelVerifies, updated.RelationshipType)

	missing := "DEMO-SYS-REQ-404"
	_, err = env.Engine.UpdateLinkage(env.Ctx, l3.ID, engine.LinkagePatch{SourceID: &missing})
	require.ErrorIs(t, err, domain.ErrInvalidReference)

	require.NoError(t, env.Engine.DeleteCatalogItem(env.Ctx, domain.CatalogComponent, comp.ID))
	_, err = env.Engine.GetLinkage(env.Ctx, l2.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, env.Engine.DeleteLinkage(env.Ctx, l1.ID))
	require.ErrorIs(t, env.Engine.DeleteLinkage(env.Ctx, l1.ID), domain.ErrNotFound)
}

func TestDeleteArtifactRemovesItsLinkages(t *testing.T) {
	env := newTestEnv(t)
	n := env.need(t, "n")
	r := env.requirement(t, "r")
	for _, in := range []engine.LinkageInput{
		{SourceType: domain.TypeRequirement, SourceID: r.ID, TargetType: domain.TypeNeed, TargetID: n.ID, RelationshipType: domain.RelSatisfies, ProjectID: "p1"},
		{SourceType: domain.TypeNeed, SourceID: n.ID, TargetType: domain.TypeRequirement, TargetID: r.ID, RelationshipType: domain.RelRelatedTo, ProjectID: "p1"},
		{SourceType: "external", SourceID: n.ID, TargetType: "url", TargetID: "https://example.com", RelationshipType: domain.RelRelatedTo, ProjectID: "p1"},
	} {
		_, err := env.Engine.CreateLinkage(env.Ctx, in)
		require.NoError(t, err)
	}
	_, err := env.Engine.CreateComment(env.Ctx, engine.CommentInput{ArtifactID: n.ID, Text: "keep me"})
	require.NoError(t, err)

	require.NoError(t, env.Engine.DeleteArtifact(env.Ctx, domain.TypeNeed, n.ID, "tester"))

	out, err := env.Engine.ListLinkagesBySource(env.Ctx, domain.TypeNeed, n.ID)
	require.NoError(t, err)
	require.Empty(t, out)
	in, err := env.Engine.ListLinkagesByTarget(env.Ctx, domain.TypeNeed, n.ID)
	require.NoError(t, err)
	require.Empty(t, in)
	// same id under another type is a different endpoint
	ext, err := env.Engine.ListLinkagesBySource(env.Ctx, "external", n.ID)
	require.NoError(t, err)
	require.Len(t, ext, 1)

	comments, err := env.Engine.ListComments(env.Ctx, n.ID, nil)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	hist, err := env.Engine.History(env.Ctx, domain.TypeNeed, n.ID)
	require.NoError(t, err)
	require.Equal(t, "ArtifactDeleted", hist[0].Type)

	require.ErrorIs(t, env.Engine.DeleteArtifact(env.Ctx, domain.TypeNeed, n.ID, "tester"), domain.ErrNotFound)
}

func linkageIDs(list []domain.Linkage) []string {
	out := make([]string, 0, len(list))
	for _, l := range list {
		out = append(out, l.ID)
	}
	return out
}
