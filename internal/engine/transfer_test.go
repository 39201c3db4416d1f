package engine_test

import (
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"traceline/internal/domain"
	"traceline/internal/engine"
)

func seedProject(t *testing.T, env testEnv) {
	t.Helper()
	person, err := env.Engine.CreatePerson(env.Ctx, domain.Person{ProjectID: "p1", Name: "Operator", Roles: []string{"actor"}})
	require.NoError(t, err)
	pre, err := env.Engine.CreateCatalogItem(env.Ctx, domain.CatalogItem{Kind: domain.CatalogPrecondition, ProjectID: "p1", Name: "Powered"})
	require.NoError(t, err)
	n := env.need(t, "n")
	uc, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactInput{
		Type: domain.TypeUseCase, ProjectID: "p1", ParentID: n.ID,
		Fields:    map[string]string{"title": "start", "mss": `["press start"]`},
		Relations: map[string][]string{"precondition_ids": {pre.ID}, "stakeholder_ids": {person.ID}},
	})
	require.NoError(t, err)
	r := env.requirement(t, "r")
	_, err = env.Engine.UpdateArtifact(env.Ctx, engine.UpdateArtifactInput{Type: domain.TypeRequirement, ID: r.ID, ParentID: &uc.ID})
	require.NoError(t, err)
	_, err = env.transition(t, r.ID, domain.StatusReadyForReview)
	require.NoError(t, err)
	_, err = env.Engine.CreateComment(env.Ctx, engine.CommentInput{ArtifactID: r.ID, Text: "tighten wording", FieldName: "text"})
	require.NoError(t, err)
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestEnv(t)
	seedProject(t, src)
	data, err := src.Engine.ExportProject(src.Ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, engine.ExportVersion, data.Version)
	require.Len(t, data.Artifacts, 3)
	require.Len(t, data.Linkages, 2)
	require.Len(t, data.Comments, 1)
	require.Len(t, data.People, 1)
	require.Len(t, data.Catalog, 1)

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	var decoded engine.ExportData
	require.NoError(t, json.Unmarshal(raw, &decoded))

	dst := newTestEnv(t)
	_, err = dst.Engine.ImportProject(dst.Ctx, decoded, "tester")
	require.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, dst.Engine.DeleteProject(dst.Ctx, "p1"))
	res, err := dst.Engine.ImportProject(dst.Ctx, decoded, "tester")
	require.NoError(t, err)
	require.Equal(t, 3, res.Artifacts)
	require.Equal(t, 2, res.Linkages)
	require.Equal(t, len(data.Events), res.Events)

	uc, err := dst.Engine.GetArtifact(dst.Ctx, domain.TypeUseCase, "DEMO-SYS-UC-001")
	require.NoError(t, err)
	require.Equal(t, "DEMO-SYS-NEED-001", uc.ParentID)
	require.Len(t, uc.Relations["stakeholder_ids"], 1)
	req, err := dst.Engine.GetArtifact(dst.Ctx, domain.TypeRequirement, "DEMO-SYS-REQ-001")
	require.NoError(t, err)
	require.Equal(t, domain.StatusReadyForReview, req.Status)
	require.Equal(t, "DEMO-SYS-UC-001", req.ParentID)

	hist, err := dst.Engine.History(dst.Ctx, domain.TypeRequirement, req.ID)
	require.NoError(t, err)
	require.NotEmpty(t, hist)

	// the imported ids are respected by the generator
	require.Equal(t, "DEMO-SYS-REQ-002", dst.requirement(t, "next").ID)
}

func TestImportIsAllOrNothing(t *testing.T) {
	src := newTestEnv(t)
	seedProject(t, src)
	data, err := src.Engine.ExportProject(src.Ctx, "p1")
	require.NoError(t, err)

	dst := newTestEnv(t)
	data.Project.ID = "p2"
	data.Project.Name = "OTHER"
	// the artifact ids collide with nothing, but a linkage id is duplicated
	data.Linkages = append(data.Linkages, data.Linkages[0])
	_, err = dst.Engine.ImportProject(dst.Ctx, data, "tester")
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = dst.Engine.GetProject(dst.Ctx, "p2")
	require.ErrorIs(t, err, domain.ErrNotFound)
	list, err := dst.Engine.ListArtifacts(dst.Ctx, domain.TypeNeed, engine.ArtifactQuery{SelectAll: true})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestExportImportCarriesComponentLayout(t *testing.T) {
	src := newTestEnv(t)
	rover := src.component(t, "Rover", "Hardware")
	nav := src.component(t, "Navigation", "Software")
	_, err := src.Engine.LinkComponents(src.Ctx, domain.ComponentLink{ParentID: rover.ID, ChildID: nav.ID, Cardinality: "1", Protocol: "CAN"})
	require.NoError(t, err)
	d, err := src.Engine.CreateCatalogItem(src.Ctx, domain.CatalogItem{Kind: domain.CatalogDiagram, ProjectID: "p1", Name: "Context"})
	require.NoError(t, err)
	for i, c := range []domain.CatalogItem{rover, nav} {
		_, err = src.Engine.PlaceComponent(src.Ctx, domain.DiagramComponent{DiagramID: d.ID, ComponentID: c.ID, X: i * 100})
		require.NoError(t, err)
	}
	_, err = src.Engine.SetDiagramEdge(src.Ctx, domain.DiagramEdge{DiagramID: d.ID, SourceID: rover.ID, TargetID: nav.ID, SourceHandle: "bottom"})
	require.NoError(t, err)

	data, err := src.Engine.ExportProject(src.Ctx, "p1")
	require.NoError(t, err)
	require.Len(t, data.ComponentLinks, 1)
	require.Len(t, data.DiagramComponents, 2)
	require.Len(t, data.DiagramEdges, 1)

	dst := newTestEnv(t)
	require.NoError(t, dst.Engine.DeleteProject(dst.Ctx, "p1"))
	_, err = dst.Engine.ImportProject(dst.Ctx, data, "tester")
	require.NoError(t, err)

	children, err := dst.Engine.ComponentChildren(dst.Ctx, rover.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, "CAN", children[0].Protocol)
	got, err := dst.Engine.GetCatalogItem(dst.Ctx, domain.CatalogComponent, rover.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ComponentHardware, got.Type)
	layout, err := dst.Engine.DiagramLayout(dst.Ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, layout.Components, 2)
	require.Len(t, layout.Edges, 1)
	require.Equal(t, "bottom", layout.Edges[0].SourceHandle)
}

func TestImportRejectsInvalidArtifacts(t *testing.T) {
	src := newTestEnv(t)
	seedProject(t, src)
	data, err := src.Engine.ExportProject(src.Ctx, "p1")
	require.NoError(t, err)
	dst := newTestEnv(t)
	require.NoError(t, dst.Engine.DeleteProject(dst.Ctx, "p1"))

	bad := data
	bad.Artifacts = append([]domain.Artifact(nil), data.Artifacts...)
	bad.Artifacts[0].Status = "Shipped"
	_, err = dst.Engine.ImportProject(dst.Ctx, bad, "tester")
	require.ErrorIs(t, err, domain.ErrValidation)

	bad.Artifacts[0].Status = data.Artifacts[0].Status
	bad.Artifacts[0].Fields = map[string]string{"colour": "red"}
	_, err = dst.Engine.ImportProject(dst.Ctx, bad, "tester")
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = dst.Engine.GetProject(dst.Ctx, "p1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	bad.Artifacts[0] = data.Artifacts[0]
	for i, a := range bad.Artifacts {
		if a.Type == domain.TypeRequirement {
			bad.Artifacts[i].Status = "ready_for_review"
		}
	}
	_, err = dst.Engine.ImportProject(dst.Ctx, bad, "tester")
	require.NoError(t, err)
	req, err := dst.Engine.GetArtifact(dst.Ctx, domain.TypeRequirement, "DEMO-SYS-REQ-001")
	require.NoError(t, err)
	require.Equal(t, domain.StatusReadyForReview, req.Status)
}

func TestBackupAndRestore(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env)
	b, err := env.Engine.CreateBackup(env.Ctx)
	require.NoError(t, err)
	require.Equal(t, "traceline_20240101_000000.json", b.Name)
	require.Positive(t, b.Size)

	list, err := env.Engine.ListBackups(env.Ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, b.Name, list[0].Name)

	res, err := env.Engine.RestoreBackup(env.Ctx, b.Name, "tester")
	require.NoError(t, err)
	require.Equal(t, []string{"DEMO"}, res.Skipped)
	require.Empty(t, res.Restored)

	_, err = env.Engine.RestoreBackup(env.Ctx, "traceline_19990101_000000.json", "tester")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRestoreIntoAnotherDatabase(t *testing.T) {
	src := newTestEnv(t)
	seedProject(t, src)
	b, err := src.Engine.CreateBackup(src.Ctx)
	require.NoError(t, err)

	dst := newTestEnv(t)
	dst.Engine.Blobs = src.Engine.Blobs
	require.NoError(t, dst.Engine.DeleteProject(dst.Ctx, "p1"))
	_, err = dst.Engine.CreateProject(dst.Ctx, engine.ProjectInput{ID: "p9", Name: "Spare"})
	require.NoError(t, err)

	res, err := dst.Engine.RestoreBackup(dst.Ctx, b.Name, "tester")
	require.NoError(t, err)
	require.Equal(t, []string{"DEMO"}, res.Restored)
	got, err := dst.Engine.GetArtifact(dst.Ctx, domain.TypeRequirement, "DEMO-SYS-REQ-001")
	require.NoError(t, err)
	require.Equal(t, domain.StatusReadyForReview, got.Status)

	projects, err := dst.Engine.ListProjects(dst.Ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
}

func TestUploadAndOpenFile(t *testing.T) {
	env := newTestEnv(t)
	obj, err := env.Engine.UploadFile(env.Ctx, "../Design Notes.pdf", strings.NewReader("pdf bytes"), 9, "application/pdf")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(obj.Key, "uploads/"))
	require.True(t, strings.HasSuffix(obj.Key, "-Design_Notes.pdf"))

	rc, info, err := env.Engine.OpenFile(env.Ctx, obj.Key)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "pdf bytes", string(body))
	require.EqualValues(t, 9, info.Size)

	_, _, err = env.Engine.OpenFile(env.Ctx, "uploads/missing.pdf")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.Engine.UploadFile(env.Ctx, "..", strings.NewReader(""), 0, "")
	require.ErrorIs(t, err, domain.ErrValidation)
}
