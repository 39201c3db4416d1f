package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"traceline/internal/domain"
	"traceline/internal/repo"
)

type ProjectInput struct {
	// ID is optional; a uuid is generated when empty.
	ID          string
	Name        string
	Description string
}

func (e Engine) CreateProject(ctx context.Context, in ProjectInput) (domain.Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Project{}, domain.Validation("name", "required")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = newID()
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.ensureProjectFree(ctx, tx, id, name); err != nil {
		return domain.Project{}, err
	}
	p := domain.Project{ID: id, Name: name, Description: in.Description, CreatedAt: e.stamp()}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, classify("insert project", err)
	}
	if err := e.commit(tx); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ensureProjectFree fails with Conflict when the id or the name is taken.
func (e Engine) ensureProjectFree(ctx context.Context, tx *sql.Tx, id, name string) error {
	if _, err := e.Repo.GetProject(ctx, tx, id); err == nil {
		return &domain.ConflictError{Kind: "project", ID: id}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return classify("get project", err)
	}
	if _, err := e.Repo.GetProjectByName(ctx, tx, name); err == nil {
		return &domain.ConflictError{Kind: "project", ID: name, Reason: "name already in use"}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return classify("get project", err)
	}
	return nil
}

func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return e.requireProject(ctx, nil, id)
}

func (e Engine) ListProjects(ctx context.Context) ([]domain.Project, error) {
	list, err := e.Repo.ListProjects(ctx, nil)
	if err != nil {
		return nil, classify("list projects", err)
	}
	return list, nil
}

// UpdateProject renames or redescribes a project. Existing artifact ids keep
// the old name in their prefix.
func (e Engine) UpdateProject(ctx context.Context, id string, name, description *string) (domain.Project, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return domain.Project{}, domain.Validation("name", "must not be blank")
		}
		if other, err := e.Repo.GetProjectByName(ctx, tx, trimmed); err == nil && other.ID != id {
			return domain.Project{}, &domain.ConflictError{Kind: "project", ID: trimmed, Reason: "name already in use"}
		}
		name = &trimmed
	}
	if err := e.Repo.UpdateProject(ctx, tx, id, name, description); err != nil {
		return domain.Project{}, classify("update project", notFound(err, "project", id))
	}
	p, err := e.Repo.GetProject(ctx, tx, id)
	if err != nil {
		return domain.Project{}, classify("get project", err)
	}
	if err := e.commit(tx); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// DeleteProject removes an empty project together with its areas, people,
// catalog items and linkages.
func (e Engine) DeleteProject(ctx context.Context, id string) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.requireProject(ctx, tx, id); err != nil {
		return err
	}
	n, err := e.Repo.CountProjectArtifacts(ctx, tx, id)
	if err != nil {
		return classify("count artifacts", err)
	}
	if n > 0 {
		return &domain.ConflictError{Kind: "project", ID: id, Reason: fmt.Sprintf("still holds %d artifacts", n)}
	}
	if err := e.Repo.DeleteProject(ctx, tx, id); err != nil {
		return classify("delete project", notFound(err, "project", id))
	}
	return e.commit(tx)
}

// resolveArea maps a code or a name onto the canonical area code. Unknown
// values are kept as given.
func (e Engine) resolveArea(ctx context.Context, tx *sql.Tx, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	code, ok, err := e.Repo.ResolveArea(ctx, tx, value)
	if err != nil {
		return "", classify("resolve area", err)
	}
	if ok {
		return code, nil
	}
	return value, nil
}

func (e Engine) CreateArea(ctx context.Context, a domain.Area) (domain.Area, error) {
	a.Code = strings.TrimSpace(a.Code)
	if a.Code == "" {
		return domain.Area{}, domain.Validation("code", "required")
	}
	if strings.ContainsAny(a.Code, " -") {
		return domain.Area{}, domain.Validation("code", "must not contain spaces or dashes")
	}
	if strings.TrimSpace(a.Name) == "" {
		a.Name = a.Code
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Area{}, err
	}
	defer tx.Rollback()
	if a.ProjectID != "" {
		if _, err := e.requireProject(ctx, tx, a.ProjectID); err != nil {
			return domain.Area{}, err
		}
	}
	if _, err := e.Repo.GetArea(ctx, tx, a.Code); err == nil {
		return domain.Area{}, &domain.ConflictError{Kind: "area", ID: a.Code}
	}
	if err := e.Repo.InsertArea(ctx, tx, a); err != nil {
		return domain.Area{}, classify("insert area", err)
	}
	if err := e.commit(tx); err != nil {
		return domain.Area{}, err
	}
	return a, nil
}

func (e Engine) ListAreas(ctx context.Context, projectID string) ([]domain.Area, error) {
	list, err := e.Repo.ListAreas(ctx, nil, projectID)
	if err != nil {
		return nil, classify("list areas", err)
	}
	return list, nil
}

func (e Engine) UpdateArea(ctx context.Context, code string, name, description *string) (domain.Area, error) {
	if err := e.Repo.UpdateArea(ctx, nil, code, name, description); err != nil {
		return domain.Area{}, classify("update area", notFound(err, "area", code))
	}
	a, err := e.Repo.GetArea(ctx, nil, code)
	if err != nil {
		return domain.Area{}, classify("get area", notFound(err, "area", code))
	}
	return a, nil
}

func (e Engine) DeleteArea(ctx context.Context, code string) error {
	if err := e.Repo.DeleteArea(ctx, nil, code); err != nil {
		return classify("delete area", notFound(err, "area", code))
	}
	return nil
}

func (e Engine) CreatePerson(ctx context.Context, p domain.Person) (domain.Person, error) {
	if strings.TrimSpace(p.Name) == "" {
		return domain.Person{}, domain.Validation("name", "required")
	}
	if p.ID == "" {
		p.ID = newID()
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Person{}, err
	}
	defer tx.Rollback()
	if _, err := e.requireProject(ctx, tx, p.ProjectID); err != nil {
		return domain.Person{}, err
	}
	if err := e.Repo.InsertPerson(ctx, tx, p, e.stamp()); err != nil {
		return domain.Person{}, classify("insert person", err)
	}
	if err := e.commit(tx); err != nil {
		return domain.Person{}, err
	}
	return p, nil
}

func (e Engine) GetPerson(ctx context.Context, id string) (domain.Person, error) {
	p, err := e.Repo.GetPerson(ctx, nil, id)
	if err != nil {
		return domain.Person{}, classify("get person", notFound(err, "person", id))
	}
	return p, nil
}

func (e Engine) ListPeople(ctx context.Context, projectID string) ([]domain.Person, error) {
	list, err := e.Repo.ListPeople(ctx, nil, projectID)
	if err != nil {
		return nil, classify("list people", err)
	}
	return list, nil
}

func (e Engine) UpdatePerson(ctx context.Context, id string, name, description *string, roles *[]string) (domain.Person, error) {
	if name != nil && strings.TrimSpace(*name) == "" {
		return domain.Person{}, domain.Validation("name", "required")
	}
	if err := e.Repo.UpdatePerson(ctx, nil, id, name, description, roles); err != nil {
		return domain.Person{}, classify("update person", notFound(err, "person", id))
	}
	return e.GetPerson(ctx, id)
}

func (e Engine) DeletePerson(ctx context.Context, id string) error {
	if err := e.Repo.DeletePerson(ctx, nil, id); err != nil {
		return classify("delete person", notFound(err, "person", id))
	}
	return nil
}

func (e Engine) CreateCatalogItem(ctx context.Context, item domain.CatalogItem) (domain.CatalogItem, error) {
	item.Kind = strings.ToLower(strings.TrimSpace(item.Kind))
	if _, ok := domain.CatalogTable(item.Kind); !ok {
		return domain.CatalogItem{}, domain.Validation("kind", fmt.Sprintf("unknown catalog kind %q", item.Kind))
	}
	if strings.TrimSpace(item.Name) == "" {
		return domain.CatalogItem{}, domain.Validation("name", "required")
	}
	if err := normalizeCatalogItem(&item); err != nil {
		return domain.CatalogItem{}, err
	}
	if item.ID == "" {
		item.ID = newID()
	}
	item.CreatedAt = e.stamp()
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	defer tx.Rollback()
	if _, err := e.requireProject(ctx, tx, item.ProjectID); err != nil {
		return domain.CatalogItem{}, err
	}
	if err := e.Repo.InsertCatalogItem(ctx, tx, item); err != nil {
		return domain.CatalogItem{}, classify("insert "+item.Kind, err)
	}
	if err := e.commit(tx); err != nil {
		return domain.CatalogItem{}, err
	}
	return item, nil
}

// normalizeCatalogItem canonicalizes the type of components and diagrams,
// defaulting it when empty, and clears fields the kind does not carry.
func normalizeCatalogItem(item *domain.CatalogItem) error {
	item.Kind = strings.ToLower(strings.TrimSpace(item.Kind))
	allowed := domain.CatalogTypes(item.Kind)
	if allowed == nil {
		item.Type = ""
	} else if strings.TrimSpace(item.Type) == "" {
		item.Type = allowed[0]
	} else {
		t, ok := domain.CanonicalChoice(item.Type, allowed)
		if !ok {
			return domain.Validation("type", "must be one of "+strings.Join(allowed, ", "))
		}
		item.Type = t
	}
	if item.Kind != domain.CatalogDiagram {
		item.Content = ""
	}
	return nil
}

// UpdateCatalogItem applies the non-nil fields of patch.
func (e Engine) UpdateCatalogItem(ctx context.Context, kind, id string, patch repo.CatalogPatch) (domain.CatalogItem, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if _, ok := domain.CatalogTable(kind); !ok {
		return domain.CatalogItem{}, domain.Validation("kind", fmt.Sprintf("unknown catalog kind %q", kind))
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return domain.CatalogItem{}, domain.Validation("name", "required")
	}
	if patch.Type != nil {
		allowed := domain.CatalogTypes(kind)
		if allowed == nil {
			return domain.CatalogItem{}, domain.Validation("type", kind+" has no type")
		}
		t, ok := domain.CanonicalChoice(*patch.Type, allowed)
		if !ok {
			return domain.CatalogItem{}, domain.Validation("type", "must be one of "+strings.Join(allowed, ", "))
		}
		patch.Type = &t
	}
	if patch.Content != nil && kind != domain.CatalogDiagram {
		return domain.CatalogItem{}, domain.Validation("content", kind+" has no content")
	}
	if err := e.Repo.UpdateCatalogItem(ctx, nil, kind, id, patch); err != nil {
		return domain.CatalogItem{}, classify("update "+kind, notFound(err, kind, id))
	}
	return e.GetCatalogItem(ctx, kind, id)
}

func (e Engine) GetCatalogItem(ctx context.Context, kind, id string) (domain.CatalogItem, error) {
	item, err := e.Repo.GetCatalogItem(ctx, nil, kind, id)
	if err != nil {
		return domain.CatalogItem{}, classify("get "+kind, notFound(err, kind, id))
	}
	return item, nil
}

func (e Engine) ListCatalogItems(ctx context.Context, kind, projectID string) ([]domain.CatalogItem, error) {
	list, err := e.Repo.ListCatalogItems(ctx, nil, kind, projectID)
	if err != nil {
		return nil, classify("list "+kind, err)
	}
	return list, nil
}

// DeleteCatalogItem removes the item and its association rows. Components
// and diagrams are linkage endpoints, so their linkages go too.
func (e Engine) DeleteCatalogItem(ctx context.Context, kind, id string) error {
	kind = strings.ToLower(strings.TrimSpace(kind))
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if kind == domain.TypeComponent || kind == domain.TypeDiagram {
		if _, err := e.Repo.DeleteEndpointLinkages(ctx, tx, kind, id); err != nil {
			return classify("delete linkages", err)
		}
	}
	if err := e.Repo.DeleteCatalogItem(ctx, tx, kind, id); err != nil {
		return classify("delete "+kind, notFound(err, kind, id))
	}
	return e.commit(tx)
}
