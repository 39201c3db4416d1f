package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"traceline/internal/domain"
	"traceline/internal/engine"
	"traceline/internal/repo"
)

const (
	permRead         = "artifact:read"
	permWrite        = "artifact:write"
	permDelete       = "artifact:delete"
	permRename       = "artifact:rename"
	permReview       = "artifact:review"
	permComment      = "comment:write"
	permUpload       = "file:upload"
	permProjectAdmin = "project:admin"
	permBackup       = "db:backup"
	permUserAdmin    = "user:admin"
)

type projectPath struct {
	ProjectID string `path:"project_id"`
}

type projectQuery struct {
	ProjectID string `query:"project_id"`
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permProjectAdmin); err != nil {
			return nil, handleError(err)
		}
		p, err := e.CreateProject(ctx, engine.ProjectInput{
			ID:          input.Body.ID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      errorStatuses,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: nonNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		p, err := e.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permProjectAdmin); err != nil {
			return nil, handleError(err)
		}
		p, err := e.UpdateProject(ctx, input.ProjectID, input.Body.Name, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete project without artifacts",
		DefaultStatus: http.StatusNoContent,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *projectPath) (*struct{}, error) {
		if err := requirePermission(ctx, permProjectAdmin); err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-stats",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stats",
		Summary:     "Artifact counts by type, status and area",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body domain.Stats `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		stats, err := e.Stats(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Stats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/export",
		Summary:     "Export project as a versioned JSON document",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *projectPath) (*struct {
		Disposition string `header:"Content-Disposition"`
		Body        engine.ExportData
	}, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		data, err := e.ExportProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Disposition string `header:"Content-Disposition"`
			Body        engine.ExportData
		}{
			Disposition: `attachment; filename="` + data.Project.Name + `.json"`,
			Body:        data,
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "import-project",
		Method:        http.MethodPost,
		Path:          "/projects/import",
		Summary:       "Import an exported project",
		DefaultStatus: http.StatusCreated,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		RawBody []byte `contentType:"application/json"`
	}) (*struct {
		Body engine.ImportResult `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permProjectAdmin); err != nil {
			return nil, handleError(err)
		}
		var data engine.ExportData
		if err := json.Unmarshal(input.RawBody, &data); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid export document", map[string]any{"error": err.Error()})
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ImportProject(ctx, data, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ImportResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerAreas(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-area",
		Method:        http.MethodPost,
		Path:          "/areas",
		Summary:       "Create area",
		DefaultStatus: http.StatusCreated,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		Body CreateAreaRequest `json:"body"`
	}) (*struct {
		Body domain.Area `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permWrite); err != nil {
			return nil, handleError(err)
		}
		a, err := e.CreateArea(ctx, domain.Area{
			Code:        input.Body.Code,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			ProjectID:   input.Body.ProjectID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Area `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-areas",
		Method:      http.MethodGet,
		Path:        "/areas",
		Summary:     "List areas",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *projectQuery) (*struct {
		Body []domain.Area `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListAreas(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Area `json:"body"`
		}{Body: nonNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-area",
		Method:      http.MethodPatch,
		Path:        "/areas/{code}",
		Summary:     "Update area",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		Code string            `path:"code"`
		Body UpdateAreaRequest `json:"body"`
	}) (*struct {
		Body domain.Area `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permWrite); err != nil {
			return nil, handleError(err)
		}
		a, err := e.UpdateArea(ctx, input.Code, input.Body.Name, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Area `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-area",
		Method:        http.MethodDelete,
		Path:          "/areas/{code}",
		Summary:       "Delete area",
		DefaultStatus: http.StatusNoContent,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		Code string `path:"code"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, permDelete); err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteArea(ctx, input.Code); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerPeople(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-person",
		Method:        http.MethodPost,
		Path:          "/people",
		Summary:       "Create person",
		DefaultStatus: http.StatusCreated,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		Body CreatePersonRequest `json:"body"`
	}) (*struct {
		Body domain.Person `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permWrite); err != nil {
			return nil, handleError(err)
		}
		p, err := e.CreatePerson(ctx, domain.Person{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			ProjectID:   input.Body.ProjectID,
			Roles:       input.Body.Roles,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Person `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-people",
		Method:      http.MethodGet,
		Path:        "/people",
		Summary:     "List people",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *projectQuery) (*struct {
		Body []domain.Person `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListPeople(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Person `json:"body"`
		}{Body: nonNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-person",
		Method:      http.MethodGet,
		Path:        "/people/{id}",
		Summary:     "Get person",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Person `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		p, err := e.GetPerson(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Person `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-person",
		Method:      http.MethodPatch,
		Path:        "/people/{id}",
		Summary:     "Update person",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdatePersonRequest `json:"body"`
	}) (*struct {
		Body domain.Person `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permWrite); err != nil {
			return nil, handleError(err)
		}
		p, err := e.UpdatePerson(ctx, input.ID, input.Body.Name, input.Body.Description, input.Body.Roles)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Person `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-person",
		Method:        http.MethodDelete,
		Path:          "/people/{id}",
		Summary:       "Delete person",
		DefaultStatus: http.StatusNoContent,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, permDelete); err != nil {
			return nil, handleError(err)
		}
		if err := e.DeletePerson(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerCatalog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-catalog-item",
		Method:        http.MethodPost,
		Path:          "/catalog/{kind}",
		Summary:       "Create site, component, diagram, precondition, postcondition or exception",
		DefaultStatus: http.StatusCreated,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		Kind string `path:"kind" enum:"site,component,diagram,precondition,postcondition,exception"`
		Body CreateCatalogItemRequest `json:"body"`
	}) (*struct {
		Body domain.CatalogItem `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permWrite); err != nil {
			return nil, handleError(err)
		}
		item, err := e.CreateCatalogItem(ctx, domain.CatalogItem{
			ID:          input.Body.ID,
			Kind:        input.Kind,
			ProjectID:   input.Body.ProjectID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Type:        input.Body.Type,
			Content:     input.Body.Content,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CatalogItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-catalog-items",
		Method:      http.MethodGet,
		Path:        "/catalog/{kind}",
		Summary:     "List catalog items of a kind",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		Kind string `path:"kind" enum:"site,component,diagram,precondition,postcondition,exception"`
		ProjectID string `query:"project_id"`
	}) (*struct {
		Body []domain.CatalogItem `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListCatalogItems(ctx, input.Kind, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.CatalogItem `json:"body"`
		}{Body: nonNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-catalog-item",
		Method:      http.MethodGet,
		Path:        "/catalog/{kind}/{id}",
		Summary:     "Get catalog item",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		Kind string `path:"kind" enum:"site,component,diagram,precondition,postcondition,exception"`
		ID string `path:"id"`
	}) (*struct {
		Body domain.CatalogItem `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		item, err := e.GetCatalogItem(ctx, input.Kind, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CatalogItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-catalog-item",
		Method:      http.MethodPatch,
		Path:        "/catalog/{kind}/{id}",
		Summary:     "Update catalog item",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		Kind string                   `path:"kind" enum:"site,component,diagram,precondition,postcondition,exception"`
		ID   string                   `path:"id"`
		Body UpdateCatalogItemRequest `json:"body"`
	}) (*struct {
		Body domain.CatalogItem `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permWrite); err != nil {
			return nil, handleError(err)
		}
		item, err := e.UpdateCatalogItem(ctx, input.Kind, input.ID, repo.CatalogPatch{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Type:        input.Body.Type,
			Content:     input.Body.Content,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CatalogItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-catalog-item",
		Method:        http.MethodDelete,
		Path:          "/catalog/{kind}/{id}",
		Summary:       "Delete catalog item and, for components and diagrams, their linkages",
		DefaultStatus: http.StatusNoContent,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		Kind string `path:"kind" enum:"site,component,diagram,precondition,postcondition,exception"`
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, permDelete); err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteCatalogItem(ctx, input.Kind, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
