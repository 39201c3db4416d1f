package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"traceline/internal/domain"
	"traceline/internal/engine"
)

type linkageListOutput struct {
	Body []domain.Linkage `json:"body"`
}

func linkageList(items []domain.Linkage, err error) (*linkageListOutput, error) {
	if err != nil {
		return nil, handleError(err)
	}
	return &linkageListOutput{Body: nonNil(items)}, nil
}

func registerLinkages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-linkage",
		Method:        http.MethodPost,
		Path:          "/linkages",
		Summary:       "Create linkage",
		DefaultStatus: http.StatusCreated,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		Body CreateLinkageRequest `json:"body"`
	}) (*struct {
		Body domain.Linkage `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		l, err := e.CreateLinkage(ctx, engine.LinkageInput{
			SourceType:       input.Body.SourceType,
			SourceID:         input.Body.SourceID,
			TargetType:       input.Body.TargetType,
			TargetID:         input.Body.TargetID,
			RelationshipType: input.Body.RelationshipType,
			ProjectID:        input.Body.ProjectID,
			ActorID:          actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Linkage `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-linkages",
		Method:      http.MethodGet,
		Path:        "/linkages",
		Summary:     "List linkages matching every given filter",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ProjectID        string `query:"project_id"`
		SourceType       string `query:"source_type"`
		SourceID         string `query:"source_id"`
		TargetType       string `query:"target_type"`
		TargetID         string `query:"target_id"`
		RelationshipType string `query:"relationship_type"`
	}) (*linkageListOutput, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		return linkageList(e.ListLinkages(ctx, engine.LinkageQuery{
			ProjectID:    input.ProjectID,
			SourceType:   input.SourceType,
			SourceID:     input.SourceID,
			TargetType:   input.TargetType,
			TargetID:     input.TargetID,
			Relationship: input.RelationshipType,
		}))
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-linkages",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/linkages",
		Summary:     "List linkages of a project",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *projectPath) (*linkageListOutput, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		return linkageList(e.ListLinkagesByProject(ctx, input.ProjectID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-linkages-by-source",
		Method:      http.MethodGet,
		Path:        "/linkages/source/{source_id}",
		Summary:     "List linkages leaving an entity",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		SourceID   string `path:"source_id"`
		SourceType string `query:"source_type"`
	}) (*linkageListOutput, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		return linkageList(e.ListLinkagesBySource(ctx, input.SourceType, input.SourceID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-outgoing-linkages",
		Method:      http.MethodGet,
		Path:        "/linkages/outgoing/{source_id}",
		Summary:     "List linkages leaving an entity of any type",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		SourceID string `path:"source_id"`
	}) (*linkageListOutput, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		return linkageList(e.ListLinkagesBySource(ctx, "", input.SourceID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-linkages-by-source-and-type",
		Method:      http.MethodGet,
		Path:        "/linkages/source/{source_id}/{relationship_type}",
		Summary:     "List linkages leaving an entity with one relationship type",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		SourceID         string `path:"source_id"`
		RelationshipType string `path:"relationship_type"`
	}) (*linkageListOutput, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		return linkageList(e.ListLinkagesBySourceAndType(ctx, input.SourceID, input.RelationshipType))
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-linkages-by-target",
		Method:      http.MethodGet,
		Path:        "/linkages/target/{target_id}",
		Summary:     "List linkages arriving at an entity",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		TargetID   string `path:"target_id"`
		TargetType string `query:"target_type"`
	}) (*linkageListOutput, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		return linkageList(e.ListLinkagesByTarget(ctx, input.TargetType, input.TargetID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-linkage",
		Method:      http.MethodGet,
		Path:        "/linkages/{id}",
		Summary:     "Get linkage",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Linkage `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		l, err := e.GetLinkage(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Linkage `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-linkage",
		Method:      http.MethodPatch,
		Path:        "/linkages/{id}",
		Summary:     "Update linkage",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateLinkageRequest `json:"body"`
	}) (*struct {
		Body domain.Linkage `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permWrite); err != nil {
			return nil, handleError(err)
		}
		l, err := e.UpdateLinkage(ctx, input.ID, engine.LinkagePatch{
			SourceType:       input.Body.SourceType,
			SourceID:         input.Body.SourceID,
			TargetType:       input.Body.TargetType,
			TargetID:         input.Body.TargetID,
			RelationshipType: input.Body.RelationshipType,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Linkage `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-linkage",
		Method:        http.MethodDelete,
		Path:          "/linkages/{id}",
		Summary:       "Delete linkage",
		DefaultStatus: http.StatusNoContent,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, permDelete); err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteLinkage(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
