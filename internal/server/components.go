package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"traceline/internal/domain"
	"traceline/internal/engine"
)

type componentLinksOutput struct {
	Body []domain.ComponentLink `json:"body"`
}

type diagramLayoutOutput struct {
	Body domain.DiagramLayout `json:"body"`
}

func registerComponents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "link-component",
		Method:      http.MethodPost,
		Path:        "/components/{id}/link",
		Summary:     "Place a child component under this one, or update the existing link",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body LinkComponentRequest `json:"body"`
	}) (*struct {
		Body domain.ComponentLink `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permWrite); err != nil {
			return nil, handleError(err)
		}
		l, err := e.LinkComponents(ctx, domain.ComponentLink{
			ParentID:    input.ID,
			ChildID:     input.Body.ChildID,
			Cardinality: input.Body.Cardinality,
			Type:        input.Body.Type,
			Protocol:    input.Body.Protocol,
			DataItems:   input.Body.DataItems,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ComponentLink `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "unlink-component",
		Method:        http.MethodDelete,
		Path:          "/components/{id}/link/{child_id}",
		Summary:       "Remove a child component link",
		DefaultStatus: http.StatusNoContent,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		ChildID string `path:"child_id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, permDelete); err != nil {
			return nil, handleError(err)
		}
		if err := e.UnlinkComponents(ctx, input.ID, input.ChildID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-component-children",
		Method:      http.MethodGet,
		Path:        "/components/{id}/children",
		Summary:     "List child components",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*componentLinksOutput, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		list, err := e.ComponentChildren(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &componentLinksOutput{Body: nonNil(list)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-component-parents",
		Method:      http.MethodGet,
		Path:        "/components/{id}/parents",
		Summary:     "List the links placing this component under others",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*componentLinksOutput, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		list, err := e.ComponentParents(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &componentLinksOutput{Body: nonNil(list)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-diagram-layout",
		Method:      http.MethodGet,
		Path:        "/diagrams/{id}/layout",
		Summary:     "Get a diagram with its placed components and edges",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*diagramLayoutOutput, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		layout, err := e.DiagramLayout(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &diagramLayoutOutput{Body: layout}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "place-diagram-component",
		Method:      http.MethodPut,
		Path:        "/diagrams/{id}/components/{component_id}",
		Summary:     "Add a component to a diagram or move it",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID          string                `path:"id"`
		ComponentID string                `path:"component_id"`
		Body        PlaceComponentRequest `json:"body"`
	}) (*diagramLayoutOutput, error) {
		if err := requirePermission(ctx, permWrite); err != nil {
			return nil, handleError(err)
		}
		layout, err := e.PlaceComponent(ctx, domain.DiagramComponent{
			DiagramID:   input.ID,
			ComponentID: input.ComponentID,
			X:           input.Body.X,
			Y:           input.Body.Y,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &diagramLayoutOutput{Body: layout}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-diagram-component",
		Method:        http.MethodDelete,
		Path:          "/diagrams/{id}/components/{component_id}",
		Summary:       "Remove a component and its edges from a diagram",
		DefaultStatus: http.StatusNoContent,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID          string `path:"id"`
		ComponentID string `path:"component_id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, permDelete); err != nil {
			return nil, handleError(err)
		}
		if err := e.RemoveDiagramComponent(ctx, input.ID, input.ComponentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-diagram-edge",
		Method:      http.MethodPut,
		Path:        "/diagrams/{id}/edges",
		Summary:     "Connect two placed components or update the edge handles",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body DiagramEdgeRequest `json:"body"`
	}) (*diagramLayoutOutput, error) {
		if err := requirePermission(ctx, permWrite); err != nil {
			return nil, handleError(err)
		}
		layout, err := e.SetDiagramEdge(ctx, domain.DiagramEdge{
			DiagramID:    input.ID,
			SourceID:     input.Body.SourceID,
			TargetID:     input.Body.TargetID,
			SourceHandle: input.Body.SourceHandle,
			TargetHandle: input.Body.TargetHandle,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &diagramLayoutOutput{Body: layout}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-diagram-edge",
		Method:        http.MethodDelete,
		Path:          "/diagrams/{id}/edges/{source_id}/{target_id}",
		Summary:       "Remove a diagram edge",
		DefaultStatus: http.StatusNoContent,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID       string `path:"id"`
		SourceID string `path:"source_id"`
		TargetID string `path:"target_id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, permDelete); err != nil {
			return nil, handleError(err)
		}
		if err := e.RemoveDiagramEdge(ctx, input.ID, input.SourceID, input.TargetID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
