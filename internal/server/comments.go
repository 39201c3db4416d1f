package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"traceline/internal/domain"
	"traceline/internal/engine"
)

type commentPath struct {
	ID string `path:"id"`
}

type commentOutput struct {
	Body domain.Comment `json:"body"`
}

func registerComments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-comment",
		Method:        http.MethodPost,
		Path:          "/comments",
		Summary:       "Comment on an artifact",
		DefaultStatus: http.StatusCreated,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		Body CreateCommentRequest `json:"body"`
	}) (*commentOutput, error) {
		if err := requirePermission(ctx, permComment); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateComment(ctx, engine.CommentInput{
			ArtifactID:   input.Body.ArtifactID,
			FieldName:    input.Body.FieldName,
			Text:         input.Body.Text,
			Author:       actorID,
			SelectedText: input.Body.SelectedText,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &commentOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/artifacts/{artifact_id}/comments",
		Summary:     "List comments of an artifact",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ArtifactID string `path:"artifact_id"`
		Resolved   string `query:"resolved" doc:"true or false; empty lists both"`
	}) (*struct {
		Body []domain.Comment `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		var resolved *bool
		if input.Resolved != "" {
			v, err := strconv.ParseBool(input.Resolved)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "resolved must be true or false", nil)
			}
			resolved = &v
		}
		items, err := e.ListComments(ctx, input.ArtifactID, resolved)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Comment `json:"body"`
		}{Body: nonNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-comment",
		Method:      http.MethodGet,
		Path:        "/comments/{id}",
		Summary:     "Get comment",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *commentPath) (*commentOutput, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		c, err := e.GetComment(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &commentOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-comment",
		Method:      http.MethodPost,
		Path:        "/comments/{id}/resolve",
		Summary:     "Resolve comment",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body ResolveCommentRequest `json:"body" required:"false"`
	}) (*commentOutput, error) {
		if err := requirePermission(ctx, permComment); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ResolveComment(ctx, input.ID, actorID, input.Body.Action)
		if err != nil {
			return nil, handleError(err)
		}
		return &commentOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unresolve-comment",
		Method:      http.MethodPost,
		Path:        "/comments/{id}/unresolve",
		Summary:     "Reopen comment",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *commentPath) (*commentOutput, error) {
		if err := requirePermission(ctx, permComment); err != nil {
			return nil, handleError(err)
		}
		c, err := e.UnresolveComment(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &commentOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-comment",
		Method:        http.MethodDelete,
		Path:          "/comments/{id}",
		Summary:       "Delete comment",
		DefaultStatus: http.StatusNoContent,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *commentPath) (*struct{}, error) {
		if err := requirePermission(ctx, permComment); err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteComment(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
