package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"traceline/internal/domain"
	"traceline/internal/engine"
)

// artifactRoutes maps each artifact type onto its collection path.
var artifactRoutes = []struct {
	Type    string
	Segment string
	Name    string
}{
	{domain.TypeVision, "visions", "vision"},
	{domain.TypeNeed, "needs", "need"},
	{domain.TypeUseCase, "use-cases", "use-case"},
	{domain.TypeRequirement, "requirements", "requirement"},
	{domain.TypeDocument, "documents", "document"},
}

type artifactPath struct {
	ID string `path:"id"`
}

type artifactListInput struct {
	ProjectID string `query:"project_id"`
	Area      string `query:"area" doc:"comma separated area codes"`
	Status    string `query:"status" doc:"comma separated statuses, any casing"`
	Owner     string `query:"owner"`
	Search    string `query:"q" doc:"case-insensitive substring of the searchable text fields"`
	Level     string `query:"level"`
	EARSType  string `query:"ears_type"`
	SelectAll bool   `query:"select_all" doc:"ignore status and type specific filters"`
}

func (in artifactListInput) query() engine.ArtifactQuery {
	q := engine.ArtifactQuery{
		ProjectID: in.ProjectID,
		Areas:     splitList(in.Area),
		Statuses:  splitList(in.Status),
		Owner:     in.Owner,
		Search:    in.Search,
		SelectAll: in.SelectAll,
	}
	extra := map[string][]string{}
	if v := splitList(in.Level); len(v) > 0 {
		extra["level"] = v
	}
	if v := splitList(in.EARSType); len(v) > 0 {
		extra["ears_type"] = v
	}
	if len(extra) > 0 {
		q.Extra = extra
	}
	return q
}

func registerArtifacts(api huma.API, e engine.Engine) {
	for _, route := range artifactRoutes {
		registerArtifactType(api, e, route.Type, "/"+route.Segment, route.Name)
	}

	huma.Register(api, huma.Operation{
		OperationID: "preview-id",
		Method:      http.MethodGet,
		Path:        "/ids/preview",
		Summary:     "Identifier the next create would receive",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		Type      string `query:"type" required:"true"`
		ProjectID string `query:"project_id" required:"true"`
		Area      string `query:"area"`
	}) (*struct {
		Body PreviewIDResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		id, err := e.PreviewID(ctx, input.Type, input.ProjectID, input.Area)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PreviewIDResponse `json:"body"`
		}{Body: PreviewIDResponse{ID: id}}, nil
	})
}

func registerArtifactType(api huma.API, e engine.Engine, artifactType, base, name string) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-" + name,
		Method:        http.MethodPost,
		Path:          base,
		Summary:       "Create " + name,
		Tags:          []string{name},
		DefaultStatus: http.StatusCreated,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		Body CreateArtifactRequest `json:"body"`
	}) (*struct {
		Body domain.Artifact `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateArtifact(ctx, engine.CreateArtifactInput{
			Type:      artifactType,
			ProjectID: input.Body.ProjectID,
			Area:      input.Body.Area,
			Fields:    input.Body.Fields,
			ParentID:  input.Body.ParentID,
			Relations: input.Body.Relations,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Artifact `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-" + name + "s",
		Method:      http.MethodGet,
		Path:        base,
		Summary:     "List " + name + "s",
		Tags:        []string{name},
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *artifactListInput) (*struct {
		Body []domain.Artifact `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListArtifacts(ctx, artifactType, input.query())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Artifact `json:"body"`
		}{Body: nonNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-" + name,
		Method:      http.MethodGet,
		Path:        base + "/{id}",
		Summary:     "Get " + name,
		Tags:        []string{name},
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *artifactPath) (*struct {
		Body domain.Artifact `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		a, err := e.GetArtifact(ctx, artifactType, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Artifact `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-" + name,
		Method:      http.MethodPatch,
		Path:        base + "/{id}",
		Summary:     "Update " + name,
		Tags:        []string{name},
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body UpdateArtifactRequest `json:"body"`
	}) (*struct {
		Body domain.Artifact `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permWrite); err != nil {
			return nil, handleError(err)
		}
		if input.Body.Status != nil {
			if err := requirePermission(ctx, permReview); err != nil {
				return nil, handleError(err)
			}
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		fields := make(map[string]*string, len(input.Body.Fields)+len(input.Body.Clear))
		for k, v := range input.Body.Fields {
			v := v
			fields[k] = &v
		}
		for _, k := range input.Body.Clear {
			fields[strings.TrimSpace(k)] = nil
		}
		a, err := e.UpdateArtifact(ctx, engine.UpdateArtifactInput{
			Type:      artifactType,
			ID:        input.ID,
			Area:      input.Body.Area,
			Status:    input.Body.Status,
			Rationale: input.Body.Rationale,
			Fields:    fields,
			ParentID:  input.Body.ParentID,
			Relations: input.Body.Relations,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Artifact `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-" + name,
		Method:        http.MethodDelete,
		Path:          base + "/{id}",
		Summary:       "Delete " + name + " and its linkages",
		Tags:          []string{name},
		DefaultStatus: http.StatusNoContent,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *artifactPath) (*struct{}, error) {
		if err := requirePermission(ctx, permDelete); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteArtifact(ctx, artifactType, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-" + name,
		Method:      http.MethodPost,
		Path:        base + "/{id}/transition",
		Summary:     "Change " + name + " status along the review lifecycle",
		Tags:        []string{name},
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body TransitionRequest `json:"body"`
	}) (*struct {
		Body domain.Event `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permReview); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		evt, err := e.Transition(ctx, engine.TransitionInput{
			Type:      artifactType,
			ID:        input.ID,
			From:      input.Body.From,
			To:        input.Body.To,
			Rationale: input.Body.Rationale,
			Comment:   input.Body.Comment,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Event `json:"body"`
		}{Body: evt}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "history-" + name,
		Method:      http.MethodGet,
		Path:        base + "/{id}/history",
		Summary:     "Events recorded for a " + name + ", newest first",
		Tags:        []string{name},
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *artifactPath) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.History(ctx, artifactType, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: nonNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-" + name,
		Method:      http.MethodPost,
		Path:        base + "/{id}/rename",
		Summary:     "Change the identifier of a " + name + " and every reference to it",
		Tags:        []string{name},
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body RenameRequest `json:"body"`
	}) (*struct {
		Body RenameResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permRename); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		newID := strings.TrimSpace(input.Body.NewID)
		counts, err := e.RenameArtifact(ctx, artifactType, input.ID, newID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RenameResponse `json:"body"`
		}{Body: RenameResponse{OldID: input.ID, NewID: newID, Counts: counts}}, nil
	})
}

func registerStatuses(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-statuses",
		Method:      http.MethodGet,
		Path:        "/statuses",
		Summary:     "Lifecycle statuses with their allowed targets",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []StatusResponse `json:"body"`
	}, error) {
		var out []StatusResponse
		for _, s := range domain.Statuses() {
			out = append(out, StatusResponse{Status: s, Allowed: nonNil(engine.AllowedTransitions(s))})
		}
		return &struct {
			Body []StatusResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "allowed-transitions",
		Method:      http.MethodGet,
		Path:        "/statuses/{status}/transitions",
		Summary:     "Statuses reachable from one status",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `path:"status"`
	}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		s, ok := domain.CanonicalStatus(input.Status)
		if !ok {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown status "+input.Status, nil)
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{Status: s, Allowed: nonNil(engine.AllowedTransitions(s))}}, nil
	})
}

func registerEARS(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "ears-templates",
		Method:      http.MethodGet,
		Path:        "/requirements/ears/templates",
		Summary:     "EARS phrasing templates per ears_type",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []engine.EARSTemplate `json:"body"`
	}, error) {
		return &struct {
			Body []engine.EARSTemplate `json:"body"`
		}{Body: engine.EARSTemplates()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ears-validate",
		Method:      http.MethodPost,
		Path:        "/requirements/ears/validate",
		Summary:     "Check requirement text against an EARS pattern",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body EARSValidateRequest `json:"body"`
	}) (*struct {
		Body engine.EARSCheck `json:"body"`
	}, error) {
		return &struct {
			Body engine.EARSCheck `json:"body"`
		}{Body: engine.CheckEARS(input.Body.Text, input.Body.EARSType)}, nil
	})
}
