package engine

import (
	"context"
	"strings"

	"traceline/internal/domain"
)

type CommentInput struct {
	ArtifactID   string
	FieldName    string
	Text         string
	Author       string
	SelectedText string
}

func (e Engine) CreateComment(ctx context.Context, in CommentInput) (domain.Comment, error) {
	if strings.TrimSpace(in.Text) == "" {
		return domain.Comment{}, domain.Validation("text", "required")
	}
	if _, err := e.FindArtifact(ctx, in.ArtifactID); err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{
		ID:           newID(),
		ArtifactID:   in.ArtifactID,
		FieldName:    in.FieldName,
		Text:         in.Text,
		Author:       actorOrSystem(in.Author),
		SelectedText: in.SelectedText,
		CreatedAt:    e.stamp(),
	}
	if err := e.Repo.InsertComment(ctx, nil, c); err != nil {
		return domain.Comment{}, classify("insert comment", err)
	}
	return c, nil
}

// ListComments returns the comments of an artifact. Comments survive the
// artifact, so a missing artifact yields an empty list.
func (e Engine) ListComments(ctx context.Context, artifactID string, resolved *bool) ([]domain.Comment, error) {
	list, err := e.Repo.ListComments(ctx, nil, artifactID, resolved)
	if err != nil {
		return nil, classify("list comments", err)
	}
	return list, nil
}

func (e Engine) GetComment(ctx context.Context, id string) (domain.Comment, error) {
	c, err := e.Repo.GetComment(ctx, nil, id)
	if err != nil {
		return domain.Comment{}, classify("get comment", notFound(err, "comment", id))
	}
	return c, nil
}

// ResolveComment marks a comment resolved. action records what was done
// about it, for example "accepted" or "won't fix".
func (e Engine) ResolveComment(ctx context.Context, id, actor, action string) (domain.Comment, error) {
	c, err := e.GetComment(ctx, id)
	if err != nil {
		return domain.Comment{}, err
	}
	c.Resolved = true
	c.ResolvedAt = e.stamp()
	c.ResolvedBy = actorOrSystem(actor)
	c.ResolutionAction = action
	if err := e.Repo.SetCommentResolution(ctx, nil, c); err != nil {
		return domain.Comment{}, classify("resolve comment", notFound(err, "comment", id))
	}
	return c, nil
}

func (e Engine) UnresolveComment(ctx context.Context, id string) (domain.Comment, error) {
	c, err := e.GetComment(ctx, id)
	if err != nil {
		return domain.Comment{}, err
	}
	c.Resolved = false
	c.ResolvedAt, c.ResolvedBy, c.ResolutionAction = "", "", ""
	if err := e.Repo.SetCommentResolution(ctx, nil, c); err != nil {
		return domain.Comment{}, classify("unresolve comment", notFound(err, "comment", id))
	}
	return c, nil
}

func (e Engine) DeleteComment(ctx context.Context, id string) error {
	if err := e.Repo.DeleteComment(ctx, nil, id); err != nil {
		return classify("delete comment", notFound(err, "comment", id))
	}
	return nil
}
