package engine

import (
	"context"
	"fmt"
	"strings"

	"traceline/internal/domain"
	"traceline/internal/events"
	"traceline/internal/metrics"
	"traceline/internal/repo"
)

var allowedTransitions = map[string][]string{
	domain.StatusDraft:          {domain.StatusReadyForReview},
	domain.StatusReadyForReview: {domain.StatusInReview, domain.StatusDraft},
	domain.StatusInReview:       {domain.StatusApproved, domain.StatusRejected, domain.StatusDeferred, domain.StatusDraft},
	domain.StatusApproved:       {domain.StatusSuperseded, domain.StatusRetired, domain.StatusDraft},
	domain.StatusDeferred:       {domain.StatusInReview, domain.StatusDraft},
	domain.StatusRejected:       {domain.StatusDraft},
}

// AllowedTransitions lists the statuses reachable from from. Terminal
// statuses return none.
func AllowedTransitions(from string) []string {
	canonical, _ := domain.CanonicalStatus(from)
	return append([]string(nil), allowedTransitions[canonical]...)
}

func ensureStatusTransition(from, to string) error {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return &domain.TransitionError{From: from, To: to}
}

type TransitionInput struct {
	Type string
	ID   string
	// From is the status the caller believes is stored. Empty skips the check.
	From      string
	To        string
	Rationale string
	Comment   string
	ActorID   string
}

// Transition moves an artifact along the review lifecycle and returns the
// StatusChanged event it appended.
func (e Engine) Transition(ctx context.Context, in TransitionInput) (domain.Event, error) {
	k, err := kindOf(in.Type)
	if err != nil {
		return domain.Event{}, err
	}
	if strings.TrimSpace(in.Rationale) == "" {
		return domain.Event{}, domain.Validation("rationale", "required")
	}
	to, ok := domain.CanonicalStatus(in.To)
	if !ok {
		return domain.Event{}, domain.Validation("to", fmt.Sprintf("unknown status %q", in.To))
	}
	var expected string
	if strings.TrimSpace(in.From) != "" {
		if expected, ok = domain.CanonicalStatus(in.From); !ok {
			return domain.Event{}, domain.Validation("from", fmt.Sprintf("unknown status %q", in.From))
		}
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Event{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetArtifact(ctx, tx, k, in.ID)
	if err != nil {
		return domain.Event{}, classify("get "+k.Type, notFound(err, k.Type, in.ID))
	}
	if expected != "" && expected != a.Status {
		return domain.Event{}, &domain.ConflictError{Kind: k.Type, ID: a.ID, Reason: fmt.Sprintf("status is %s, not %s", a.Status, expected)}
	}
	if err := ensureStatusTransition(a.Status, to); err != nil {
		return domain.Event{}, err
	}
	now := e.stamp()
	if err := e.Repo.UpdateArtifact(ctx, tx, k, a.ID, repo.ArtifactPatch{Status: &to, UpdatedAt: now}); err != nil {
		return domain.Event{}, classify("update status", err)
	}
	payload := events.EventPayload{"from": a.Status, "to": to, "rationale": in.Rationale}
	id, err := e.Events.Append(ctx, tx, events.Record{
		Type:       events.StatusChanged,
		ProjectID:  a.ProjectID,
		EntityKind: k.Type,
		EntityID:   a.ID,
		ActorID:    in.ActorID,
		Comment:    in.Comment,
		Payload:    payload,
	})
	if err != nil {
		return domain.Event{}, classify("append event", err)
	}
	if err := e.commit(tx); err != nil {
		return domain.Event{}, err
	}
	metrics.StatusTransitions.WithLabelValues(a.Status, to).Inc()
	e.logger().Printf("%s %s: %s -> %s by %s", k.Type, a.ID, a.Status, to, actorOrSystem(in.ActorID))
	evt, err := e.Repo.GetEvent(ctx, nil, id)
	if err != nil {
		return domain.Event{}, classify("read event", err)
	}
	return evt, nil
}

// History returns the events recorded for an artifact, newest first. Events
// outlive the artifact, so a deleted id still has a history.
func (e Engine) History(ctx context.Context, artifactType, id string) ([]domain.Event, error) {
	k, err := kindOf(artifactType)
	if err != nil {
		return nil, err
	}
	evts, err := e.Repo.LatestEvents(ctx, nil, 0, repo.EventFilter{EntityKind: k.Type, EntityID: id})
	if err != nil {
		return nil, classify("list events", err)
	}
	return evts, nil
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}
