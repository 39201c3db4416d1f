package server

import (
	"traceline/internal/domain"
	"traceline/internal/repo"
)

// Request payloads

type CreateProjectRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type CreateAreaRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
}

type UpdateAreaRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type CreatePersonRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	ProjectID   string   `json:"project_id"`
	Roles       []string `json:"roles,omitempty"`
}

type UpdatePersonRequest struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Roles       *[]string `json:"roles,omitempty"`
}

type CreateCatalogItemRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ProjectID   string `json:"project_id"`
	Type        string `json:"type,omitempty" doc:"Hardware or Software for components, component or sequence for diagrams"`
	Content     string `json:"content,omitempty" doc:"Mermaid source of a sequence diagram"`
}

type UpdateCatalogItemRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Type        *string `json:"type,omitempty"`
	Content     *string `json:"content,omitempty"`
}

type LinkComponentRequest struct {
	ChildID     string `json:"child_id"`
	Cardinality string `json:"cardinality,omitempty" example:"0..1"`
	Type        string `json:"type,omitempty" enum:"composition,communication"`
	Protocol    string `json:"protocol,omitempty"`
	DataItems   string `json:"data_items,omitempty"`
}

type PlaceComponentRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type DiagramEdgeRequest struct {
	SourceID     string `json:"source_id"`
	TargetID     string `json:"target_id"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}

type CreateArtifactRequest struct {
	ProjectID string              `json:"project_id"`
	Area      string              `json:"area,omitempty"`
	Fields    map[string]string   `json:"fields"`
	ParentID  string              `json:"parent_id,omitempty" doc:"derives from / satisfies reference of the type"`
	Relations map[string][]string `json:"relations,omitempty" doc:"join field to referenced ids, e.g. site_ids"`
}

type UpdateArtifactRequest struct {
	Area      *string             `json:"area,omitempty"`
	Status    *string             `json:"status,omitempty"`
	Rationale string              `json:"rationale,omitempty"`
	Fields    map[string]string   `json:"fields,omitempty"`
	Clear     []string            `json:"clear,omitempty" doc:"payload columns to reset to empty"`
	ParentID  *string             `json:"parent_id,omitempty" doc:"empty string removes the parent reference"`
	Relations map[string][]string `json:"relations,omitempty"`
}

type TransitionRequest struct {
	From      string `json:"from,omitempty" doc:"status the caller expects to be stored"`
	To        string `json:"to"`
	Rationale string `json:"rationale"`
	Comment   string `json:"comment,omitempty"`
}

type RenameRequest struct {
	NewID string `json:"new_id"`
}

type CreateLinkageRequest struct {
	SourceType       string `json:"source_type"`
	SourceID         string `json:"source_id"`
	TargetType       string `json:"target_type"`
	TargetID         string `json:"target_id"`
	RelationshipType string `json:"relationship_type"`
	ProjectID        string `json:"project_id"`
}

type UpdateLinkageRequest struct {
	SourceType       *string `json:"source_type,omitempty"`
	SourceID         *string `json:"source_id,omitempty"`
	TargetType       *string `json:"target_type,omitempty"`
	TargetID         *string `json:"target_id,omitempty"`
	RelationshipType *string `json:"relationship_type,omitempty"`
}

type CreateCommentRequest struct {
	ArtifactID   string `json:"artifact_id"`
	FieldName    string `json:"field_name,omitempty"`
	Text         string `json:"text"`
	SelectedText string `json:"selected_text,omitempty"`
}

type ResolveCommentRequest struct {
	Action string `json:"action,omitempty" doc:"resolution action, e.g. accepted or dismissed"`
}

type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type EARSValidateRequest struct {
	Text     string `json:"text"`
	EARSType string `json:"ears_type,omitempty"`
}

// Responses

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at" format:"date-time"`
}

type WhoAmIResponse struct {
	UserID      string   `json:"user_id,omitempty"`
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source"`
}

type UserResponse struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Roles     []string `json:"roles"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type CreatedAPIKeyResponse struct {
	Key    string         `json:"key" doc:"shown once"`
	APIKey APIKeyResponse `json:"api_key"`
}

type RenameResponse struct {
	OldID  string            `json:"old_id"`
	NewID  string            `json:"new_id"`
	Counts repo.RenameCounts `json:"updated"`
}

type PreviewIDResponse struct {
	ID string `json:"id"`
}

type StatusResponse struct {
	Status  string   `json:"status"`
	Allowed []string `json:"allowed"`
}

type UploadResponse struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username, Roles: nonNil(u.Roles), CreatedAt: u.CreatedAt}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, UserID: k.UserID, Name: k.Name, CreatedAt: k.CreatedAt}
}
