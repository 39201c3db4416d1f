package domain

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Area struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
}

type Person struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	ProjectID   string   `json:"project_id,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// Artifact is one traceable item. Fields holds the type specific payload
// columns described by its Kind.
type Artifact struct {
	ID        string              `json:"id"`
	Type      string              `json:"type"`
	ProjectID string              `json:"project_id"`
	Area      string              `json:"area,omitempty"`
	Status    string              `json:"status"`
	Fields    map[string]string   `json:"fields"`
	ParentID  string              `json:"parent_id,omitempty"`
	Relations map[string][]string `json:"relations,omitempty"`
	CreatedAt string              `json:"created_at" format:"date-time"`
	UpdatedAt string              `json:"updated_at" format:"date-time"`
}

type Linkage struct {
	ID               string `json:"id"`
	SourceType       string `json:"source_type"`
	SourceID         string `json:"source_id"`
	TargetType       string `json:"target_type"`
	TargetID         string `json:"target_id"`
	RelationshipType string `json:"relationship_type"`
	ProjectID        string `json:"project_id"`
	CreatedAt        string `json:"created_at" format:"date-time"`
}

type Comment struct {
	ID               string `json:"id"`
	ArtifactID       string `json:"artifact_id"`
	FieldName        string `json:"field_name,omitempty"`
	Text             string `json:"text"`
	Author           string `json:"author"`
	SelectedText     string `json:"selected_text,omitempty"`
	CreatedAt        string `json:"created_at" format:"date-time"`
	Resolved         bool   `json:"resolved"`
	ResolvedAt       string `json:"resolved_at,omitempty"`
	ResolvedBy       string `json:"resolved_by,omitempty"`
	ResolutionAction string `json:"resolution_action,omitempty"`
}

// Event is an append-only audit record. StatusChanged events carry
// {from,to,rationale} in Payload.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Comment    string `json:"comment,omitempty"`
	Payload    string `json:"payload_json"`
}

// CatalogItem is a simple project scoped entity referenced by artifact join
// tables or linkages: sites, components, diagrams, preconditions and so on.
type CatalogItem struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	ProjectID   string `json:"project_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Type is Hardware or Software for components and component or
	// sequence for diagrams. Other kinds leave it empty.
	Type string `json:"type,omitempty"`
	// Content holds the Mermaid source of sequence diagrams.
	Content   string `json:"content,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ComponentLink places Child under Parent in the component hierarchy.
type ComponentLink struct {
	ParentID    string `json:"parent_id"`
	ChildID     string `json:"child_id"`
	ChildName   string `json:"child_name,omitempty"`
	ChildType   string `json:"child_type,omitempty"`
	Cardinality string `json:"cardinality,omitempty" example:"1..*"`
	Type        string `json:"type" enum:"composition,communication"`
	Protocol    string `json:"protocol,omitempty"`
	DataItems   string `json:"data_items,omitempty"`
}

// DiagramComponent is the position of a component on a diagram.
type DiagramComponent struct {
	DiagramID   string `json:"diagram_id"`
	ComponentID string `json:"component_id"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
}

type DiagramEdge struct {
	DiagramID    string `json:"diagram_id"`
	SourceID     string `json:"source_id"`
	TargetID     string `json:"target_id"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}

// DiagramLayout is a diagram with its placed components and edges.
type DiagramLayout struct {
	Diagram    CatalogItem        `json:"diagram"`
	Components []DiagramComponent `json:"components"`
	Edges      []DiagramEdge      `json:"edges"`
}

type User struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	PasswordHash string   `json:"-"`
	Roles        []string `json:"roles"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Stats aggregates artifact counts of a project.
type Stats struct {
	Total    int            `json:"total_count"`
	ByType   map[string]int `json:"by_type"`
	ByStatus map[string]int `json:"by_status"`
	ByArea   map[string]int `json:"by_area"`
	Matrix   []StatsCell    `json:"matrix"`
}

type StatsCell struct {
	ArtifactType string `json:"artifact_type"`
	Area         string `json:"area"`
	Status       string `json:"status"`
	Count        int    `json:"count"`
}
