package domain

import (
	"sort"
	"strings"
)

// Artifact type tags.
const (
	TypeVision      = "vision"
	TypeNeed        = "need"
	TypeUseCase     = "use_case"
	TypeRequirement = "requirement"
	TypeDocument    = "document"
	TypeComponent   = "component"
	TypeDiagram     = "diagram"
)

// Column describes one payload column of an artifact table.
type Column struct {
	Name     string
	Required bool
	Enum     []string
	JSON     bool
}

// ParentLink is the "derives from / satisfies" reference an artifact may
// carry. It is stored as a Linkage from the artifact to its parent.
type ParentLink struct {
	Field        string
	TargetType   string
	Relationship string
}

// Join is an association table keyed by the artifact id.
type Join struct {
	Field    string
	Table    string
	OwnerCol string
	RefCol   string
	RefKind  string
}

// Kind is the static description of an artifact type.
type Kind struct {
	Type    string
	Table   string
	Key     string
	Code    string
	Columns []Column
	Search  []string
	Owner   string
	Filters []string
	Parent  *ParentLink
	Joins   []Join
}

var kinds = map[string]Kind{
	TypeVision: {
		Type:  TypeVision,
		Table: "visions",
		Key:   "aid",
		Code:  "VISION",
		Columns: []Column{
			{Name: "title", Required: true},
			{Name: "description"},
		},
		Search: []string{"title", "description"},
	},
	TypeNeed: {
		Type:  TypeNeed,
		Table: "needs",
		Key:   "aid",
		Code:  "NEED",
		Columns: []Column{
			{Name: "title", Required: true},
			{Name: "description"},
			{Name: "level", Enum: []string{"Mission", "Enterprise", "Technical"}},
			{Name: "rationale"},
			{Name: "owner_id"},
			{Name: "stakeholder_id"},
		},
		Search: []string{"title", "description"},
		Owner:  "owner_id",
		Parent: &ParentLink{Field: "source_vision_id", TargetType: TypeVision, Relationship: RelDerivesFrom},
		Joins: []Join{
			{Field: "site_ids", Table: "need_sites", OwnerCol: "need_id", RefCol: "site_id", RefKind: CatalogSite},
			{Field: "component_ids", Table: "need_components", OwnerCol: "need_id", RefCol: "component_id", RefKind: CatalogComponent},
		},
	},
	TypeUseCase: {
		Type:  TypeUseCase,
		Table: "use_cases",
		Key:   "aid",
		Code:  "UC",
		Columns: []Column{
			{Name: "title", Required: true},
			{Name: "description"},
			{Name: "trigger"},
			{Name: "primary_actor_id"},
			{Name: "mss", JSON: true},
			{Name: "extensions", JSON: true},
		},
		Search: []string{"title", "description"},
		Owner:  "primary_actor_id",
		Parent: &ParentLink{Field: "source_need_id", TargetType: TypeNeed, Relationship: RelSatisfies},
		Joins: []Join{
			{Field: "precondition_ids", Table: "use_case_preconditions", OwnerCol: "use_case_id", RefCol: "precondition_id", RefKind: CatalogPrecondition},
			{Field: "postcondition_ids", Table: "use_case_postconditions", OwnerCol: "use_case_id", RefCol: "postcondition_id", RefKind: CatalogPostcondition},
			{Field: "exception_ids", Table: "use_case_exceptions", OwnerCol: "use_case_id", RefCol: "exception_id", RefKind: CatalogException},
			{Field: "stakeholder_ids", Table: "use_case_stakeholders", OwnerCol: "use_case_id", RefCol: "person_id", RefKind: "person"},
		},
	},
	TypeRequirement: {
		Type:  TypeRequirement,
		Table: "requirements",
		Key:   "aid",
		Code:  "REQ",
		Columns: []Column{
			{Name: "short_name", Required: true},
			{Name: "text", Required: true},
			{Name: "level", Enum: []string{"stk", "sys", "sub"}},
			{Name: "ears_type", Enum: EARSTypes},
			{Name: "ears_trigger"},
			{Name: "ears_state"},
			{Name: "ears_condition"},
			{Name: "ears_feature"},
			{Name: "rationale"},
			{Name: "owner"},
		},
		Search:  []string{"short_name", "text"},
		Owner:   "owner",
		Filters: []string{"level", "ears_type"},
		Parent:  &ParentLink{Field: "source_use_case_id", TargetType: TypeUseCase, Relationship: RelSatisfies},
	},
	TypeDocument: {
		Type:  TypeDocument,
		Table: "documents",
		Key:   "aid",
		Code:  "DOC",
		Columns: []Column{
			{Name: "title", Required: true},
			{Name: "document_type", Enum: []string{"url", "file", "text"}},
			{Name: "description"},
			{Name: "content_url"},
			{Name: "content_text"},
			{Name: "mime_type"},
		},
		Search: []string{"title", "description"},
	},
}

// EARSTypes are the requirement phrasing patterns.
var EARSTypes = []string{"ubiquitous", "event-driven", "unwanted", "state-driven", "optional", "complex"}

// LookupKind returns the registry entry of an artifact type.
func LookupKind(artifactType string) (Kind, bool) {
	k, ok := kinds[strings.ToLower(strings.TrimSpace(artifactType))]
	return k, ok
}

// ArtifactTypes lists the artifact type tags in a stable order.
func ArtifactTypes() []string {
	return []string{TypeVision, TypeNeed, TypeUseCase, TypeRequirement, TypeDocument}
}

// Column returns the payload column definition by name.
func (k Kind) Column(name string) (Column, bool) {
	for _, c := range k.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the payload column names in declaration order.
func (k Kind) ColumnNames() []string {
	names := make([]string, 0, len(k.Columns))
	for _, c := range k.Columns {
		names = append(names, c.Name)
	}
	return names
}

// Join returns the association table bound to a relation field.
func (k Kind) Join(field string) (Join, bool) {
	for _, j := range k.Joins {
		if j.Field == field {
			return j, true
		}
	}
	return Join{}, false
}

// Endpoint locates the row behind a linkage endpoint type.
type Endpoint struct {
	Table string
	Key   string
}

var endpoints = map[string]Endpoint{
	TypeVision:      {Table: "visions", Key: "aid"},
	TypeNeed:        {Table: "needs", Key: "aid"},
	TypeUseCase:     {Table: "use_cases", Key: "aid"},
	TypeRequirement: {Table: "requirements", Key: "aid"},
	TypeDocument:    {Table: "documents", Key: "aid"},
	TypeComponent:   {Table: "components", Key: "id"},
	TypeDiagram:     {Table: "diagrams", Key: "id"},
}

var externalTypes = map[string]bool{"url": true, "external": true, "file": true}

// LookupEndpoint reports where a managed endpoint type lives. External
// reports whether the type is an unchecked external reference.
func LookupEndpoint(endpointType string) (ep Endpoint, external bool, ok bool) {
	t := strings.ToLower(strings.TrimSpace(endpointType))
	if externalTypes[t] {
		return Endpoint{}, true, true
	}
	ep, ok = endpoints[t]
	return ep, false, ok
}

// Relationship types.
const (
	RelDerivesFrom   = "derives_from"
	RelSatisfies     = "satisfies"
	RelRefines       = "refines"
	RelVerifies      = "verifies"
	RelParent        = "parent"
	RelTracesTo      = "traces_to"
	RelDependsOn     = "depends_on"
	RelIllustratedBy = "illustrated_by"
	RelDocumentedIn  = "documented_in"
	RelAllocatedTo   = "allocated_to"
	RelRelatedTo     = "related_to"
)

var relationships = []string{
	RelDerivesFrom, RelSatisfies, RelRefines, RelVerifies, RelParent, RelTracesTo,
	RelDependsOn, RelIllustratedBy, RelDocumentedIn, RelAllocatedTo, RelRelatedTo,
}

func Relationships() []string {
	return append([]string(nil), relationships...)
}

func IsRelationship(v string) bool {
	for _, r := range relationships {
		if r == v {
			return true
		}
	}
	return false
}

// Catalog kinds are the auxiliary entities referenced by join tables and
// linkages.
const (
	CatalogSite          = "site"
	CatalogComponent     = "component"
	CatalogDiagram       = "diagram"
	CatalogPrecondition  = "precondition"
	CatalogPostcondition = "postcondition"
	CatalogException     = "exception"
)

var catalogTables = map[string]string{
	CatalogSite:          "sites",
	CatalogComponent:     "components",
	CatalogDiagram:       "diagrams",
	CatalogPrecondition:  "preconditions",
	CatalogPostcondition: "postconditions",
	CatalogException:     "uc_exceptions",
}

// CatalogTable returns the table of a catalog kind.
func CatalogTable(kind string) (string, bool) {
	t, ok := catalogTables[strings.ToLower(strings.TrimSpace(kind))]
	return t, ok
}

func CatalogKinds() []string {
	out := make([]string, 0, len(catalogTables))
	for k := range catalogTables {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Component and diagram types.
const (
	ComponentHardware = "Hardware"
	ComponentSoftware = "Software"

	DiagramTypeComponent = "component"
	DiagramTypeSequence  = "sequence"

	LinkComposition   = "composition"
	LinkCommunication = "communication"
)

var catalogTypes = map[string][]string{
	CatalogComponent: {ComponentSoftware, ComponentHardware},
	CatalogDiagram:   {DiagramTypeComponent, DiagramTypeSequence},
}

// CatalogTypes returns the allowed types of a catalog kind, default first.
// Kinds without a type return nil.
func CatalogTypes(kind string) []string {
	return catalogTypes[kind]
}

// CanonicalChoice matches v case-insensitively against allowed.
func CanonicalChoice(v string, allowed []string) (string, bool) {
	v = strings.TrimSpace(v)
	for _, a := range allowed {
		if strings.EqualFold(a, v) {
			return a, true
		}
	}
	return "", false
}
