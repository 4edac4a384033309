package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Panel is a tenant-scoped cohort definition. Columns, data sources and
// views all hang off a panel.
//
// UserID is the panel owner. Only the owner may change the panel's
// structure; any user in the tenant may build views on it.
type Panel struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	UserID      uuid.UUID  `json:"user_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	CohortRule  CohortRule `json:"cohort_rule"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CohortRule decides which patients belong to a panel.
// Logic combines the conditions: "AND" or "OR".
type CohortRule struct {
	Logic      string            `json:"logic"`
	Conditions []CohortCondition `json:"conditions"`
}

type CohortCondition struct {
	Field    string          `json:"field"`
	Operator string          `json:"operator"`
	Value    json.RawMessage `json:"value,omitempty"`
}

const (
	CohortLogicAnd = "AND"
	CohortLogicOr  = "OR"
)

type ColumnKind string

const (
	ColumnKindBase       ColumnKind = "base"
	ColumnKindCalculated ColumnKind = "calculated"
)

// Column belongs to exactly one panel. ID is an opaque identifier that
// is unique within the panel ("age", "bmi", ...). Views refer to columns
// by this identifier only.
//
// Base columns read SourceField from DataSourceID. Calculated columns
// evaluate Formula over the columns listed in Dependencies.
type Column struct {
	PanelID      uuid.UUID  `json:"panel_id"`
	ID           string     `json:"id"`
	Kind         ColumnKind `json:"kind"`
	Name         string     `json:"name"`
	DataType     string     `json:"data_type"`
	DataSourceID *uuid.UUID `json:"data_source_id,omitempty"`
	SourceField  string     `json:"source_field,omitempty"`
	Formula      string     `json:"formula,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type DataSourceType string

const (
	DataSourceDatabase DataSourceType = "database"
	DataSourceAPI      DataSourceType = "api"
	DataSourceFile     DataSourceType = "file"
	DataSourceCustom   DataSourceType = "custom"
)

func (t DataSourceType) Valid() bool {
	switch t {
	case DataSourceDatabase, DataSourceAPI, DataSourceFile, DataSourceCustom:
		return true
	}
	return false
}

// DataSource feeds base columns. PanelID becomes nil when the owning
// panel is deleted; the row is kept as history.
type DataSource struct {
	ID        uuid.UUID       `json:"id"`
	TenantID  uuid.UUID       `json:"tenant_id"`
	PanelID   *uuid.UUID      `json:"panel_id,omitempty"`
	Name      string          `json:"name"`
	Type      DataSourceType  `json:"type"`
	Config    json.RawMessage `json:"config,omitempty"`
	LastSync  *time.Time      `json:"last_sync,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// View is a user-owned projection of a panel.
//
// VisibleColumns is a snapshot of column identifiers taken when the view
// was defined. It is not a foreign key: when the panel changes, the view
// keeps its definition and the owner gets a ViewNotification instead.
type View struct {
	ID             uuid.UUID    `json:"id"`
	TenantID       uuid.UUID    `json:"tenant_id"`
	PanelID        uuid.UUID    `json:"panel_id"`
	OwnerUserID    uuid.UUID    `json:"owner_user_id"`
	Name           string       `json:"name"`
	VisibleColumns []string     `json:"visible_columns"`
	Filters        []ViewFilter `json:"filters"`
	Sorts          []ViewSort   `json:"sorts"`
	IsPublished    bool         `json:"is_published"`
	PublishedAt    *time.Time   `json:"published_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type ViewFilter struct {
	ColumnID string          `json:"column_id"`
	Operator string          `json:"operator"`
	Value    json.RawMessage `json:"value,omitempty"`
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

type ViewSort struct {
	ColumnID  string        `json:"column_id"`
	Direction SortDirection `json:"direction"`
}

// ReferencedColumns returns every column id the view depends on:
// visible columns, filter columns and sort columns.
func (v View) ReferencedColumns() map[string]struct{} {
	refs := make(map[string]struct{}, len(v.VisibleColumns)+len(v.Filters)+len(v.Sorts))
	for _, c := range v.VisibleColumns {
		refs[c] = struct{}{}
	}
	for _, f := range v.Filters {
		refs[f.ColumnID] = struct{}{}
	}
	for _, s := range v.Sorts {
		refs[s.ColumnID] = struct{}{}
	}
	return refs
}

// References reports whether the view depends on columnID.
func (v View) References(columnID string) bool {
	_, ok := v.ReferencedColumns()[columnID]
	return ok
}
