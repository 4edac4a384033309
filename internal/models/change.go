package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ChangeType string

const (
	ChangeColumnAdded    ChangeType = "column_added"
	ChangeColumnRemoved  ChangeType = "column_removed"
	ChangeColumnModified ChangeType = "column_modified"
	ChangeSourceChanged  ChangeType = "source_changed"
	ChangeCohortChanged  ChangeType = "cohort_changed"
)

// ChangeTypes lists every change kind in a stable order.
var ChangeTypes = []ChangeType{
	ChangeColumnAdded,
	ChangeColumnRemoved,
	ChangeColumnModified,
	ChangeSourceChanged,
	ChangeCohortChanged,
}

func (t ChangeType) Valid() bool {
	for _, known := range ChangeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ColumnScoped reports whether the change type is about a single column
// and therefore must carry an affected column.
func (t ChangeType) ColumnScoped() bool {
	return t == ChangeColumnAdded || t == ChangeColumnRemoved || t == ChangeColumnModified
}

// PanelChange is one entry of the append-only panel ledger.
//
// ID is a bigserial: it is the canonical order of the ledger. CreatedAt is
// informational only, two changes can share a timestamp.
//
// TenantID and UserID are copied from the panel at record time so the
// ledger stays listable after the panel itself is deleted.
//
// DispatchedAt is set once a notification pass for the change completed.
// Until then the change is picked up by the dispatch sweep.
type PanelChange struct {
	ID             int64         `json:"id"`
	PanelID        uuid.UUID     `json:"panel_id"`
	TenantID       uuid.UUID     `json:"tenant_id"`
	UserID         uuid.UUID     `json:"user_id"`
	ChangeType     ChangeType    `json:"change_type"`
	AffectedColumn *string       `json:"affected_column,omitempty"`
	Details        ChangeDetails `json:"change_details"`
	CreatedAt      time.Time     `json:"created_at"`
	DispatchedAt   *time.Time    `json:"dispatched_at,omitempty"`
}

// ChangeDetails is the before/after payload of a change. Either side may
// be null (a column that did not exist before, or no longer exists after).
type ChangeDetails struct {
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
}

// AffectedColumnID returns the affected column or "" when there is none.
func (c PanelChange) AffectedColumnID() string {
	if c.AffectedColumn == nil {
		return ""
	}
	return *c.AffectedColumn
}
