// Package changes owns the panel change ledger: recording structural
// changes and reading them back.
package changes

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/observ"
	"github.com/lalith-99/panelwatch/internal/pagination"
	"github.com/lalith-99/panelwatch/internal/repository"
	"go.uber.org/zap"
)

// ChangeInput describes one structural change. Before and After are
// encoded as JSON; nil encodes as null.
type ChangeInput struct {
	PanelID        uuid.UUID
	Type           models.ChangeType
	AffectedColumn *string
	Before         any
	After          any
}

type Recorder struct {
	panels  repository.PanelRepository
	changes repository.ChangeRepository
	logger  *zap.Logger
}

func NewRecorder(panels repository.PanelRepository, changes repository.ChangeRepository, logger *zap.Logger) *Recorder {
	return &Recorder{panels: panels, changes: changes, logger: logger}
}

// RecordChange appends one PanelChange. Call it with the ctx of the
// transaction that applies the mutation: if recording fails the mutation
// must roll back with it.
func (r *Recorder) RecordChange(ctx context.Context, in ChangeInput) (*models.PanelChange, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	panel, err := r.panels.Lookup(ctx, in.PanelID)
	if err != nil {
		return nil, fmt.Errorf("lookup panel: %w", err)
	}
	if panel == nil {
		return nil, apperr.NewNotFoundError("panel", in.PanelID.String())
	}

	before, err := encodeState(in.Before)
	if err != nil {
		return nil, apperr.NewValidationError("before", err.Error())
	}
	after, err := encodeState(in.After)
	if err != nil {
		return nil, apperr.NewValidationError("after", err.Error())
	}

	change, err := r.changes.Append(ctx, &models.PanelChange{
		PanelID:        panel.ID,
		TenantID:       panel.TenantID,
		UserID:         panel.UserID,
		ChangeType:     in.Type,
		AffectedColumn: in.AffectedColumn,
		Details:        models.ChangeDetails{Before: before, After: after},
	})
	if err != nil {
		return nil, fmt.Errorf("append change: %w", err)
	}

	observ.ChangesRecorded.WithLabelValues(string(change.ChangeType)).Inc()
	r.logger.Info("panel change recorded",
		zap.Int64("change_id", change.ID),
		zap.String("panel_id", change.PanelID.String()),
		zap.String("change_type", string(change.ChangeType)),
		zap.String("affected_column", change.AffectedColumnID()),
	)
	return change, nil
}

func validateInput(in ChangeInput) error {
	if !in.Type.Valid() {
		return apperr.NewValidationError("change_type", fmt.Sprintf("unknown change type %q", in.Type))
	}
	hasColumn := in.AffectedColumn != nil && *in.AffectedColumn != ""
	if in.Type.ColumnScoped() && !hasColumn {
		return apperr.NewValidationError("affected_column", fmt.Sprintf("required for %s", in.Type))
	}
	if !in.Type.ColumnScoped() && in.AffectedColumn != nil {
		return apperr.NewValidationError("affected_column", fmt.Sprintf("must be omitted for %s", in.Type))
	}
	return nil
}

func encodeState(v any) (json.RawMessage, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(s) > 0 && !json.Valid(s) {
			return nil, fmt.Errorf("invalid JSON")
		}
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListQuery selects the changes of panels owned by UserID in TenantID.
type ListQuery struct {
	TenantID   uuid.UUID
	UserID     uuid.UUID
	PanelID    *uuid.UUID
	ChangeType *models.ChangeType
	Since      *time.Time
	Limit      int
	Offset     int
}

type Page struct {
	Changes []models.PanelChange `json:"changes"`
	Total   int                  `json:"total"`
	HasMore bool                 `json:"has_more"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

// List returns one page of changes, newest first.
func (r *Recorder) List(ctx context.Context, q ListQuery) (*Page, error) {
	page, err := pagination.Normalize(q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	if q.ChangeType != nil && !q.ChangeType.Valid() {
		return nil, apperr.NewValidationError("change_type", fmt.Sprintf("unknown change type %q", *q.ChangeType))
	}

	items, total, err := r.changes.List(ctx, repository.ChangeFilter{
		TenantID:   q.TenantID,
		UserID:     q.UserID,
		PanelID:    q.PanelID,
		ChangeType: q.ChangeType,
		Since:      q.Since,
		Limit:      page.Limit,
		Offset:     page.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}

	return &Page{
		Changes: items,
		Total:   total,
		HasMore: page.HasMore(len(items), total),
		Limit:   page.Limit,
		Offset:  page.Offset,
	}, nil
}

// Get returns a change visible to the given owner. Changes of other
// owners are reported as not found.
func (r *Recorder) Get(ctx context.Context, tenantID, userID uuid.UUID, changeID int64) (*models.PanelChange, error) {
	change, err := r.changes.GetByID(ctx, changeID)
	if err != nil {
		return nil, fmt.Errorf("get change: %w", err)
	}
	if change == nil || change.TenantID != tenantID || change.UserID != userID {
		return nil, apperr.NewNotFoundError("panel_change", strconv.FormatInt(changeID, 10))
	}
	return change, nil
}
