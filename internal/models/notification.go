package models

import (
	"time"

	"github.com/google/uuid"
)

type ImpactLevel string

const (
	ImpactInfo     ImpactLevel = "info"
	ImpactWarning  ImpactLevel = "warning"
	ImpactBreaking ImpactLevel = "breaking"
)

// Severity orders impact levels: breaking > warning > info.
// Unknown levels rank below info.
func (l ImpactLevel) Severity() int {
	switch l {
	case ImpactBreaking:
		return 3
	case ImpactWarning:
		return 2
	case ImpactInfo:
		return 1
	}
	return 0
}

func (l ImpactLevel) Valid() bool {
	return l.Severity() > 0
}

// MaxImpact returns the more severe of the given levels.
func MaxImpact(levels ...ImpactLevel) ImpactLevel {
	var worst ImpactLevel
	for _, l := range levels {
		if l.Severity() > worst.Severity() {
			worst = l
		}
	}
	return worst
}

type NotificationStatus string

const (
	StatusPending      NotificationStatus = "pending"
	StatusAcknowledged NotificationStatus = "acknowledged"
	StatusResolved     NotificationStatus = "resolved"
)

func (s NotificationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAcknowledged, StatusResolved:
		return true
	}
	return false
}

// CanTransitionTo encodes the acknowledgment state machine:
//
//	pending -> acknowledged -> resolved
//	pending -> resolved
//
// resolved is terminal.
func (s NotificationStatus) CanTransitionTo(next NotificationStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusAcknowledged || next == StatusResolved
	case StatusAcknowledged:
		return next == StatusResolved
	}
	return false
}

// IsRead is the inbox view of a status: anything past pending has been seen.
func (s NotificationStatus) IsRead() bool {
	return s == StatusAcknowledged || s == StatusResolved
}

// ViewNotification is one delivery of a panel change to a view's
// stakeholder. PanelChangeID is nil for manual alerts.
type ViewNotification struct {
	ID             uuid.UUID          `json:"id"`
	TenantID       uuid.UUID          `json:"tenant_id"`
	UserID         uuid.UUID          `json:"user_id"`
	ViewID         uuid.UUID          `json:"view_id"`
	PanelChangeID  *int64             `json:"panel_change_id,omitempty"`
	Status         NotificationStatus `json:"status"`
	Impact         ImpactLevel        `json:"impact"`
	Message        string             `json:"message"`
	AcknowledgedAt *time.Time         `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time         `json:"resolved_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}
