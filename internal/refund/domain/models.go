// Package domain holds the refund dispute case and its state machine.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status values of a refund case. A shop approval immediately hands the
// case to the platform (money must leave platform-held escrow), so the
// approved-by-shop stage is recorded by ShopRespondedAt rather than a
// separate resting status.
type Status string

const (
	StatusPendingShop   Status = "pending_shop"
	StatusPendingAdmin  Status = "pending_admin"
	StatusShopRejected  Status = "shop_rejected"
	StatusAdminRejected Status = "admin_rejected"
	StatusRefunded      Status = "refunded"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusShopRejected, StatusAdminRejected, StatusRefunded:
		return true
	}
	return false
}

// RefundType distinguishes full and partial refunds.
type RefundType string

const (
	TypeFull    RefundType = "full"
	TypePartial RefundType = "partial"
)

// RequesterRole identifies who filed the case.
type RequesterRole string

const (
	RequesterCustomer RequesterRole = "customer"
	RequesterShop     RequesterRole = "shop"
)

// RefundRequest is one dispute case, tied 1:1 to an order.
type RefundRequest struct {
	ID                 snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrderID            snowflake.ID   `gorm:"not null;uniqueIndex" json:"order_id"`
	ShopID             snowflake.ID   `gorm:"not null;index" json:"shop_id"`
	CustomerID         snowflake.ID   `gorm:"not null;index" json:"customer_id"`
	RequesterID        snowflake.ID   `gorm:"not null" json:"requester_id"`
	RequesterRole      RequesterRole  `gorm:"type:text;not null" json:"requester_role"`
	Reason             string         `gorm:"type:text;not null" json:"reason"`
	Description        string         `gorm:"type:text;not null" json:"description"`
	Type               RefundType     `gorm:"type:text;not null" json:"type"`
	Amount             int64          `gorm:"not null" json:"amount"`
	Attachments        datatypes.JSON `gorm:"type:jsonb" json:"attachments,omitempty"`
	Status             Status         `gorm:"type:text;not null;index" json:"status"`
	ShopResponderID    *snowflake.ID  `json:"shop_responder_id,omitempty"`
	ShopRespondedAt    *time.Time     `json:"shop_responded_at,omitempty"`
	ShopRejectReason   *string        `gorm:"type:text" json:"shop_reject_reason,omitempty"`
	AdminResponderID   *snowflake.ID  `json:"admin_responder_id,omitempty"`
	AdminRespondedAt   *time.Time     `json:"admin_responded_at,omitempty"`
	AdminRejectReason  *string        `gorm:"type:text" json:"admin_reject_reason,omitempty"`
	EscalatedAt        *time.Time     `json:"escalated_at,omitempty"`
	SystemNote         *string        `gorm:"type:text" json:"system_note,omitempty"`
	RefundedAt         *time.Time     `json:"refunded_at,omitempty"`
	RefundWalletEntry  *snowflake.ID  `gorm:"column:refund_wallet_entry_id" json:"refund_wallet_entry_id,omitempty"`
	RefundedFromEscrow bool           `gorm:"not null;default:false" json:"refunded_from_escrow"`
	CreatedAt          time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"requested_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (RefundRequest) TableName() string { return "refund_requests" }

// CreateRequest carries the fields accepted when filing a case.
type CreateRequest struct {
	OrderID       snowflake.ID
	RequesterID   snowflake.ID
	RequesterRole RequesterRole
	Reason        string
	Description   string
	Type          RefundType
	Amount        int64
	Attachments   []string
}

// Service drives the refund case through its approval stages.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*RefundRequest, error)
	ShopRespond(ctx context.Context, refundID snowflake.ID, responderID snowflake.ID, approve bool, note string) (*RefundRequest, error)
	AdminRespond(ctx context.Context, refundID snowflake.ID, responderID snowflake.ID, approve bool, note string) (*RefundRequest, error)
	// Escalate force-advances a stalled pending_shop case to
	// pending_admin with a system note. It is the only path to
	// pending_admin that bypasses an explicit shop approval.
	Escalate(ctx context.Context, refundID snowflake.ID, note string) (*RefundRequest, error)
	FindByID(ctx context.Context, refundID snowflake.ID) (*RefundRequest, error)
	List(ctx context.Context, filter ListFilter) ([]RefundRequest, error)
}

// ListFilter pages refund cases for admin/shop views.
type ListFilter struct {
	Status  Status
	ShopID  snowflake.ID
	AfterID snowflake.ID
	Limit   int
}

// Repository is the persistence surface shared by the service and the
// escalation worker.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *RefundRequest) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*RefundRequest, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*RefundRequest, error)
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*RefundRequest, error)
	// OpenExists reports whether an unresolved case blocks the order's
	// balance release.
	OpenExists(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (bool, error)
	// ListStalledPendingShop returns pending_shop cases requested at or
	// before the cutoff, locked for the escalation batch.
	ListStalledPendingShop(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]RefundRequest, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]RefundRequest, error)
	Update(ctx context.Context, db *gorm.DB, record *RefundRequest) error
}

var (
	ErrNotFound               = errors.New("refund_not_found")
	ErrInvalidStateTransition = errors.New("invalid_state_transition")
	ErrOrderNotRefundable     = errors.New("order_not_refundable")
	ErrWindowExpired          = errors.New("refund_window_expired")
	ErrAlreadyRequested       = errors.New("refund_already_requested")
	ErrDescriptionTooShort    = errors.New("description_too_short")
	ErrInvalidAmount          = errors.New("invalid_refund_amount")
	ErrInvalidRequester       = errors.New("invalid_requester")
	ErrRejectReasonRequired   = errors.New("reject_reason_required")
)
