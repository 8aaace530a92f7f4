// Package domain holds the payout request and its workflow contract.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	walletdomain "github.com/smallbiznis/escrow/internal/wallet/domain"
	"gorm.io/gorm"
)

// Status values of a payout request. Funds leave the wallet on approved,
// never on pending, so cancel is only legal pre-approval.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// WithdrawalRequest is one payout of available balance to a bank account.
type WithdrawalRequest struct {
	ID            snowflake.ID           `gorm:"primaryKey" json:"id"`
	OwnerType     walletdomain.OwnerType `gorm:"type:text;not null;index:ix_withdrawals_owner,priority:1" json:"owner_type"`
	OwnerID       snowflake.ID           `gorm:"not null;index:ix_withdrawals_owner,priority:2" json:"owner_id"`
	Amount        int64                  `gorm:"not null" json:"amount"`
	BankName      string                 `gorm:"type:text;not null" json:"bank_name"`
	AccountNumber string                 `gorm:"type:text;not null" json:"account_number"`
	AccountHolder string                 `gorm:"type:text;not null" json:"account_holder"`
	Status        Status                 `gorm:"type:text;not null;index" json:"status"`
	AutoApproved  bool                   `gorm:"not null;default:false" json:"auto_approved"`
	ApproverID    *snowflake.ID          `json:"approver_id,omitempty"`
	ApprovedAt    *time.Time             `json:"approved_at,omitempty"`
	RejectReason  *string                `gorm:"type:text" json:"reject_reason,omitempty"`
	FailureReason *string                `gorm:"type:text" json:"failure_reason,omitempty"`
	// DebitWalletEntry points at the ledger entry written on approval.
	DebitWalletEntry *snowflake.ID `gorm:"column:debit_wallet_entry_id" json:"debit_wallet_entry_id,omitempty"`
	ProcessedAt      *time.Time    `json:"processed_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (WithdrawalRequest) TableName() string { return "withdrawal_requests" }

// CreateRequest carries the fields accepted when requesting a payout.
type CreateRequest struct {
	OwnerType     walletdomain.OwnerType
	OwnerID       snowflake.ID
	Amount        int64
	BankName      string
	AccountNumber string
	AccountHolder string
}

// Service drives the payout request through its workflow.
type Service interface {
	// Create validates amount bounds and available balance but does not
	// debit. Auto-approval, when enabled and the amount is within the
	// configured threshold, debits immediately under the same rules as
	// Approve.
	Create(ctx context.Context, req CreateRequest) (*WithdrawalRequest, error)
	// Approve re-checks the balance and debits in the same unit that
	// flips the status, so the check can never be invalidated by a
	// racing debit.
	Approve(ctx context.Context, id snowflake.ID, approverID snowflake.ID) (*WithdrawalRequest, error)
	Reject(ctx context.Context, id snowflake.ID, approverID snowflake.ID, reason string) (*WithdrawalRequest, error)
	// Cancel is owner-initiated and only legal while pending.
	Cancel(ctx context.Context, id snowflake.ID, ownerID snowflake.ID) (*WithdrawalRequest, error)
	// MarkProcessing / MarkCompleted / MarkFailed map the external
	// payout processor's reports. MarkFailed credits the amount back.
	MarkProcessing(ctx context.Context, id snowflake.ID) (*WithdrawalRequest, error)
	MarkCompleted(ctx context.Context, id snowflake.ID) (*WithdrawalRequest, error)
	MarkFailed(ctx context.Context, id snowflake.ID, reason string) (*WithdrawalRequest, error)
	FindByID(ctx context.Context, id snowflake.ID) (*WithdrawalRequest, error)
	List(ctx context.Context, filter ListFilter) ([]WithdrawalRequest, error)
}

// ListFilter pages payout requests for owner/admin views.
type ListFilter struct {
	Status    Status
	OwnerType walletdomain.OwnerType
	OwnerID   snowflake.ID
	AfterID   snowflake.ID
	Limit     int
}

// Repository is the persistence surface for payout requests.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *WithdrawalRequest) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WithdrawalRequest, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WithdrawalRequest, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]WithdrawalRequest, error)
	Update(ctx context.Context, db *gorm.DB, record *WithdrawalRequest) error
}

var (
	ErrNotFound               = errors.New("withdrawal_not_found")
	ErrInvalidStateTransition = errors.New("invalid_state_transition")
	ErrAmountBelowMinimum     = errors.New("amount_below_minimum")
	ErrAmountAboveMaximum     = errors.New("amount_above_maximum")
	ErrBankDetailsRequired    = errors.New("bank_details_required")
	ErrNotOwner               = errors.New("not_withdrawal_owner")
	ErrReasonRequired         = errors.New("reject_reason_required")
)
