package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Mutation describes one balance change. Amount must be positive; the
// credit/debit direction comes from the operation invoked.
type Mutation struct {
	OwnerType     OwnerType
	OwnerID       snowflake.ID
	Amount        int64
	Balance       BalanceComponent
	Type          EntryType
	ReferenceType string
	ReferenceID   snowflake.ID
	Description   string
}

// Service is the only path allowed to change wallet balances. Every
// successful call appends exactly one ledger entry inside the same
// database transaction as the balance update.
type Service interface {
	Credit(ctx context.Context, m Mutation) (*Entry, error)
	Debit(ctx context.Context, m Mutation) (*Entry, error)

	// CreditTx and DebitTx run inside a caller-owned transaction so a
	// multi-wallet split commits or rolls back as one unit.
	CreditTx(ctx context.Context, tx *gorm.DB, m Mutation) (*Entry, error)
	DebitTx(ctx context.Context, tx *gorm.DB, m Mutation) (*Entry, error)

	// ReleasePending moves amount from pending to available under one
	// wallet lock with a single balance_release entry, so the pair
	// never observably sums to a different total mid-operation.
	ReleasePending(ctx context.Context, ownerType OwnerType, ownerID snowflake.ID, amount int64, referenceType string, referenceID snowflake.ID, description string) (*Entry, error)
	ReleasePendingTx(ctx context.Context, tx *gorm.DB, ownerType OwnerType, ownerID snowflake.ID, amount int64, referenceType string, referenceID snowflake.ID, description string) (*Entry, error)

	Summary(ctx context.Context, ownerType OwnerType, ownerID snowflake.ID) (*Summary, error)
	Entries(ctx context.Context, ownerType OwnerType, ownerID snowflake.ID, afterID snowflake.ID, limit int) ([]Entry, error)
}

var (
	ErrInvalidOwner        = errors.New("invalid_wallet_owner")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidEntryType    = errors.New("invalid_entry_type")
	ErrInvalidBalance      = errors.New("invalid_balance_component")
	ErrWalletNotFound      = errors.New("wallet_not_found")
	ErrInsufficientBalance = errors.New("insufficient_balance")
)
