// Package domain holds the payment transaction ledger: one row per
// customer payment event, with per-order breakdown rows for the
// commission split.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/escrow/internal/gateway"
)

// Status is the transaction lifecycle.
type Status string

const (
	StatusPending           Status = "pending"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusCancelled         Status = "cancelled"
)

// Transaction is one customer payment covering one or more orders.
// CommissionRate is snapshotted at creation so later config changes
// never alter an in-flight split.
type Transaction struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	Code             string       `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Status           Status       `gorm:"type:text;not null;default:'pending'" json:"status"`
	TotalAmount      int64        `gorm:"not null" json:"total_amount"`
	CommissionRate   int64        `gorm:"not null" json:"commission_rate"`
	CommissionAmount int64        `gorm:"not null;default:0" json:"commission_amount"`
	ShopAmount       int64        `gorm:"not null;default:0" json:"shop_amount"`
	PaymentURL       string       `gorm:"type:text" json:"payment_url"`
	Provider         string       `gorm:"type:text" json:"provider,omitempty"`
	ProviderEventID  string       `gorm:"type:text" json:"provider_event_id,omitempty"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "transactions" }

// TransactionOrder is the per-order share of a transaction. Commission
// and ShopAmount are filled when the transaction completes; their sums
// always equal the transaction totals.
type TransactionOrder struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	TransactionID snowflake.ID `gorm:"not null;index" json:"transaction_id"`
	OrderID       snowflake.ID `gorm:"not null;uniqueIndex" json:"order_id"`
	ShopID        snowflake.ID `gorm:"not null;index" json:"shop_id"`
	TotalAmount   int64        `gorm:"not null" json:"total_amount"`
	Commission    int64        `gorm:"not null;default:0" json:"commission"`
	ShopAmount    int64        `gorm:"not null;default:0" json:"shop_amount"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (TransactionOrder) TableName() string { return "transaction_orders" }

// Service captures payments and realizes the commission split.
type Service interface {
	// CreatePaymentLink opens a pending transaction for the given orders
	// and returns it with a hosted-checkout URL.
	CreatePaymentLink(ctx context.Context, orderIDs []snowflake.ID) (*Transaction, error)

	// IngestWebhook verifies, parses and dispatches one gateway callback.
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers map[string][]string) error

	// Complete credits every shop's pending balance and the platform
	// commission as one atomic unit. Redelivered callbacks are detected
	// by transaction status and return success without re-crediting.
	Complete(ctx context.Context, event *gateway.Event) (*Transaction, error)

	FindByID(ctx context.Context, id snowflake.ID) (*Transaction, error)
	FindByCode(ctx context.Context, code string) (*Transaction, error)
	BreakdownForOrder(ctx context.Context, orderID snowflake.ID) (*TransactionOrder, error)
}

var (
	ErrNoOrders            = errors.New("no_orders")
	ErrOrderNotFound       = errors.New("order_not_found")
	ErrOrderNotPayable     = errors.New("order_not_payable")
	ErrOrderAlreadyLinked  = errors.New("order_already_linked")
	ErrTransactionNotFound = errors.New("transaction_not_found")
	ErrAmountMismatch      = errors.New("amount_mismatch")
	ErrInvalidState        = errors.New("invalid_transaction_state")
)
