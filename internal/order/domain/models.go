// Package domain mirrors the order subsystem's rows. The settlement core
// reads orders and owns exactly one column: balance_released.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PaymentStatus values written by the order subsystem.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// FulfilmentStatus values written by the order subsystem.
type FulfilmentStatus string

const (
	FulfilmentProcessing FulfilmentStatus = "processing"
	FulfilmentShipped    FulfilmentStatus = "shipped"
	FulfilmentCompleted  FulfilmentStatus = "completed"
	FulfilmentCancelled  FulfilmentStatus = "cancelled"
)

// Order is the read model consumed by settlement.
type Order struct {
	ID               snowflake.ID     `gorm:"primaryKey" json:"id"`
	ShopID           snowflake.ID     `gorm:"not null;index" json:"shop_id"`
	CustomerID       snowflake.ID     `gorm:"not null;index" json:"customer_id"`
	Amount           int64            `gorm:"not null" json:"amount"`
	PaymentStatus    PaymentStatus    `gorm:"type:text;not null" json:"payment_status"`
	FulfilmentStatus FulfilmentStatus `gorm:"type:text;not null" json:"fulfilment_status"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	BalanceReleased  bool             `gorm:"not null;default:false" json:"balance_released"`
	CreatedAt        time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// Repository reads orders and flips the release flag.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Order, error)
	// ListReleasable locks a batch of paid, completed, unreleased orders
	// whose completion predates the cutoff.
	ListReleasable(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Order, error)
	// MarkBalanceReleased is idempotent: it only flips false to true and
	// reports whether this call did the flip.
	MarkBalanceReleased(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}

var ErrOrderNotFound = errors.New("order_not_found")
