// Package domain holds wallet aggregates and their immutable audit trail.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// OwnerType distinguishes the three wallet populations.
type OwnerType string

const (
	OwnerShop     OwnerType = "shop"
	OwnerCustomer OwnerType = "customer"
	OwnerPlatform OwnerType = "platform"
)

// PlatformWalletOwner is the fixed owner id of the single platform
// wallet that collects commission and funds commission refunds.
const PlatformWalletOwner snowflake.ID = 1

// BalanceComponent selects which balance a mutation targets.
type BalanceComponent string

const (
	BalanceAvailable BalanceComponent = "available"
	BalancePending   BalanceComponent = "pending"
)

// EntryType categorizes ledger entries.
type EntryType string

const (
	EntryOrderRevenue   EntryType = "order_revenue"
	EntryWithdrawal     EntryType = "withdrawal"
	EntryRefund         EntryType = "refund"
	EntryAdjustment     EntryType = "adjustment"
	EntryBalanceRelease EntryType = "balance_release"
	EntryPayment        EntryType = "payment"
)

// Wallet is a per-owner balance aggregate. Balances change only through
// the entry-writing mutation path; rows are created lazily on first
// credit and never deleted.
type Wallet struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerType        OwnerType    `gorm:"type:text;not null;uniqueIndex:ux_wallets_owner,priority:1" json:"owner_type"`
	OwnerID          snowflake.ID `gorm:"not null;uniqueIndex:ux_wallets_owner,priority:2" json:"owner_id"`
	AvailableBalance int64        `gorm:"not null;default:0" json:"available_balance"`
	PendingBalance   int64        `gorm:"not null;default:0" json:"pending_balance"`
	TotalEarned      int64        `gorm:"not null;default:0" json:"total_earned"`
	TotalWithdrawn   int64        `gorm:"not null;default:0" json:"total_withdrawn"`
	TotalRefunded    int64        `gorm:"not null;default:0" json:"total_refunded"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"last_updated"`
}

// TableName sets the database table name.
func (Wallet) TableName() string { return "wallets" }

// Entry is one immutable audit row. Amount is the signed change to the
// wallet's combined balance (available + pending); the component deltas
// always sum to Amount, and BalanceBefore/BalanceAfter bracket the
// combined balance so replaying entries in id order reproduces it.
type Entry struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	WalletID       snowflake.ID `gorm:"not null;index" json:"wallet_id"`
	Type           EntryType    `gorm:"type:text;not null" json:"type"`
	Amount         int64        `gorm:"not null" json:"amount"`
	AvailableDelta int64        `gorm:"not null" json:"available_delta"`
	PendingDelta   int64        `gorm:"not null" json:"pending_delta"`
	BalanceBefore  int64        `gorm:"not null" json:"balance_before"`
	BalanceAfter   int64        `gorm:"not null" json:"balance_after"`
	ReferenceType  string       `gorm:"type:text" json:"reference_type"`
	ReferenceID    snowflake.ID `gorm:"index" json:"reference_id"`
	Description    string       `gorm:"type:text" json:"description"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "wallet_entries" }

// Summary is the read model exposed to owners and admins.
type Summary struct {
	OwnerType        OwnerType    `json:"owner_type"`
	OwnerID          snowflake.ID `json:"owner_id"`
	AvailableBalance int64        `json:"available_balance"`
	PendingBalance   int64        `json:"pending_balance"`
	TotalEarned      int64        `json:"total_earned"`
	TotalWithdrawn   int64        `json:"total_withdrawn"`
	TotalRefunded    int64        `json:"total_refunded"`
	LastUpdated      time.Time    `json:"last_updated"`
}
