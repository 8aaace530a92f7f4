// Package domain holds the platform-wide settlement configuration.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Config is the single mutable record of business-tunable settlement
// parameters. Exactly one row exists; every component reads it through
// the service and only the admin update path writes it.
type Config struct {
	ID                       snowflake.ID `gorm:"primaryKey" json:"id"`
	CommissionRate           int64        `gorm:"not null" json:"commission_rate"`
	HoldingDays              int          `gorm:"not null" json:"holding_days"`
	MinWithdrawalAmount      int64        `gorm:"not null" json:"min_withdrawal_amount"`
	MaxWithdrawalAmount      int64        `gorm:"not null" json:"max_withdrawal_amount"`
	AutoApproveWithdrawals   bool         `gorm:"not null;default:false" json:"auto_approve_withdrawals"`
	AutoApproveThreshold     int64        `gorm:"not null;default:0" json:"auto_approve_threshold"`
	SellerRefundResponseHour int          `gorm:"column:seller_refund_response_hours;not null" json:"seller_refund_response_hours"`
	MaxRefundDays            int          `gorm:"not null" json:"max_refund_days"`
	UpdatedBy                *string      `gorm:"type:text" json:"updated_by,omitempty"`
	CreatedAt                time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt                time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Config) TableName() string { return "platform_configs" }

// Update carries the admin-editable fields. Nil means keep current.
type Update struct {
	CommissionRate           *int64
	HoldingDays              *int
	MinWithdrawalAmount      *int64
	MaxWithdrawalAmount      *int64
	AutoApproveWithdrawals   *bool
	AutoApproveThreshold     *int64
	SellerRefundResponseHour *int
	MaxRefundDays            *int
	UpdatedBy                string
}

// Service reads and updates the platform configuration.
type Service interface {
	Get(ctx context.Context) (Config, error)
	Update(ctx context.Context, update Update) (Config, error)
}

var (
	ErrNotSeeded             = errors.New("platform_config_not_seeded")
	ErrInvalidCommissionRate = errors.New("invalid_commission_rate")
	ErrInvalidHoldingDays    = errors.New("invalid_holding_days")
	ErrInvalidWithdrawalMin  = errors.New("invalid_withdrawal_min")
	ErrInvalidWithdrawalMax  = errors.New("invalid_withdrawal_max")
	ErrInvalidResponseHours  = errors.New("invalid_response_hours")
	ErrInvalidRefundDays     = errors.New("invalid_refund_days")
	ErrInvalidThreshold      = errors.New("invalid_auto_approve_threshold")
)

// Validate checks the admin-facing ranges.
func (c Config) Validate() error {
	if c.CommissionRate < 0 || c.CommissionRate > 100 {
		return ErrInvalidCommissionRate
	}
	if c.HoldingDays < 0 || c.HoldingDays > 90 {
		return ErrInvalidHoldingDays
	}
	if c.MinWithdrawalAmount < 0 {
		return ErrInvalidWithdrawalMin
	}
	if c.MaxWithdrawalAmount < c.MinWithdrawalAmount {
		return ErrInvalidWithdrawalMax
	}
	if c.SellerRefundResponseHour < 1 || c.SellerRefundResponseHour > 168 {
		return ErrInvalidResponseHours
	}
	if c.MaxRefundDays < 0 {
		return ErrInvalidRefundDays
	}
	if c.AutoApproveThreshold < 0 {
		return ErrInvalidThreshold
	}
	return nil
}
