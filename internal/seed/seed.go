// Package seed bootstraps the singleton platform configuration row.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	platformdomain "github.com/smallbiznis/escrow/internal/platform/domain"
	"gorm.io/gorm"
)

// Startup defaults applied only when no configuration row exists yet.
const (
	defaultCommissionRate     = 5
	defaultHoldingDays        = 7
	defaultMinWithdrawal      = 10_000
	defaultMaxWithdrawal      = 100_000_000
	defaultResponseHours      = 48
	defaultMaxRefundDays      = 14
	defaultAutoApproveLimit   = 0
	defaultAutoApproveEnabled = false
)

// EnsurePlatformConfig inserts the default configuration when the table
// is empty. An existing row, however configured, is left untouched.
func EnsurePlatformConfig(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.WithContext(ctx).Raw(
			`SELECT COUNT(1) FROM platform_configs`,
		).Scan(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		cfg := platformdomain.Config{
			ID:                       node.Generate(),
			CommissionRate:           defaultCommissionRate,
			HoldingDays:              defaultHoldingDays,
			MinWithdrawalAmount:      defaultMinWithdrawal,
			MaxWithdrawalAmount:      defaultMaxWithdrawal,
			AutoApproveWithdrawals:   defaultAutoApproveEnabled,
			AutoApproveThreshold:     defaultAutoApproveLimit,
			SellerRefundResponseHour: defaultResponseHours,
			MaxRefundDays:            defaultMaxRefundDays,
			CreatedAt:                now,
			UpdatedAt:                now,
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return tx.WithContext(ctx).Create(&cfg).Error
	})
}
