package service

import (
	"context"
	"time"

	"github.com/smallbiznis/escrow/internal/cache"
	platformdomain "github.com/smallbiznis/escrow/internal/platform/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const configCacheTTL = 30 * time.Second

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cache cache.Cache[string, platformdomain.Config] `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	cache cache.Cache[string, platformdomain.Config]
}

func NewService(p Params) platformdomain.Service {
	c := p.Cache
	if c == nil {
		c = cache.NewTTLCache[string, platformdomain.Config]()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("platform.service"),
		cache: c,
	}
}

const cacheKey = "platform_config"

func (s *Service) Get(ctx context.Context) (platformdomain.Config, error) {
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached, nil
	}

	var cfg platformdomain.Config
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM platform_configs ORDER BY id LIMIT 1`,
	).Scan(&cfg).Error
	if err != nil {
		return platformdomain.Config{}, err
	}
	if cfg.ID == 0 {
		return platformdomain.Config{}, platformdomain.ErrNotSeeded
	}

	s.cache.Set(cacheKey, cfg, configCacheTTL)
	return cfg, nil
}

func (s *Service) Update(ctx context.Context, update platformdomain.Update) (platformdomain.Config, error) {
	var out platformdomain.Config
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cfg platformdomain.Config
		if err := tx.WithContext(ctx).Raw(
			`SELECT * FROM platform_configs ORDER BY id LIMIT 1`+forUpdate(tx),
		).Scan(&cfg).Error; err != nil {
			return err
		}
		if cfg.ID == 0 {
			return platformdomain.ErrNotSeeded
		}

		apply(&cfg, update)
		if err := cfg.Validate(); err != nil {
			return err
		}

		now := time.Now().UTC()
		cfg.UpdatedAt = now
		if update.UpdatedBy != "" {
			updatedBy := update.UpdatedBy
			cfg.UpdatedBy = &updatedBy
		}

		if err := tx.WithContext(ctx).Exec(
			`UPDATE platform_configs
			 SET commission_rate = ?, holding_days = ?,
			     min_withdrawal_amount = ?, max_withdrawal_amount = ?,
			     auto_approve_withdrawals = ?, auto_approve_threshold = ?,
			     seller_refund_response_hours = ?, max_refund_days = ?,
			     updated_by = ?, updated_at = ?
			 WHERE id = ?`,
			cfg.CommissionRate,
			cfg.HoldingDays,
			cfg.MinWithdrawalAmount,
			cfg.MaxWithdrawalAmount,
			cfg.AutoApproveWithdrawals,
			cfg.AutoApproveThreshold,
			cfg.SellerRefundResponseHour,
			cfg.MaxRefundDays,
			cfg.UpdatedBy,
			cfg.UpdatedAt,
			cfg.ID,
		).Error; err != nil {
			return err
		}
		out = cfg
		return nil
	})
	if err != nil {
		return platformdomain.Config{}, err
	}

	s.cache.Delete(cacheKey)
	s.log.Info("platform config updated",
		zap.Int64("commission_rate", out.CommissionRate),
		zap.Int("holding_days", out.HoldingDays),
		zap.String("updated_by", update.UpdatedBy),
	)
	return out, nil
}

// forUpdate returns the row-lock suffix. sqlite (used by tests) has no
// row locks and is single-writer, so the suffix is dropped there.
func forUpdate(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}

func apply(cfg *platformdomain.Config, update platformdomain.Update) {
	if update.CommissionRate != nil {
		cfg.CommissionRate = *update.CommissionRate
	}
	if update.HoldingDays != nil {
		cfg.HoldingDays = *update.HoldingDays
	}
	if update.MinWithdrawalAmount != nil {
		cfg.MinWithdrawalAmount = *update.MinWithdrawalAmount
	}
	if update.MaxWithdrawalAmount != nil {
		cfg.MaxWithdrawalAmount = *update.MaxWithdrawalAmount
	}
	if update.AutoApproveWithdrawals != nil {
		cfg.AutoApproveWithdrawals = *update.AutoApproveWithdrawals
	}
	if update.AutoApproveThreshold != nil {
		cfg.AutoApproveThreshold = *update.AutoApproveThreshold
	}
	if update.SellerRefundResponseHour != nil {
		cfg.SellerRefundResponseHour = *update.SellerRefundResponseHour
	}
	if update.MaxRefundDays != nil {
		cfg.MaxRefundDays = *update.MaxRefundDays
	}
}
