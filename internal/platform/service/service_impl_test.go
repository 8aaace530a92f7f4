package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	platformdomain "github.com/smallbiznis/escrow/internal/platform/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupPlatformTestDB(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&platformdomain.Config{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(4)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return db, node
}

func seedPlatformConfig(t *testing.T, db *gorm.DB, node *snowflake.Node) {
	t.Helper()
	now := time.Now().UTC()
	if err := db.Create(&platformdomain.Config{
		ID:                       node.Generate(),
		CommissionRate:           5,
		HoldingDays:              7,
		MinWithdrawalAmount:      10_000,
		MaxWithdrawalAmount:      100_000_000,
		SellerRefundResponseHour: 48,
		MaxRefundDays:            14,
		CreatedAt:                now,
		UpdatedAt:                now,
	}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestPlatformGetUnseeded(t *testing.T) {
	db, _ := setupPlatformTestDB(t)
	svc := NewService(Params{DB: db, Log: zap.NewNop()})

	_, err := svc.Get(context.Background())
	if !errors.Is(err, platformdomain.ErrNotSeeded) {
		t.Fatalf("expected not seeded, got %v", err)
	}
}

func TestPlatformUpdateAppliesOnlyGivenFields(t *testing.T) {
	db, node := setupPlatformTestDB(t)
	seedPlatformConfig(t, db, node)
	svc := NewService(Params{DB: db, Log: zap.NewNop()})

	updated, err := svc.Update(context.Background(), platformdomain.Update{
		CommissionRate: int64Ptr(8),
		HoldingDays:    intPtr(10),
		UpdatedBy:      "admin-99",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.CommissionRate != 8 || updated.HoldingDays != 10 {
		t.Fatalf("expected 8%% / 10d, got %d%% / %dd", updated.CommissionRate, updated.HoldingDays)
	}
	if updated.MinWithdrawalAmount != 10_000 {
		t.Fatalf("untouched field must keep its value, got %d", updated.MinWithdrawalAmount)
	}
	if updated.UpdatedBy == nil || *updated.UpdatedBy != "admin-99" {
		t.Fatalf("update must record the actor, got %v", updated.UpdatedBy)
	}
}

func TestPlatformUpdateValidatesRanges(t *testing.T) {
	db, node := setupPlatformTestDB(t)
	seedPlatformConfig(t, db, node)
	svc := NewService(Params{DB: db, Log: zap.NewNop()})
	ctx := context.Background()

	cases := []struct {
		name   string
		update platformdomain.Update
		want   error
	}{
		{"commission above 100", platformdomain.Update{CommissionRate: int64Ptr(101)}, platformdomain.ErrInvalidCommissionRate},
		{"negative holding days", platformdomain.Update{HoldingDays: intPtr(-1)}, platformdomain.ErrInvalidHoldingDays},
		{"holding days above 90", platformdomain.Update{HoldingDays: intPtr(91)}, platformdomain.ErrInvalidHoldingDays},
		{"max below min", platformdomain.Update{MaxWithdrawalAmount: int64Ptr(5_000)}, platformdomain.ErrInvalidWithdrawalMax},
		{"response hours zero", platformdomain.Update{SellerRefundResponseHour: intPtr(0)}, platformdomain.ErrInvalidResponseHours},
		{"response hours above a week", platformdomain.Update{SellerRefundResponseHour: intPtr(169)}, platformdomain.ErrInvalidResponseHours},
		{"negative refund days", platformdomain.Update{MaxRefundDays: intPtr(-1)}, platformdomain.ErrInvalidRefundDays},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Update(ctx, tc.update); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	cfg, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cfg.CommissionRate != 5 {
		t.Fatalf("rejected updates must not persist, rate %d", cfg.CommissionRate)
	}
}

func TestPlatformUpdateInvalidatesCache(t *testing.T) {
	db, node := setupPlatformTestDB(t)
	seedPlatformConfig(t, db, node)
	svc := NewService(Params{DB: db, Log: zap.NewNop()})
	ctx := context.Background()

	first, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.CommissionRate != 5 {
		t.Fatalf("expected seeded rate 5, got %d", first.CommissionRate)
	}

	if _, err := svc.Update(ctx, platformdomain.Update{CommissionRate: int64Ptr(12)}); err != nil {
		t.Fatalf("update: %v", err)
	}

	second, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if second.CommissionRate != 12 {
		t.Fatalf("stale cache served after update, rate %d", second.CommissionRate)
	}
}
