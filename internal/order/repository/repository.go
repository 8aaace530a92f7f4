package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/escrow/internal/order/domain"
	"gorm.io/gorm"
)

type Repository struct{}

func Provide() orderdomain.Repository {
	return &Repository{}
}

func (r *Repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*orderdomain.Order, error) {
	var order orderdomain.Order
	if err := db.WithContext(ctx).Raw(
		`SELECT * FROM orders WHERE id = ?`,
		id,
	).Scan(&order).Error; err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *Repository) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]orderdomain.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var orders []orderdomain.Order
	if err := db.WithContext(ctx).Raw(
		`SELECT * FROM orders WHERE id IN ? ORDER BY id ASC`,
		ids,
	).Scan(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *Repository) ListReleasable(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]orderdomain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT * FROM orders
		 WHERE payment_status = ?
		   AND fulfilment_status = ?
		   AND balance_released = ?
		   AND completed_at IS NOT NULL
		   AND completed_at <= ?
		 ORDER BY completed_at ASC, id ASC
		 LIMIT ?` + skipLocked(db)
	var orders []orderdomain.Order
	if err := db.WithContext(ctx).Raw(
		query,
		orderdomain.PaymentPaid,
		orderdomain.FulfilmentCompleted,
		false,
		cutoff,
		limit,
	).Scan(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *Repository) MarkBalanceReleased(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET balance_released = ?, updated_at = ?
		 WHERE id = ? AND balance_released = ?`,
		true,
		now,
		id,
		false,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// skipLocked keeps concurrent scheduler instances from contending on the
// same batch. sqlite (tests) has no row locks.
func skipLocked(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE SKIP LOCKED"
}
