package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	refunddomain "github.com/smallbiznis/escrow/internal/refund/domain"
	"gorm.io/gorm"
)

type Repository struct{}

func Provide() refunddomain.Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, db *gorm.DB, record *refunddomain.RefundRequest) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *Repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*refunddomain.RefundRequest, error) {
	return r.findOne(ctx, db, `SELECT * FROM refund_requests WHERE id = ?`, id)
}

func (r *Repository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*refunddomain.RefundRequest, error) {
	query := `SELECT * FROM refund_requests WHERE id = ?` + forUpdate(db)
	return r.findOne(ctx, db, query, id)
}

func (r *Repository) FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*refunddomain.RefundRequest, error) {
	return r.findOne(ctx, db, `SELECT * FROM refund_requests WHERE order_id = ?`, orderID)
}

func (r *Repository) OpenExists(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM refund_requests
		 WHERE order_id = ? AND status IN (?, ?)`,
		orderID,
		refunddomain.StatusPendingShop,
		refunddomain.StatusPendingAdmin,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) ListStalledPendingShop(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]refunddomain.RefundRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT * FROM refund_requests
		 WHERE status = ? AND created_at <= ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?` + skipLocked(db)
	var records []refunddomain.RefundRequest
	if err := db.WithContext(ctx).Raw(
		query,
		refunddomain.StatusPendingShop,
		cutoff,
		limit,
	).Scan(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Repository) List(ctx context.Context, db *gorm.DB, filter refunddomain.ListFilter) ([]refunddomain.RefundRequest, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := db.WithContext(ctx).Table("refund_requests")
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ShopID != 0 {
		query = query.Where("shop_id = ?", filter.ShopID)
	}
	if filter.AfterID != 0 {
		query = query.Where("id > ?", filter.AfterID)
	}

	var records []refunddomain.RefundRequest
	if err := query.Order("id ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Repository) Update(ctx context.Context, db *gorm.DB, record *refunddomain.RefundRequest) error {
	record.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(record).Error
}

func (r *Repository) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*refunddomain.RefundRequest, error) {
	var record refunddomain.RefundRequest
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&record).Error; err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func forUpdate(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}

func skipLocked(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE SKIP LOCKED"
}
