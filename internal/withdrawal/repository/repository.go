package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	withdrawaldomain "github.com/smallbiznis/escrow/internal/withdrawal/domain"
	"gorm.io/gorm"
)

type Repository struct{}

func Provide() withdrawaldomain.Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, db *gorm.DB, record *withdrawaldomain.WithdrawalRequest) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *Repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*withdrawaldomain.WithdrawalRequest, error) {
	return r.findOne(ctx, db, `SELECT * FROM withdrawal_requests WHERE id = ?`, id)
}

func (r *Repository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*withdrawaldomain.WithdrawalRequest, error) {
	query := `SELECT * FROM withdrawal_requests WHERE id = ?` + forUpdate(db)
	return r.findOne(ctx, db, query, id)
}

func (r *Repository) List(ctx context.Context, db *gorm.DB, filter withdrawaldomain.ListFilter) ([]withdrawaldomain.WithdrawalRequest, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := db.WithContext(ctx).Table("withdrawal_requests")
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.OwnerType != "" {
		query = query.Where("owner_type = ?", filter.OwnerType)
	}
	if filter.OwnerID != 0 {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.AfterID != 0 {
		query = query.Where("id > ?", filter.AfterID)
	}

	var records []withdrawaldomain.WithdrawalRequest
	if err := query.Order("id ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Repository) Update(ctx context.Context, db *gorm.DB, record *withdrawaldomain.WithdrawalRequest) error {
	record.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(record).Error
}

func (r *Repository) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*withdrawaldomain.WithdrawalRequest, error) {
	var record withdrawaldomain.WithdrawalRequest
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
