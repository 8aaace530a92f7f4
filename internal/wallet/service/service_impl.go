package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	walletdomain "github.com/smallbiznis/escrow/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) walletdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("wallet.service"),
		genID: p.GenID,
	}
}

func (s *Service) Credit(ctx context.Context, m walletdomain.Mutation) (*walletdomain.Entry, error) {
	var entry *walletdomain.Entry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.mutate(ctx, tx, m, 1)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) Debit(ctx context.Context, m walletdomain.Mutation) (*walletdomain.Entry, error) {
	var entry *walletdomain.Entry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.mutate(ctx, tx, m, -1)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, m walletdomain.Mutation) (*walletdomain.Entry, error) {
	return s.mutate(ctx, tx, m, 1)
}

func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, m walletdomain.Mutation) (*walletdomain.Entry, error) {
	return s.mutate(ctx, tx, m, -1)
}

func (s *Service) ReleasePending(ctx context.Context, ownerType walletdomain.OwnerType, ownerID snowflake.ID, amount int64, referenceType string, referenceID snowflake.ID, description string) (*walletdomain.Entry, error) {
	var entry *walletdomain.Entry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.ReleasePendingTx(ctx, tx, ownerType, ownerID, amount, referenceType, referenceID, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) ReleasePendingTx(ctx context.Context, tx *gorm.DB, ownerType walletdomain.OwnerType, ownerID snowflake.ID, amount int64, referenceType string, referenceID snowflake.ID, description string) (*walletdomain.Entry, error) {
	if ownerType == "" || ownerID == 0 {
		return nil, walletdomain.ErrInvalidOwner
	}
	if amount <= 0 {
		return nil, walletdomain.ErrInvalidAmount
	}

	w, err := s.lockWallet(ctx, tx, ownerType, ownerID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, walletdomain.ErrWalletNotFound
	}
	if w.PendingBalance < amount {
		return nil, walletdomain.ErrInsufficientBalance
	}

	now := time.Now().UTC()
	before := w.AvailableBalance + w.PendingBalance
	w.PendingBalance -= amount
	w.AvailableBalance += amount

	entry := &walletdomain.Entry{
		ID:             s.genID.Generate(),
		WalletID:       w.ID,
		Type:           walletdomain.EntryBalanceRelease,
		Amount:         0,
		AvailableDelta: amount,
		PendingDelta:   -amount,
		BalanceBefore:  before,
		BalanceAfter:   before,
		ReferenceType:  referenceType,
		ReferenceID:    referenceID,
		Description:    strings.TrimSpace(description),
		CreatedAt:      now,
	}

	if err := s.persist(ctx, tx, w, entry, now); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) Summary(ctx context.Context, ownerType walletdomain.OwnerType, ownerID snowflake.ID) (*walletdomain.Summary, error) {
	if ownerType == "" || ownerID == 0 {
		return nil, walletdomain.ErrInvalidOwner
	}

	var w walletdomain.Wallet
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM wallets WHERE owner_type = ? AND owner_id = ?`,
		ownerType,
		ownerID,
	).Scan(&w).Error
	if err != nil {
		return nil, err
	}
	if w.ID == 0 {
		// An owner that was never credited reads as an empty wallet.
		return &walletdomain.Summary{OwnerType: ownerType, OwnerID: ownerID}, nil
	}

	return &walletdomain.Summary{
		OwnerType:        w.OwnerType,
		OwnerID:          w.OwnerID,
		AvailableBalance: w.AvailableBalance,
		PendingBalance:   w.PendingBalance,
		TotalEarned:      w.TotalEarned,
		TotalWithdrawn:   w.TotalWithdrawn,
		TotalRefunded:    w.TotalRefunded,
		LastUpdated:      w.UpdatedAt,
	}, nil
}

func (s *Service) Entries(ctx context.Context, ownerType walletdomain.OwnerType, ownerID snowflake.ID, afterID snowflake.ID, limit int) ([]walletdomain.Entry, error) {
	if ownerType == "" || ownerID == 0 {
		return nil, walletdomain.ErrInvalidOwner
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var entries []walletdomain.Entry
	err := s.db.WithContext(ctx).Raw(
		`SELECT e.* FROM wallet_entries e
		 JOIN wallets w ON w.id = e.wallet_id
		 WHERE w.owner_type = ? AND w.owner_id = ? AND e.id > ?
		 ORDER BY e.id ASC
		 LIMIT ?`,
		ownerType,
		ownerID,
		afterID,
		limit,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) mutate(ctx context.Context, tx *gorm.DB, m walletdomain.Mutation, sign int64) (*walletdomain.Entry, error) {
	if err := validateMutation(m); err != nil {
		return nil, err
	}

	w, err := s.lockWallet(ctx, tx, m.OwnerType, m.OwnerID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if w == nil {
		if sign < 0 {
			return nil, walletdomain.ErrWalletNotFound
		}
		w = &walletdomain.Wallet{
			ID:        s.genID.Generate(),
			OwnerType: m.OwnerType,
			OwnerID:   m.OwnerID,
			CreatedAt: now,
		}
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO wallets (id, owner_type, owner_id, available_balance, pending_balance,
			                      total_earned, total_withdrawn, total_refunded, created_at, updated_at)
			 VALUES (?, ?, ?, 0, 0, 0, 0, 0, ?, ?)`,
			w.ID, w.OwnerType, w.OwnerID, now, now,
		).Error; err != nil {
			return nil, err
		}
	}

	delta := sign * m.Amount
	before := w.AvailableBalance + w.PendingBalance

	switch m.Balance {
	case walletdomain.BalanceAvailable:
		if w.AvailableBalance+delta < 0 {
			return nil, walletdomain.ErrInsufficientBalance
		}
		w.AvailableBalance += delta
	case walletdomain.BalancePending:
		if w.PendingBalance+delta < 0 {
			return nil, walletdomain.ErrInsufficientBalance
		}
		w.PendingBalance += delta
	default:
		return nil, walletdomain.ErrInvalidBalance
	}

	applyTotals(w, m.Type, delta)

	entry := &walletdomain.Entry{
		ID:            s.genID.Generate(),
		WalletID:      w.ID,
		Type:          m.Type,
		Amount:        delta,
		BalanceBefore: before,
		BalanceAfter:  before + delta,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		Description:   strings.TrimSpace(m.Description),
		CreatedAt:     now,
	}
	if m.Balance == walletdomain.BalanceAvailable {
		entry.AvailableDelta = delta
	} else {
		entry.PendingDelta = delta
	}

	if err := s.persist(ctx, tx, w, entry, now); err != nil {
		return nil, err
	}
	return entry, nil
}

// applyTotals keeps the running totals consistent with the mutation. A
// withdrawal credit is the compensating reversal of a failed payout.
func applyTotals(w *walletdomain.Wallet, entryType walletdomain.EntryType, delta int64) {
	switch entryType {
	case walletdomain.EntryOrderRevenue, walletdomain.EntryPayment:
		if delta > 0 {
			w.TotalEarned += delta
		}
	case walletdomain.EntryWithdrawal:
		w.TotalWithdrawn -= delta
	case walletdomain.EntryRefund:
		if delta < 0 {
			w.TotalRefunded += -delta
		} else {
			w.TotalRefunded += delta
		}
	}
}

func (s *Service) persist(ctx context.Context, tx *gorm.DB, w *walletdomain.Wallet, entry *walletdomain.Entry, now time.Time) error {
	if err := tx.WithContext(ctx).Exec(
		`UPDATE wallets
		 SET available_balance = ?, pending_balance = ?,
		     total_earned = ?, total_withdrawn = ?, total_refunded = ?,
		     updated_at = ?
		 WHERE id = ?`,
		w.AvailableBalance,
		w.PendingBalance,
		w.TotalEarned,
		w.TotalWithdrawn,
		w.TotalRefunded,
		now,
		w.ID,
	).Error; err != nil {
		return err
	}

	return tx.WithContext(ctx).Exec(
		`INSERT INTO wallet_entries (id, wallet_id, type, amount, available_delta, pending_delta,
		                             balance_before, balance_after, reference_type, reference_id,
		                             description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.WalletID,
		entry.Type,
		entry.Amount,
		entry.AvailableDelta,
		entry.PendingDelta,
		entry.BalanceBefore,
		entry.BalanceAfter,
		entry.ReferenceType,
		entry.ReferenceID,
		entry.Description,
		entry.CreatedAt,
	).Error
}

func (s *Service) lockWallet(ctx context.Context, tx *gorm.DB, ownerType walletdomain.OwnerType, ownerID snowflake.ID) (*walletdomain.Wallet, error) {
	var w walletdomain.Wallet
	query := `SELECT * FROM wallets WHERE owner_type = ? AND owner_id = ?` + forUpdate(tx)
	if err := tx.WithContext(ctx).Raw(query, ownerType, ownerID).Scan(&w).Error; err != nil {
		return nil, err
	}
	if w.ID == 0 {
		return nil, nil
	}
	return &w, nil
}

// forUpdate returns the row-lock suffix. sqlite (used by tests) has no
// row locks and is single-writer, so the suffix is dropped there.
func forUpdate(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}

func validateMutation(m walletdomain.Mutation) error {
	if m.OwnerType != walletdomain.OwnerShop &&
		m.OwnerType != walletdomain.OwnerCustomer &&
		m.OwnerType != walletdomain.OwnerPlatform {
		return walletdomain.ErrInvalidOwner
	}
	if m.OwnerID == 0 {
		return walletdomain.ErrInvalidOwner
	}
	if m.Amount <= 0 {
		return walletdomain.ErrInvalidAmount
	}
	if m.Type == "" {
		return walletdomain.ErrInvalidEntryType
	}
	if m.Balance != walletdomain.BalanceAvailable && m.Balance != walletdomain.BalancePending {
		return walletdomain.ErrInvalidBalance
	}
	return nil
}
