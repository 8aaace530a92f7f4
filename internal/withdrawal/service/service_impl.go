package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/escrow/internal/audit/domain"
	"github.com/smallbiznis/escrow/internal/clock"
	"github.com/smallbiznis/escrow/internal/events"
	"github.com/smallbiznis/escrow/internal/observability/logger"
	platformdomain "github.com/smallbiznis/escrow/internal/platform/domain"
	walletdomain "github.com/smallbiznis/escrow/internal/wallet/domain"
	withdrawaldomain "github.com/smallbiznis/escrow/internal/withdrawal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        withdrawaldomain.Repository
	WalletSvc   walletdomain.Service
	PlatformSvc platformdomain.Service
	Outbox      *events.Outbox
	AuditSvc    auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        withdrawaldomain.Repository
	walletSvc   walletdomain.Service
	platformSvc platformdomain.Service
	outbox      *events.Outbox
	auditSvc    auditdomain.Service
}

func NewService(p Params) withdrawaldomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("withdrawal.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		walletSvc:   p.WalletSvc,
		platformSvc: p.PlatformSvc,
		outbox:      p.Outbox,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req withdrawaldomain.CreateRequest) (*withdrawaldomain.WithdrawalRequest, error) {
	if strings.TrimSpace(req.BankName) == "" ||
		strings.TrimSpace(req.AccountNumber) == "" ||
		strings.TrimSpace(req.AccountHolder) == "" {
		return nil, withdrawaldomain.ErrBankDetailsRequired
	}
	if req.OwnerType != walletdomain.OwnerShop && req.OwnerType != walletdomain.OwnerCustomer {
		return nil, walletdomain.ErrInvalidOwner
	}

	platformCfg, err := s.platformSvc.Get(ctx)
	if err != nil {
		return nil, err
	}
	if req.Amount < platformCfg.MinWithdrawalAmount {
		return nil, withdrawaldomain.ErrAmountBelowMinimum
	}
	if platformCfg.MaxWithdrawalAmount > 0 && req.Amount > platformCfg.MaxWithdrawalAmount {
		return nil, withdrawaldomain.ErrAmountAboveMaximum
	}

	// Balance check only. Funds stay in the wallet until approval so a
	// rejected or cancelled request never needs compensation.
	summary, err := s.walletSvc.Summary(ctx, req.OwnerType, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if summary.AvailableBalance < req.Amount {
		return nil, walletdomain.ErrInsufficientBalance
	}

	now := s.clock.Now()
	record := withdrawaldomain.WithdrawalRequest{
		ID:            s.genID.Generate(),
		OwnerType:     req.OwnerType,
		OwnerID:       req.OwnerID,
		Amount:        req.Amount,
		BankName:      strings.TrimSpace(req.BankName),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		AccountHolder: strings.TrimSpace(req.AccountHolder),
		Status:        withdrawaldomain.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, &record); err != nil {
		return nil, err
	}

	s.log.Info("withdrawal requested",
		zap.String("withdrawal_id", record.ID.String()),
		zap.String("owner_id", record.OwnerID.String()),
		zap.Int64("amount", record.Amount),
		zap.String("bank_account", logger.MaskBankAccount(record.AccountNumber)),
	)

	if platformCfg.AutoApproveWithdrawals && record.Amount <= platformCfg.AutoApproveThreshold {
		approved, err := s.approve(ctx, record.ID, nil)
		if err != nil {
			// The request stays pending for a manual decision.
			s.log.Warn("auto-approval failed, left pending",
				zap.String("withdrawal_id", record.ID.String()),
				zap.Error(err),
			)
			return &record, nil
		}
		return approved, nil
	}
	return &record, nil
}

func (s *Service) Approve(ctx context.Context, id snowflake.ID, approverID snowflake.ID) (*withdrawaldomain.WithdrawalRequest, error) {
	return s.approve(ctx, id, &approverID)
}

// approve flips pending to approved and debits the available balance in
// one transaction. A nil approver marks the system auto-approval path.
func (s *Service) approve(ctx context.Context, id snowflake.ID, approverID *snowflake.ID) (*withdrawaldomain.WithdrawalRequest, error) {
	var out withdrawaldomain.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if record == nil {
			return withdrawaldomain.ErrNotFound
		}
		if record.Status != withdrawaldomain.StatusPending {
			return withdrawaldomain.ErrInvalidStateTransition
		}

		entry, err := s.walletSvc.DebitTx(ctx, tx, walletdomain.Mutation{
			OwnerType:     record.OwnerType,
			OwnerID:       record.OwnerID,
			Amount:        record.Amount,
			Balance:       walletdomain.BalanceAvailable,
			Type:          walletdomain.EntryWithdrawal,
			ReferenceType: "withdrawal_request",
			ReferenceID:   record.ID,
			Description:   fmt.Sprintf("withdrawal to %s", record.BankName),
		})
		if err != nil {
			return err
		}

		now := s.clock.Now()
		entryID := entry.ID
		record.Status = withdrawaldomain.StatusApproved
		record.ApproverID = approverID
		record.ApprovedAt = &now
		record.AutoApproved = approverID == nil
		record.DebitWalletEntry = &entryID
		if err := s.repo.Update(ctx, tx, record); err != nil {
			return err
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventWithdrawalApproved,
			Payload: map[string]any{
				"withdrawal_id": record.ID.String(),
				"owner_id":      record.OwnerID.String(),
				"amount":        record.Amount,
				"auto_approved": record.AutoApproved,
			},
			DedupeKey: "withdrawal.approved:" + record.ID.String(),
		}); err != nil {
			return err
		}
		out = *record
		return nil
	})
	if err != nil {
		return nil, err
	}

	actorType := auditdomain.ActorTypeSystem
	var actorID *string
	if approverID != nil {
		actorType = auditdomain.ActorTypeAdmin
		idStr := approverID.String()
		actorID = &idStr
	}
	targetID := out.ID.String()
	_ = s.auditSvc.AuditLog(ctx, actorType, actorID, "withdrawal.approve", "withdrawal_request", &targetID, map[string]any{
		"amount":        out.Amount,
		"auto_approved": out.AutoApproved,
	})
	return &out, nil
}

func (s *Service) Reject(ctx context.Context, id snowflake.ID, approverID snowflake.ID, reason string) (*withdrawaldomain.WithdrawalRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, withdrawaldomain.ErrReasonRequired
	}

	var out withdrawaldomain.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if record == nil {
			return withdrawaldomain.ErrNotFound
		}
		if record.Status != withdrawaldomain.StatusPending {
			return withdrawaldomain.ErrInvalidStateTransition
		}
		record.Status = withdrawaldomain.StatusRejected
		record.ApproverID = &approverID
		record.RejectReason = &reason
		if err := s.repo.Update(ctx, tx, record); err != nil {
			return err
		}
		out = *record
		return nil
	})
	if err != nil {
		return nil, err
	}

	actorID := approverID.String()
	targetID := out.ID.String()
	_ = s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeAdmin, &actorID, "withdrawal.reject", "withdrawal_request", &targetID, map[string]any{
		"reason": reason,
	})
	return &out, nil
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID, ownerID snowflake.ID) (*withdrawaldomain.WithdrawalRequest, error) {
	var out withdrawaldomain.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if record == nil {
			return withdrawaldomain.ErrNotFound
		}
		if record.OwnerID != ownerID {
			return withdrawaldomain.ErrNotOwner
		}
		if record.Status != withdrawaldomain.StatusPending {
			return withdrawaldomain.ErrInvalidStateTransition
		}
		record.Status = withdrawaldomain.StatusCancelled
		if err := s.repo.Update(ctx, tx, record); err != nil {
			return err
		}
		out = *record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) MarkProcessing(ctx context.Context, id snowflake.ID) (*withdrawaldomain.WithdrawalRequest, error) {
	return s.transition(ctx, id, withdrawaldomain.StatusApproved, func(record *withdrawaldomain.WithdrawalRequest, now time.Time) {
		record.Status = withdrawaldomain.StatusProcessing
		record.ProcessedAt = &now
	}, nil)
}

func (s *Service) MarkCompleted(ctx context.Context, id snowflake.ID) (*withdrawaldomain.WithdrawalRequest, error) {
	return s.transition(ctx, id, withdrawaldomain.StatusProcessing, func(record *withdrawaldomain.WithdrawalRequest, now time.Time) {
		record.Status = withdrawaldomain.StatusCompleted
		record.CompletedAt = &now
	}, func(tx *gorm.DB, record *withdrawaldomain.WithdrawalRequest) error {
		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventWithdrawalCompleted,
			Payload: map[string]any{
				"withdrawal_id": record.ID.String(),
				"owner_id":      record.OwnerID.String(),
				"amount":        record.Amount,
			},
			DedupeKey: "withdrawal.completed:" + record.ID.String(),
		})
	})
}

func (s *Service) MarkFailed(ctx context.Context, id snowflake.ID, reason string) (*withdrawaldomain.WithdrawalRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, withdrawaldomain.ErrReasonRequired
	}
	return s.transition(ctx, id, withdrawaldomain.StatusProcessing, func(record *withdrawaldomain.WithdrawalRequest, now time.Time) {
		record.Status = withdrawaldomain.StatusFailed
		record.FailureReason = &reason
	}, func(tx *gorm.DB, record *withdrawaldomain.WithdrawalRequest) error {
		// The payout never left, so the debited amount goes back.
		if _, err := s.walletSvc.CreditTx(ctx, tx, walletdomain.Mutation{
			OwnerType:     record.OwnerType,
			OwnerID:       record.OwnerID,
			Amount:        record.Amount,
			Balance:       walletdomain.BalanceAvailable,
			Type:          walletdomain.EntryWithdrawal,
			ReferenceType: "withdrawal_request",
			ReferenceID:   record.ID,
			Description:   "withdrawal failed, amount returned",
		}); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventWithdrawalFailed,
			Payload: map[string]any{
				"withdrawal_id": record.ID.String(),
				"owner_id":      record.OwnerID.String(),
				"amount":        record.Amount,
				"reason":        reason,
			},
			DedupeKey: "withdrawal.failed:" + record.ID.String(),
		})
	})
}

// transition applies one guarded status change under a row lock. The
// optional sideEffect runs inside the same transaction.
func (s *Service) transition(
	ctx context.Context,
	id snowflake.ID,
	from withdrawaldomain.Status,
	apply func(record *withdrawaldomain.WithdrawalRequest, now time.Time),
	sideEffect func(tx *gorm.DB, record *withdrawaldomain.WithdrawalRequest) error,
) (*withdrawaldomain.WithdrawalRequest, error) {
	var out withdrawaldomain.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if record == nil {
			return withdrawaldomain.ErrNotFound
		}
		if record.Status != from {
			return withdrawaldomain.ErrInvalidStateTransition
		}
		apply(record, s.clock.Now())
		if sideEffect != nil {
			if err := sideEffect(tx, record); err != nil {
				return err
			}
		}
		if err := s.repo.Update(ctx, tx, record); err != nil {
			return err
		}
		out = *record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) FindByID(ctx context.Context, id snowflake.ID) (*withdrawaldomain.WithdrawalRequest, error) {
	record, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, withdrawaldomain.ErrNotFound
	}
	return record, nil
}

func (s *Service) List(ctx context.Context, filter withdrawaldomain.ListFilter) ([]withdrawaldomain.WithdrawalRequest, error) {
	return s.repo.List(ctx, s.db, filter)
}
