package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/escrow/internal/audit/domain"
	"github.com/smallbiznis/escrow/internal/clock"
	"github.com/smallbiznis/escrow/internal/events"
	orderdomain "github.com/smallbiznis/escrow/internal/order/domain"
	platformdomain "github.com/smallbiznis/escrow/internal/platform/domain"
	refunddomain "github.com/smallbiznis/escrow/internal/refund/domain"
	txdomain "github.com/smallbiznis/escrow/internal/transaction/domain"
	walletdomain "github.com/smallbiznis/escrow/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const minDescriptionLen = 10

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        refunddomain.Repository
	OrderRepo   orderdomain.Repository
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
	repo        refunddomain.Repository
	orderRepo   orderdomain.Repository
	walletSvc   walletdomain.Service
	platformSvc platformdomain.Service
	outbox      *events.Outbox
	auditSvc    auditdomain.Service
}

func NewService(p Params) refunddomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("refund.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		orderRepo:   p.OrderRepo,
		walletSvc:   p.WalletSvc,
		platformSvc: p.PlatformSvc,
		outbox:      p.Outbox,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req refunddomain.CreateRequest) (*refunddomain.RefundRequest, error) {
	if len(strings.TrimSpace(req.Description)) < minDescriptionLen {
		return nil, refunddomain.ErrDescriptionTooShort
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, refunddomain.ErrOrderNotRefundable
	}

	platformCfg, err := s.platformSvc.Get(ctx)
	if err != nil {
		return nil, err
	}

	var created refunddomain.RefundRequest
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByID(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrOrderNotFound
		}
		if order.PaymentStatus != orderdomain.PaymentPaid {
			return refunddomain.ErrOrderNotRefundable
		}

		now := s.clock.Now()
		if order.CompletedAt != nil {
			deadline := order.CompletedAt.Add(time.Duration(platformCfg.MaxRefundDays) * 24 * time.Hour)
			if now.After(deadline) {
				return refunddomain.ErrWindowExpired
			}
		}

		switch req.RequesterRole {
		case refunddomain.RequesterCustomer:
			if req.RequesterID != order.CustomerID {
				return refunddomain.ErrInvalidRequester
			}
		case refunddomain.RequesterShop:
			if req.RequesterID != order.ShopID {
				return refunddomain.ErrInvalidRequester
			}
		default:
			return refunddomain.ErrInvalidRequester
		}

		amount := req.Amount
		switch req.Type {
		case refunddomain.TypeFull:
			amount = order.Amount
		case refunddomain.TypePartial:
			if amount <= 0 || amount > order.Amount {
				return refunddomain.ErrInvalidAmount
			}
		default:
			return refunddomain.ErrInvalidAmount
		}

		existing, err := s.repo.FindByOrderID(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if existing != nil {
			return refunddomain.ErrAlreadyRequested
		}

		var attachments datatypes.JSON
		if len(req.Attachments) > 0 {
			raw, err := json.Marshal(req.Attachments)
			if err != nil {
				return err
			}
			attachments = datatypes.JSON(raw)
		}

		created = refunddomain.RefundRequest{
			ID:            s.genID.Generate(),
			OrderID:       order.ID,
			ShopID:        order.ShopID,
			CustomerID:    order.CustomerID,
			RequesterID:   req.RequesterID,
			RequesterRole: req.RequesterRole,
			Reason:        strings.TrimSpace(req.Reason),
			Description:   strings.TrimSpace(req.Description),
			Type:          req.Type,
			Amount:        amount,
			Attachments:   attachments,
			Status:        refunddomain.StatusPendingShop,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.Insert(ctx, tx, &created); err != nil {
			return err
		}

		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventRefundRequested,
			Payload: map[string]any{
				"refund_id": created.ID.String(),
				"order_id":  created.OrderID.String(),
				"amount":    created.Amount,
			},
			DedupeKey: "refund.requested:" + created.ID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("refund requested",
		zap.String("refund_id", created.ID.String()),
		zap.String("order_id", created.OrderID.String()),
		zap.Int64("amount", created.Amount),
	)
	return &created, nil
}

func (s *Service) ShopRespond(ctx context.Context, refundID snowflake.ID, responderID snowflake.ID, approve bool, note string) (*refunddomain.RefundRequest, error) {
	note = strings.TrimSpace(note)
	if !approve && note == "" {
		return nil, refunddomain.ErrRejectReasonRequired
	}

	var out refunddomain.RefundRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.repo.FindByIDForUpdate(ctx, tx, refundID)
		if err != nil {
			return err
		}
		if record == nil {
			return refunddomain.ErrNotFound
		}
		if record.Status != refunddomain.StatusPendingShop {
			return refunddomain.ErrInvalidStateTransition
		}

		now := s.clock.Now()
		record.ShopResponderID = &responderID
		record.ShopRespondedAt = &now
		if approve {
			record.Status = refunddomain.StatusPendingAdmin
		} else {
			record.Status = refunddomain.StatusShopRejected
			record.ShopRejectReason = &note
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

	s.auditDecision(ctx, auditdomain.ActorTypeShop, responderID, "refund.shop_respond", &out, approve, note)
	return &out, nil
}

func (s *Service) AdminRespond(ctx context.Context, refundID snowflake.ID, responderID snowflake.ID, approve bool, note string) (*refunddomain.RefundRequest, error) {
	note = strings.TrimSpace(note)
	if !approve && note == "" {
		return nil, refunddomain.ErrRejectReasonRequired
	}

	var out refunddomain.RefundRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.repo.FindByIDForUpdate(ctx, tx, refundID)
		if err != nil {
			return err
		}
		if record == nil {
			return refunddomain.ErrNotFound
		}
		if record.Status != refunddomain.StatusPendingAdmin {
			return refunddomain.ErrInvalidStateTransition
		}

		now := s.clock.Now()
		record.AdminResponderID = &responderID
		record.AdminRespondedAt = &now

		if !approve {
			record.Status = refunddomain.StatusAdminRejected
			record.AdminRejectReason = &note
			if err := s.repo.Update(ctx, tx, record); err != nil {
				return err
			}
			out = *record
			return nil
		}

		if err := s.moveMoney(ctx, tx, record, now); err != nil {
			return err
		}
		record.Status = refunddomain.StatusRefunded
		record.RefundedAt = &now
		if err := s.repo.Update(ctx, tx, record); err != nil {
			return err
		}
		// The record must be persisted as refunded before the owning
		// transaction sums resolved refunds.
		if err := s.advanceTransactionStatus(ctx, tx, record.OrderID); err != nil {
			return err
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventRefundResolved,
			Payload: map[string]any{
				"refund_id": record.ID.String(),
				"order_id":  record.OrderID.String(),
				"amount":    record.Amount,
				"status":    string(record.Status),
			},
			DedupeKey: "refund.resolved:" + record.ID.String(),
		}); err != nil {
			return err
		}
		out = *record
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditDecision(ctx, auditdomain.ActorTypeAdmin, responderID, "refund.admin_respond", &out, approve, note)
	return &out, nil
}

// moveMoney realizes an approved refund. The money comes back along the
// same split capture paid out: the shop returns its share of the
// refunded amount (from escrow while the order is held, from its
// available balance after release) and the platform returns the
// commission share, all inside the caller's transaction. A full refund
// splits exactly into the breakdown's ShopAmount and Commission.
func (s *Service) moveMoney(ctx context.Context, tx *gorm.DB, record *refunddomain.RefundRequest, now time.Time) error {
	order, err := s.orderRepo.FindByID(ctx, tx, record.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return orderdomain.ErrOrderNotFound
	}

	var breakdown txdomain.TransactionOrder
	if err := tx.WithContext(ctx).Raw(
		`SELECT * FROM transaction_orders WHERE order_id = ?`, record.OrderID,
	).Scan(&breakdown).Error; err != nil {
		return err
	}
	if breakdown.ID == 0 || breakdown.TotalAmount <= 0 {
		return txdomain.ErrTransactionNotFound
	}

	// Commission comes back pro rata, rounded down; the shop covers the
	// remainder so the customer always receives the exact amount.
	platformShare := breakdown.Commission * record.Amount / breakdown.TotalAmount
	shopShare := record.Amount - platformShare

	component := walletdomain.BalancePending
	if order.BalanceReleased {
		component = walletdomain.BalanceAvailable
	}
	record.RefundedFromEscrow = !order.BalanceReleased

	if shopShare > 0 {
		if _, err := s.walletSvc.DebitTx(ctx, tx, walletdomain.Mutation{
			OwnerType:     walletdomain.OwnerShop,
			OwnerID:       record.ShopID,
			Amount:        shopShare,
			Balance:       component,
			Type:          walletdomain.EntryRefund,
			ReferenceType: "refund_request",
			ReferenceID:   record.ID,
			Description:   fmt.Sprintf("refund for order %s", record.OrderID.String()),
		}); err != nil {
			return err
		}
	}

	if platformShare > 0 {
		if _, err := s.walletSvc.DebitTx(ctx, tx, walletdomain.Mutation{
			OwnerType:     walletdomain.OwnerPlatform,
			OwnerID:       walletdomain.PlatformWalletOwner,
			Amount:        platformShare,
			Balance:       walletdomain.BalanceAvailable,
			Type:          walletdomain.EntryRefund,
			ReferenceType: "refund_request",
			ReferenceID:   record.ID,
			Description:   fmt.Sprintf("commission returned for order %s", record.OrderID.String()),
		}); err != nil {
			return err
		}
	}

	entry, err := s.walletSvc.CreditTx(ctx, tx, walletdomain.Mutation{
		OwnerType:     walletdomain.OwnerCustomer,
		OwnerID:       record.CustomerID,
		Amount:        record.Amount,
		Balance:       walletdomain.BalanceAvailable,
		Type:          walletdomain.EntryRefund,
		ReferenceType: "refund_request",
		ReferenceID:   record.ID,
		Description:   fmt.Sprintf("refund for order %s", record.OrderID.String()),
	})
	if err != nil {
		return err
	}
	entryID := entry.ID
	record.RefundWalletEntry = &entryID
	return nil
}

// advanceTransactionStatus flips the owning transaction to refunded when
// every cent is returned, or partially_refunded otherwise.
func (s *Service) advanceTransactionStatus(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) error {
	var breakdown txdomain.TransactionOrder
	if err := tx.WithContext(ctx).Raw(
		`SELECT * FROM transaction_orders WHERE order_id = ?`, orderID,
	).Scan(&breakdown).Error; err != nil {
		return err
	}
	if breakdown.ID == 0 {
		return nil
	}

	var refunded int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(r.amount), 0)
		 FROM refund_requests r
		 JOIN transaction_orders o ON o.order_id = r.order_id
		 WHERE o.transaction_id = ? AND r.status = ?`,
		breakdown.TransactionID,
		refunddomain.StatusRefunded,
	).Scan(&refunded).Error; err != nil {
		return err
	}

	var total int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT total_amount FROM transactions WHERE id = ?`, breakdown.TransactionID,
	).Scan(&total).Error; err != nil {
		return err
	}

	status := txdomain.StatusPartiallyRefunded
	if refunded >= total {
		status = txdomain.StatusRefunded
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE transactions SET status = ? WHERE id = ? AND status IN (?, ?)`,
		status, breakdown.TransactionID,
		txdomain.StatusCompleted, txdomain.StatusPartiallyRefunded,
	).Error
}

func (s *Service) Escalate(ctx context.Context, refundID snowflake.ID, note string) (*refunddomain.RefundRequest, error) {
	var out refunddomain.RefundRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.repo.FindByIDForUpdate(ctx, tx, refundID)
		if err != nil {
			return err
		}
		if record == nil {
			return refunddomain.ErrNotFound
		}
		if record.Status != refunddomain.StatusPendingShop {
			return refunddomain.ErrInvalidStateTransition
		}

		now := s.clock.Now()
		note = strings.TrimSpace(note)
		record.Status = refunddomain.StatusPendingAdmin
		record.EscalatedAt = &now
		record.SystemNote = &note
		if err := s.repo.Update(ctx, tx, record); err != nil {
			return err
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventRefundEscalated,
			Payload: map[string]any{
				"refund_id": record.ID.String(),
				"order_id":  record.OrderID.String(),
			},
			DedupeKey: "refund.escalated:" + record.ID.String(),
		}); err != nil {
			return err
		}
		out = *record
		return nil
	})
	if err != nil {
		return nil, err
	}

	targetID := out.ID.String()
	_ = s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeSystem, nil, "refund.escalate", "refund_request", &targetID, map[string]any{
		"order_id": out.OrderID.String(),
		"note":     note,
	})
	return &out, nil
}

func (s *Service) FindByID(ctx context.Context, refundID snowflake.ID) (*refunddomain.RefundRequest, error) {
	record, err := s.repo.FindByID(ctx, s.db, refundID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, refunddomain.ErrNotFound
	}
	return record, nil
}

func (s *Service) List(ctx context.Context, filter refunddomain.ListFilter) ([]refunddomain.RefundRequest, error) {
	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) auditDecision(ctx context.Context, actorType auditdomain.ActorType, responderID snowflake.ID, action string, record *refunddomain.RefundRequest, approve bool, note string) {
	actorID := responderID.String()
	targetID := record.ID.String()
	_ = s.auditSvc.AuditLog(ctx, actorType, &actorID, action, "refund_request", &targetID, map[string]any{
		"order_id": record.OrderID.String(),
		"approve":  approve,
		"status":   string(record.Status),
		"note":     note,
	})
}
