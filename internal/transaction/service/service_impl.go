package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/escrow/internal/audit/domain"
	"github.com/smallbiznis/escrow/internal/config"
	"github.com/smallbiznis/escrow/internal/events"
	"github.com/smallbiznis/escrow/internal/gateway"
	orderdomain "github.com/smallbiznis/escrow/internal/order/domain"
	platformdomain "github.com/smallbiznis/escrow/internal/platform/domain"
	txdomain "github.com/smallbiznis/escrow/internal/transaction/domain"
	walletdomain "github.com/smallbiznis/escrow/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Cfg         config.Config
	WalletSvc   walletdomain.Service
	PlatformSvc platformdomain.Service
	OrderRepo   orderdomain.Repository
	Adapters    *gateway.Registry
	Outbox      *events.Outbox
	AuditSvc    auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	walletSvc   walletdomain.Service
	platformSvc platformdomain.Service
	orderRepo   orderdomain.Repository
	adapters    *gateway.Registry
	outbox      *events.Outbox
	auditSvc    auditdomain.Service
	paymentURL  string
}

func NewService(p Params) txdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("transaction.service"),
		genID:       p.GenID,
		walletSvc:   p.WalletSvc,
		platformSvc: p.PlatformSvc,
		orderRepo:   p.OrderRepo,
		adapters:    p.Adapters,
		outbox:      p.Outbox,
		auditSvc:    p.AuditSvc,
		paymentURL:  strings.TrimRight(p.Cfg.Gateway.PaymentURL, "/"),
	}
}

func (s *Service) CreatePaymentLink(ctx context.Context, orderIDs []snowflake.ID) (*txdomain.Transaction, error) {
	if len(orderIDs) == 0 {
		return nil, txdomain.ErrNoOrders
	}

	platformCfg, err := s.platformSvc.Get(ctx)
	if err != nil {
		return nil, err
	}

	var created txdomain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders, err := s.orderRepo.FindByIDs(ctx, tx, orderIDs)
		if err != nil {
			return err
		}
		if len(orders) != len(orderIDs) {
			return txdomain.ErrOrderNotFound
		}

		var total int64
		for _, o := range orders {
			if o.PaymentStatus != orderdomain.PaymentUnpaid {
				return txdomain.ErrOrderNotPayable
			}
			total += o.Amount
		}

		var linked int64
		if err := tx.WithContext(ctx).Raw(
			`SELECT COUNT(1) FROM transaction_orders WHERE order_id IN ?`,
			orderIDs,
		).Scan(&linked).Error; err != nil {
			return err
		}
		if linked > 0 {
			return txdomain.ErrOrderAlreadyLinked
		}

		now := time.Now().UTC()
		code := uuid.NewString()
		created = txdomain.Transaction{
			ID:             s.genID.Generate(),
			Code:           code,
			Status:         txdomain.StatusPending,
			TotalAmount:    total,
			CommissionRate: platformCfg.CommissionRate,
			PaymentURL:     fmt.Sprintf("%s/%s", s.paymentURL, code),
			CreatedAt:      now,
		}
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO transactions (id, code, status, total_amount, commission_rate,
			                           commission_amount, shop_amount, payment_url, created_at)
			 VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`,
			created.ID, created.Code, created.Status, created.TotalAmount,
			created.CommissionRate, created.PaymentURL, now,
		).Error; err != nil {
			return err
		}

		for _, o := range orders {
			if err := tx.WithContext(ctx).Exec(
				`INSERT INTO transaction_orders (id, transaction_id, order_id, shop_id,
				                                 total_amount, commission, shop_amount, created_at)
				 VALUES (?, ?, ?, ?, ?, 0, 0, ?)`,
				s.genID.Generate(), created.ID, o.ID, o.ShopID, o.Amount, now,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment link created",
		zap.String("transaction_id", created.ID.String()),
		zap.Int64("total_amount", created.TotalAmount),
		zap.Int("orders", len(orderIDs)),
	)
	return &created, nil
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers map[string][]string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	adapter, err := s.adapters.Lookup(provider)
	if err != nil {
		return err
	}

	header := http.Header(headers)
	if err := adapter.Verify(ctx, payload, header); err != nil {
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, gateway.ErrEventIgnored) {
			return nil
		}
		return err
	}

	switch event.Type {
	case gateway.EventPaymentSucceeded:
		_, err = s.Complete(ctx, event)
		return err
	case gateway.EventPaymentFailed:
		return s.markFailed(ctx, event)
	default:
		return gateway.ErrInvalidPayload
	}
}

func (s *Service) Complete(ctx context.Context, event *gateway.Event) (*txdomain.Transaction, error) {
	if event == nil || strings.TrimSpace(event.TransactionRef) == "" {
		return nil, gateway.ErrInvalidPayload
	}

	var out txdomain.Transaction
	var redelivered bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.lockByCode(ctx, tx, event.TransactionRef)
		if err != nil {
			return err
		}
		if record == nil {
			return txdomain.ErrTransactionNotFound
		}
		if record.Status == txdomain.StatusCompleted {
			// At-least-once delivery: a completed transaction means this
			// callback already settled. Success, no re-credit.
			redelivered = true
			out = *record
			return nil
		}
		if record.Status != txdomain.StatusPending {
			return txdomain.ErrInvalidState
		}
		if event.Amount != 0 && event.Amount != record.TotalAmount {
			return txdomain.ErrAmountMismatch
		}

		breakdowns, err := s.loadBreakdowns(ctx, tx, record.ID)
		if err != nil {
			return err
		}
		if len(breakdowns) == 0 {
			return txdomain.ErrNoOrders
		}

		shares := make([]txdomain.OrderShare, 0, len(breakdowns))
		for _, b := range breakdowns {
			shares = append(shares, txdomain.OrderShare{
				OrderID: int64(b.OrderID),
				Amount:  b.TotalAmount,
			})
		}
		totalCommission, totalShop, split := txdomain.ComputeSplit(record.CommissionRate, shares)

		shareByOrder := make(map[int64]txdomain.OrderShare, len(split))
		for _, share := range split {
			shareByOrder[share.OrderID] = share
		}

		now := time.Now().UTC()
		for _, b := range breakdowns {
			share := shareByOrder[int64(b.OrderID)]
			if _, err := s.walletSvc.CreditTx(ctx, tx, walletdomain.Mutation{
				OwnerType:     walletdomain.OwnerShop,
				OwnerID:       b.ShopID,
				Amount:        share.ShopShare,
				Balance:       walletdomain.BalancePending,
				Type:          walletdomain.EntryOrderRevenue,
				ReferenceType: "order",
				ReferenceID:   b.OrderID,
				Description:   fmt.Sprintf("order revenue held for order %s", b.OrderID.String()),
			}); err != nil {
				return err
			}

			if err := tx.WithContext(ctx).Exec(
				`UPDATE transaction_orders SET commission = ?, shop_amount = ? WHERE id = ?`,
				share.Commission, share.ShopShare, b.ID,
			).Error; err != nil {
				return err
			}
		}

		if totalCommission > 0 {
			if _, err := s.walletSvc.CreditTx(ctx, tx, walletdomain.Mutation{
				OwnerType:     walletdomain.OwnerPlatform,
				OwnerID:       walletdomain.PlatformWalletOwner,
				Amount:        totalCommission,
				Balance:       walletdomain.BalanceAvailable,
				Type:          walletdomain.EntryOrderRevenue,
				ReferenceType: "transaction",
				ReferenceID:   record.ID,
				Description:   fmt.Sprintf("commission for transaction %s", record.Code),
			}); err != nil {
				return err
			}
		}

		record.Status = txdomain.StatusCompleted
		record.CommissionAmount = totalCommission
		record.ShopAmount = totalShop
		record.Provider = event.Provider
		record.ProviderEventID = event.ProviderEventID
		record.CompletedAt = &now
		if err := tx.WithContext(ctx).Exec(
			`UPDATE transactions
			 SET status = ?, commission_amount = ?, shop_amount = ?,
			     provider = ?, provider_event_id = ?, completed_at = ?
			 WHERE id = ? AND status = ?`,
			record.Status, record.CommissionAmount, record.ShopAmount,
			record.Provider, record.ProviderEventID, now,
			record.ID, txdomain.StatusPending,
		).Error; err != nil {
			return err
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventTransactionCompleted,
			Payload: events.TransactionCompletedPayload{
				TransactionID: record.ID.String(),
				TotalAmount:   record.TotalAmount,
				Commission:    totalCommission,
				ShopAmount:    totalShop,
			}.ToMap(),
			DedupeKey: "transaction.completed:" + record.ID.String(),
		}); err != nil {
			return err
		}

		out = *record
		return nil
	})
	if err != nil {
		return nil, err
	}

	if redelivered {
		s.log.Info("settlement callback redelivered",
			zap.String("transaction_id", out.ID.String()),
			zap.String("provider_event_id", event.ProviderEventID),
		)
		return &out, nil
	}

	s.log.Info("transaction completed",
		zap.String("transaction_id", out.ID.String()),
		zap.Int64("total_amount", out.TotalAmount),
		zap.Int64("commission", out.CommissionAmount),
	)

	if s.auditSvc != nil {
		targetID := out.ID.String()
		_ = s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeSystem, nil, "transaction.complete", "transaction", &targetID, map[string]any{
			"provider":          out.Provider,
			"provider_event_id": out.ProviderEventID,
			"total_amount":      out.TotalAmount,
			"commission":        out.CommissionAmount,
			"shop_amount":       out.ShopAmount,
		})
	}
	return &out, nil
}

func (s *Service) markFailed(ctx context.Context, event *gateway.Event) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.lockByCode(ctx, tx, event.TransactionRef)
		if err != nil {
			return err
		}
		if record == nil {
			return txdomain.ErrTransactionNotFound
		}
		if record.Status != txdomain.StatusPending {
			// Failure callbacks after settlement are stale; ignore.
			return nil
		}
		return tx.WithContext(ctx).Exec(
			`UPDATE transactions
			 SET status = ?, provider = ?, provider_event_id = ?
			 WHERE id = ? AND status = ?`,
			txdomain.StatusFailed, event.Provider, event.ProviderEventID,
			record.ID, txdomain.StatusPending,
		).Error
	})
}

func (s *Service) FindByID(ctx context.Context, id snowflake.ID) (*txdomain.Transaction, error) {
	var record txdomain.Transaction
	if err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM transactions WHERE id = ?`, id,
	).Scan(&record).Error; err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, txdomain.ErrTransactionNotFound
	}
	return &record, nil
}

func (s *Service) FindByCode(ctx context.Context, code string) (*txdomain.Transaction, error) {
	var record txdomain.Transaction
	if err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM transactions WHERE code = ?`, strings.TrimSpace(code),
	).Scan(&record).Error; err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, txdomain.ErrTransactionNotFound
	}
	return &record, nil
}

func (s *Service) BreakdownForOrder(ctx context.Context, orderID snowflake.ID) (*txdomain.TransactionOrder, error) {
	var breakdown txdomain.TransactionOrder
	if err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM transaction_orders WHERE order_id = ?`, orderID,
	).Scan(&breakdown).Error; err != nil {
		return nil, err
	}
	if breakdown.ID == 0 {
		return nil, txdomain.ErrTransactionNotFound
	}
	return &breakdown, nil
}

func (s *Service) lockByCode(ctx context.Context, tx *gorm.DB, code string) (*txdomain.Transaction, error) {
	query := `SELECT * FROM transactions WHERE code = ?` + forUpdate(tx)
	var record txdomain.Transaction
	if err := tx.WithContext(ctx).Raw(query, strings.TrimSpace(code)).Scan(&record).Error; err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (s *Service) loadBreakdowns(ctx context.Context, tx *gorm.DB, transactionID snowflake.ID) ([]txdomain.TransactionOrder, error) {
	var breakdowns []txdomain.TransactionOrder
	if err := tx.WithContext(ctx).Raw(
		`SELECT * FROM transaction_orders WHERE transaction_id = ? ORDER BY order_id ASC`,
		transactionID,
	).Scan(&breakdowns).Error; err != nil {
		return nil, err
	}
	return breakdowns, nil
}

func forUpdate(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}
