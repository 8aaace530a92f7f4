package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/escrow/internal/audit/domain"
	auditrepository "github.com/smallbiznis/escrow/internal/audit/repository"
	auditservice "github.com/smallbiznis/escrow/internal/audit/service"
	"github.com/smallbiznis/escrow/internal/config"
	"github.com/smallbiznis/escrow/internal/events"
	"github.com/smallbiznis/escrow/internal/gateway"
	"github.com/smallbiznis/escrow/internal/gateway/sandbox"
	orderdomain "github.com/smallbiznis/escrow/internal/order/domain"
	orderrepository "github.com/smallbiznis/escrow/internal/order/repository"
	platformdomain "github.com/smallbiznis/escrow/internal/platform/domain"
	platformservice "github.com/smallbiznis/escrow/internal/platform/service"
	txdomain "github.com/smallbiznis/escrow/internal/transaction/domain"
	walletdomain "github.com/smallbiznis/escrow/internal/wallet/domain"
	walletservice "github.com/smallbiznis/escrow/internal/wallet/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type txTestEnv struct {
	db        *gorm.DB
	svc       txdomain.Service
	walletSvc walletdomain.Service
	node      *snowflake.Node
}

func setupTxTestEnv(t *testing.T) *txTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&walletdomain.Wallet{},
		&walletdomain.Entry{},
		&orderdomain.Order{},
		&txdomain.Transaction{},
		&txdomain.TransactionOrder{},
		&platformdomain.Config{},
		&auditdomain.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Exec(`CREATE TABLE IF NOT EXISTS settlement_events (
		id INTEGER PRIMARY KEY,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		dedupe_key TEXT UNIQUE,
		published BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create settlement_events: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	log := zap.NewNop()

	if err := db.Create(&platformdomain.Config{
		ID:                       node.Generate(),
		CommissionRate:           5,
		HoldingDays:              7,
		MinWithdrawalAmount:      10_000,
		MaxWithdrawalAmount:      100_000_000,
		SellerRefundResponseHour: 48,
		MaxRefundDays:            14,
		CreatedAt:                time.Now().UTC(),
		UpdatedAt:                time.Now().UTC(),
	}).Error; err != nil {
		t.Fatalf("seed platform config: %v", err)
	}

	walletSvc := walletservice.NewService(walletservice.Params{DB: db, Log: log, GenID: node})
	platformSvc := platformservice.NewService(platformservice.Params{DB: db, Log: log})
	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(),
	})

	var cfg config.Config
	cfg.Gateway.PaymentURL = "https://pay.example.test"

	svc := NewService(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Cfg:         cfg,
		WalletSvc:   walletSvc,
		PlatformSvc: platformSvc,
		OrderRepo:   orderrepository.Provide(),
		Adapters:    gateway.NewRegistry(sandbox.New("test-secret")),
		Outbox:      events.NewOutbox(db, node),
		AuditSvc:    auditSvc,
	})
	return &txTestEnv{db: db, svc: svc, walletSvc: walletSvc, node: node}
}

func (e *txTestEnv) insertOrder(t *testing.T, shopID, customerID snowflake.ID, amount int64) snowflake.ID {
	t.Helper()
	order := orderdomain.Order{
		ID:               e.node.Generate(),
		ShopID:           shopID,
		CustomerID:       customerID,
		Amount:           amount,
		PaymentStatus:    orderdomain.PaymentUnpaid,
		FulfilmentStatus: orderdomain.FulfilmentProcessing,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	if err := e.db.Create(&order).Error; err != nil {
		t.Fatalf("insert order: %v", err)
	}
	return order.ID
}

func (e *txTestEnv) pendingBalance(t *testing.T, ownerType walletdomain.OwnerType, ownerID snowflake.ID) int64 {
	t.Helper()
	summary, err := e.walletSvc.Summary(context.Background(), ownerType, ownerID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	return summary.PendingBalance
}

func TestCreatePaymentLinkSnapshotsCommission(t *testing.T) {
	env := setupTxTestEnv(t)
	orderID := env.insertOrder(t, 10, 20, 100_000)

	created, err := env.svc.CreatePaymentLink(context.Background(), []snowflake.ID{orderID})
	if err != nil {
		t.Fatalf("create payment link: %v", err)
	}
	if created.Status != txdomain.StatusPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}
	if created.CommissionRate != 5 {
		t.Fatalf("expected snapshotted rate 5, got %d", created.CommissionRate)
	}
	if created.TotalAmount != 100_000 {
		t.Fatalf("expected total 100000, got %d", created.TotalAmount)
	}
	if created.PaymentURL == "" {
		t.Fatalf("expected a payment url")
	}
}

func TestCreatePaymentLinkRejectsLinkedOrder(t *testing.T) {
	env := setupTxTestEnv(t)
	orderID := env.insertOrder(t, 10, 20, 100_000)

	if _, err := env.svc.CreatePaymentLink(context.Background(), []snowflake.ID{orderID}); err != nil {
		t.Fatalf("first link: %v", err)
	}
	_, err := env.svc.CreatePaymentLink(context.Background(), []snowflake.ID{orderID})
	if !errors.Is(err, txdomain.ErrOrderAlreadyLinked) {
		t.Fatalf("expected order already linked, got %v", err)
	}
}

func TestCompleteSplitsAcrossShops(t *testing.T) {
	env := setupTxTestEnv(t)
	ctx := context.Background()

	order1 := env.insertOrder(t, 101, 20, 100_000)
	order2 := env.insertOrder(t, 102, 20, 200_000)
	order3 := env.insertOrder(t, 103, 20, 150_000)

	created, err := env.svc.CreatePaymentLink(ctx, []snowflake.ID{order1, order2, order3})
	if err != nil {
		t.Fatalf("create payment link: %v", err)
	}

	completed, err := env.svc.Complete(ctx, &gateway.Event{
		Provider:       "sandbox",
		TransactionRef: created.Code,
		Type:           gateway.EventPaymentSucceeded,
		Amount:         450_000,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != txdomain.StatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}
	if completed.CommissionAmount != 22_500 || completed.ShopAmount != 427_500 {
		t.Fatalf("unexpected totals: commission %d shop %d",
			completed.CommissionAmount, completed.ShopAmount)
	}

	if got := env.pendingBalance(t, walletdomain.OwnerShop, 101); got != 95_000 {
		t.Fatalf("shop 101 pending: expected 95000, got %d", got)
	}
	if got := env.pendingBalance(t, walletdomain.OwnerShop, 102); got != 190_000 {
		t.Fatalf("shop 102 pending: expected 190000, got %d", got)
	}
	if got := env.pendingBalance(t, walletdomain.OwnerShop, 103); got != 142_500 {
		t.Fatalf("shop 103 pending: expected 142500, got %d", got)
	}

	platformSummary, err := env.walletSvc.Summary(ctx, walletdomain.OwnerPlatform, 1)
	if err != nil {
		t.Fatalf("platform summary: %v", err)
	}
	if platformSummary.AvailableBalance != 22_500 {
		t.Fatalf("platform commission: expected 22500, got %d", platformSummary.AvailableBalance)
	}

	var breakdowns []txdomain.TransactionOrder
	if err := env.db.Raw(
		`SELECT * FROM transaction_orders WHERE transaction_id = ?`, completed.ID,
	).Scan(&breakdowns).Error; err != nil {
		t.Fatalf("load breakdowns: %v", err)
	}
	var sumCommission, sumShop int64
	for _, b := range breakdowns {
		if b.Commission+b.ShopAmount != b.TotalAmount {
			t.Fatalf("breakdown does not conserve order amount: %+v", b)
		}
		sumCommission += b.Commission
		sumShop += b.ShopAmount
	}
	if sumCommission != completed.CommissionAmount || sumShop != completed.ShopAmount {
		t.Fatalf("breakdowns (%d, %d) disagree with transaction totals (%d, %d)",
			sumCommission, sumShop, completed.CommissionAmount, completed.ShopAmount)
	}
}

func TestCompleteIsIdempotentOnRedelivery(t *testing.T) {
	env := setupTxTestEnv(t)
	ctx := context.Background()

	orderID := env.insertOrder(t, 10, 20, 100_000)
	created, err := env.svc.CreatePaymentLink(ctx, []snowflake.ID{orderID})
	if err != nil {
		t.Fatalf("create payment link: %v", err)
	}

	event := &gateway.Event{
		Provider:       "sandbox",
		TransactionRef: created.Code,
		Type:           gateway.EventPaymentSucceeded,
		Amount:         100_000,
	}
	first, err := env.svc.Complete(ctx, event)
	if err != nil {
		t.Fatalf("first complete: %v", err)
	}
	second, err := env.svc.Complete(ctx, event)
	if err != nil {
		t.Fatalf("redelivered complete: %v", err)
	}
	if second.Status != txdomain.StatusCompleted || second.ID != first.ID {
		t.Fatalf("redelivery must return the completed transaction")
	}

	if got := env.pendingBalance(t, walletdomain.OwnerShop, 10); got != 95_000 {
		t.Fatalf("redelivery credited twice: pending %d", got)
	}

	entries, err := env.walletSvc.Entries(ctx, walletdomain.OwnerShop, 10, 0, 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one credit entry, got %d", len(entries))
	}
}

func TestCompleteRejectsAmountMismatch(t *testing.T) {
	env := setupTxTestEnv(t)
	ctx := context.Background()

	orderID := env.insertOrder(t, 10, 20, 100_000)
	created, err := env.svc.CreatePaymentLink(ctx, []snowflake.ID{orderID})
	if err != nil {
		t.Fatalf("create payment link: %v", err)
	}

	_, err = env.svc.Complete(ctx, &gateway.Event{
		Provider:       "sandbox",
		TransactionRef: created.Code,
		Type:           gateway.EventPaymentSucceeded,
		Amount:         99_999,
	})
	if !errors.Is(err, txdomain.ErrAmountMismatch) {
		t.Fatalf("expected amount mismatch, got %v", err)
	}

	if got := env.pendingBalance(t, walletdomain.OwnerShop, 10); got != 0 {
		t.Fatalf("mismatch must not credit, pending %d", got)
	}
}

func TestCompleteUnknownCode(t *testing.T) {
	env := setupTxTestEnv(t)

	_, err := env.svc.Complete(context.Background(), &gateway.Event{
		TransactionRef: "nonexistent",
		Type:           gateway.EventPaymentSucceeded,
		Amount:         1,
	})
	if !errors.Is(err, txdomain.ErrTransactionNotFound) {
		t.Fatalf("expected transaction not found, got %v", err)
	}
}
