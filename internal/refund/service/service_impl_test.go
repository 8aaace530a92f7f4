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
	"github.com/smallbiznis/escrow/internal/clock"
	"github.com/smallbiznis/escrow/internal/config"
	"github.com/smallbiznis/escrow/internal/events"
	"github.com/smallbiznis/escrow/internal/gateway"
	"github.com/smallbiznis/escrow/internal/gateway/sandbox"
	orderdomain "github.com/smallbiznis/escrow/internal/order/domain"
	orderrepository "github.com/smallbiznis/escrow/internal/order/repository"
	platformdomain "github.com/smallbiznis/escrow/internal/platform/domain"
	platformservice "github.com/smallbiznis/escrow/internal/platform/service"
	refunddomain "github.com/smallbiznis/escrow/internal/refund/domain"
	refundrepository "github.com/smallbiznis/escrow/internal/refund/repository"
	txdomain "github.com/smallbiznis/escrow/internal/transaction/domain"
	txservice "github.com/smallbiznis/escrow/internal/transaction/service"
	walletdomain "github.com/smallbiznis/escrow/internal/wallet/domain"
	walletservice "github.com/smallbiznis/escrow/internal/wallet/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type refundTestEnv struct {
	db        *gorm.DB
	svc       refunddomain.Service
	walletSvc walletdomain.Service
	txSvc     txdomain.Service
	node      *snowflake.Node
	now       time.Time
}

func setupRefundTestEnv(t *testing.T) *refundTestEnv {
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
		&refunddomain.RefundRequest{},
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
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

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
		t.Fatalf("seed platform config: %v", err)
	}

	walletSvc := walletservice.NewService(walletservice.Params{DB: db, Log: log, GenID: node})
	platformSvc := platformservice.NewService(platformservice.Params{DB: db, Log: log})
	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(),
	})
	orderRepo := orderrepository.Provide()
	outbox := events.NewOutbox(db, node)

	var cfg config.Config
	cfg.Gateway.PaymentURL = "https://pay.example.test"
	txSvc := txservice.NewService(txservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Cfg:         cfg,
		WalletSvc:   walletSvc,
		PlatformSvc: platformSvc,
		OrderRepo:   orderRepo,
		Adapters:    gateway.NewRegistry(sandbox.New("test-secret")),
		Outbox:      outbox,
		AuditSvc:    auditSvc,
	})

	svc := NewService(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clock.Fixed{At: now},
		Repo:        refundrepository.Provide(),
		OrderRepo:   orderRepo,
		WalletSvc:   walletSvc,
		PlatformSvc: platformSvc,
		Outbox:      outbox,
		AuditSvc:    auditSvc,
	})
	return &refundTestEnv{db: db, svc: svc, walletSvc: walletSvc, txSvc: txSvc, node: node, now: now}
}

func (e *refundTestEnv) insertPaidOrder(t *testing.T, shopID, customerID snowflake.ID, amount int64, completedAt time.Time, released bool) snowflake.ID {
	t.Helper()
	order := orderdomain.Order{
		ID:               e.node.Generate(),
		ShopID:           shopID,
		CustomerID:       customerID,
		Amount:           amount,
		PaymentStatus:    orderdomain.PaymentPaid,
		FulfilmentStatus: orderdomain.FulfilmentCompleted,
		CompletedAt:      &completedAt,
		BalanceReleased:  released,
		CreatedAt:        completedAt,
		UpdatedAt:        completedAt,
	}
	if err := e.db.Create(&order).Error; err != nil {
		t.Fatalf("insert order: %v", err)
	}
	return order.ID
}

func (e *refundTestEnv) credit(t *testing.T, ownerType walletdomain.OwnerType, ownerID snowflake.ID, amount int64, balance walletdomain.BalanceComponent) {
	t.Helper()
	if _, err := e.walletSvc.Credit(context.Background(), walletdomain.Mutation{
		OwnerType: ownerType,
		OwnerID:   ownerID,
		Amount:    amount,
		Balance:   balance,
		Type:      walletdomain.EntryOrderRevenue,
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}
}

// seedCapture mirrors what a completed payment leaves behind: the
// transaction breakdown plus the shop share and commission sitting in
// the respective wallets.
func (e *refundTestEnv) seedCapture(t *testing.T, orderID, shopID snowflake.ID, total, commission int64, released bool) {
	t.Helper()
	txn := txdomain.Transaction{
		ID:          e.node.Generate(),
		Code:        fmt.Sprintf("TX-%s", orderID),
		Status:      txdomain.StatusCompleted,
		TotalAmount: total,
		CreatedAt:   e.now.Add(-24 * time.Hour),
	}
	if err := e.db.Create(&txn).Error; err != nil {
		t.Fatalf("insert transaction: %v", err)
	}
	if err := e.db.Create(&txdomain.TransactionOrder{
		ID:            e.node.Generate(),
		TransactionID: txn.ID,
		OrderID:       orderID,
		ShopID:        shopID,
		TotalAmount:   total,
		Commission:    commission,
		ShopAmount:    total - commission,
		CreatedAt:     e.now.Add(-24 * time.Hour),
	}).Error; err != nil {
		t.Fatalf("insert breakdown: %v", err)
	}

	shopBalance := walletdomain.BalancePending
	if released {
		shopBalance = walletdomain.BalanceAvailable
	}
	e.credit(t, walletdomain.OwnerShop, shopID, total-commission, shopBalance)
	e.credit(t, walletdomain.OwnerPlatform, walletdomain.PlatformWalletOwner, commission, walletdomain.BalanceAvailable)
}

func (e *refundTestEnv) createRequest(t *testing.T, orderID, customerID snowflake.ID, amount int64) *refunddomain.RefundRequest {
	t.Helper()
	record, err := e.svc.Create(context.Background(), refunddomain.CreateRequest{
		OrderID:       orderID,
		RequesterID:   customerID,
		RequesterRole: refunddomain.RequesterCustomer,
		Reason:        "defective",
		Description:   "item arrived broken in half",
		Type:          refunddomain.TypeFull,
		Amount:        amount,
	})
	if err != nil {
		t.Fatalf("create refund: %v", err)
	}
	return record
}

func TestRefundCreateStartsPendingShop(t *testing.T) {
	env := setupRefundTestEnv(t)
	orderID := env.insertPaidOrder(t, 10, 20, 100_000, env.now.Add(-24*time.Hour), false)

	record := env.createRequest(t, orderID, 20, 0)
	if record.Status != refunddomain.StatusPendingShop {
		t.Fatalf("expected pending_shop, got %s", record.Status)
	}
	if record.Amount != 100_000 {
		t.Fatalf("full refund must take the order amount, got %d", record.Amount)
	}
}

func TestRefundCreateShortDescription(t *testing.T) {
	env := setupRefundTestEnv(t)
	orderID := env.insertPaidOrder(t, 10, 20, 100_000, env.now.Add(-24*time.Hour), false)

	_, err := env.svc.Create(context.Background(), refunddomain.CreateRequest{
		OrderID:       orderID,
		RequesterID:   20,
		RequesterRole: refunddomain.RequesterCustomer,
		Reason:        "defective",
		Description:   "broken",
		Type:          refunddomain.TypeFull,
	})
	if !errors.Is(err, refunddomain.ErrDescriptionTooShort) {
		t.Fatalf("expected description too short, got %v", err)
	}
}

func TestRefundCreateOutsideWindow(t *testing.T) {
	env := setupRefundTestEnv(t)
	completed := env.now.Add(-15 * 24 * time.Hour)
	orderID := env.insertPaidOrder(t, 10, 20, 100_000, completed, true)

	_, err := env.svc.Create(context.Background(), refunddomain.CreateRequest{
		OrderID:       orderID,
		RequesterID:   20,
		RequesterRole: refunddomain.RequesterCustomer,
		Reason:        "defective",
		Description:   "item arrived broken in half",
		Type:          refunddomain.TypeFull,
	})
	if !errors.Is(err, refunddomain.ErrWindowExpired) {
		t.Fatalf("expected window expired, got %v", err)
	}
}

func TestRefundCreateDuplicate(t *testing.T) {
	env := setupRefundTestEnv(t)
	orderID := env.insertPaidOrder(t, 10, 20, 100_000, env.now.Add(-24*time.Hour), false)
	env.createRequest(t, orderID, 20, 0)

	_, err := env.svc.Create(context.Background(), refunddomain.CreateRequest{
		OrderID:       orderID,
		RequesterID:   20,
		RequesterRole: refunddomain.RequesterCustomer,
		Reason:        "defective",
		Description:   "item arrived broken in half",
		Type:          refunddomain.TypeFull,
	})
	if !errors.Is(err, refunddomain.ErrAlreadyRequested) {
		t.Fatalf("expected already requested, got %v", err)
	}
}

func TestRefundCreatePartialAmountBounds(t *testing.T) {
	env := setupRefundTestEnv(t)
	orderID := env.insertPaidOrder(t, 10, 20, 100_000, env.now.Add(-24*time.Hour), false)

	_, err := env.svc.Create(context.Background(), refunddomain.CreateRequest{
		OrderID:       orderID,
		RequesterID:   20,
		RequesterRole: refunddomain.RequesterCustomer,
		Reason:        "defective",
		Description:   "only part of the set arrived",
		Type:          refunddomain.TypePartial,
		Amount:        100_001,
	})
	if !errors.Is(err, refunddomain.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestRefundShopApproveEscalatesToAdmin(t *testing.T) {
	env := setupRefundTestEnv(t)
	orderID := env.insertPaidOrder(t, 10, 20, 100_000, env.now.Add(-24*time.Hour), false)
	record := env.createRequest(t, orderID, 20, 0)

	updated, err := env.svc.ShopRespond(context.Background(), record.ID, 10, true, "")
	if err != nil {
		t.Fatalf("shop respond: %v", err)
	}
	if updated.Status != refunddomain.StatusPendingAdmin {
		t.Fatalf("shop approval must hand the case to the platform, got %s", updated.Status)
	}
	if updated.ShopRespondedAt == nil {
		t.Fatalf("shop approval must record the response time")
	}
}

func TestRefundShopRejectRequiresReason(t *testing.T) {
	env := setupRefundTestEnv(t)
	orderID := env.insertPaidOrder(t, 10, 20, 100_000, env.now.Add(-24*time.Hour), false)
	record := env.createRequest(t, orderID, 20, 0)

	_, err := env.svc.ShopRespond(context.Background(), record.ID, 10, false, "  ")
	if !errors.Is(err, refunddomain.ErrRejectReasonRequired) {
		t.Fatalf("expected reject reason required, got %v", err)
	}

	_, err = env.svc.ShopRespond(context.Background(), record.ID, 10, false, "out of return policy")
	if err != nil {
		t.Fatalf("shop reject: %v", err)
	}
}

func TestRefundAdminRespondWrongStateHasNoSideEffects(t *testing.T) {
	env := setupRefundTestEnv(t)
	orderID := env.insertPaidOrder(t, 10, 20, 100_000, env.now.Add(-24*time.Hour), false)
	env.credit(t, walletdomain.OwnerShop, 10, 95_000, walletdomain.BalancePending)
	record := env.createRequest(t, orderID, 20, 0)

	_, err := env.svc.AdminRespond(context.Background(), record.ID, 99, true, "")
	if !errors.Is(err, refunddomain.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid state transition, got %v", err)
	}

	reloaded, err := env.svc.FindByID(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if reloaded.Status != refunddomain.StatusPendingShop {
		t.Fatalf("failed transition must leave the record unchanged, got %s", reloaded.Status)
	}

	summary, err := env.walletSvc.Summary(context.Background(), walletdomain.OwnerShop, 10)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.PendingBalance != 95_000 {
		t.Fatalf("failed transition must not move money, pending %d", summary.PendingBalance)
	}
}

func TestRefundAdminApproveMovesEscrowedMoney(t *testing.T) {
	env := setupRefundTestEnv(t)
	ctx := context.Background()
	orderID := env.insertPaidOrder(t, 10, 20, 100_000, env.now.Add(-24*time.Hour), false)
	// 5% commission: the shop's escrow holds 95,000, the platform 5,000.
	env.seedCapture(t, orderID, 10, 100_000, 5_000, false)
	record := env.createRequest(t, orderID, 20, 0)

	if _, err := env.svc.ShopRespond(ctx, record.ID, 10, true, ""); err != nil {
		t.Fatalf("shop respond: %v", err)
	}
	resolved, err := env.svc.AdminRespond(ctx, record.ID, 99, true, "")
	if err != nil {
		t.Fatalf("admin respond: %v", err)
	}
	if resolved.Status != refunddomain.StatusRefunded {
		t.Fatalf("expected refunded, got %s", resolved.Status)
	}
	if !resolved.RefundedFromEscrow {
		t.Fatalf("unreleased order must refund from escrow")
	}
	if resolved.RefundWalletEntry == nil {
		t.Fatalf("approval must record the customer credit entry")
	}

	shopSummary, err := env.walletSvc.Summary(ctx, walletdomain.OwnerShop, 10)
	if err != nil {
		t.Fatalf("shop summary: %v", err)
	}
	if shopSummary.PendingBalance != 0 {
		t.Fatalf("full refund must clear the escrowed share, pending %d", shopSummary.PendingBalance)
	}

	platformSummary, err := env.walletSvc.Summary(ctx, walletdomain.OwnerPlatform, walletdomain.PlatformWalletOwner)
	if err != nil {
		t.Fatalf("platform summary: %v", err)
	}
	if platformSummary.AvailableBalance != 0 {
		t.Fatalf("full refund must return the commission, platform available %d", platformSummary.AvailableBalance)
	}

	customerSummary, err := env.walletSvc.Summary(ctx, walletdomain.OwnerCustomer, 20)
	if err != nil {
		t.Fatalf("customer summary: %v", err)
	}
	if customerSummary.AvailableBalance != 100_000 {
		t.Fatalf("expected customer credit 100000, got %d", customerSummary.AvailableBalance)
	}
}

func TestRefundFullRefundOfCapturedOrder(t *testing.T) {
	env := setupRefundTestEnv(t)
	ctx := context.Background()

	order := orderdomain.Order{
		ID:               env.node.Generate(),
		ShopID:           10,
		CustomerID:       20,
		Amount:           100_000,
		PaymentStatus:    orderdomain.PaymentUnpaid,
		FulfilmentStatus: orderdomain.FulfilmentProcessing,
		CreatedAt:        env.now.Add(-48 * time.Hour),
		UpdatedAt:        env.now.Add(-48 * time.Hour),
	}
	if err := env.db.Create(&order).Error; err != nil {
		t.Fatalf("insert order: %v", err)
	}

	link, err := env.txSvc.CreatePaymentLink(ctx, []snowflake.ID{order.ID})
	if err != nil {
		t.Fatalf("create payment link: %v", err)
	}
	if _, err := env.txSvc.Complete(ctx, &gateway.Event{
		Provider:        "sandbox",
		ProviderEventID: "evt-capture-1",
		TransactionRef:  link.Code,
		Amount:          100_000,
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// The order subsystem records payment and fulfilment completion.
	completed := env.now.Add(-24 * time.Hour)
	if err := env.db.Exec(
		`UPDATE orders SET payment_status = ?, fulfilment_status = ?, completed_at = ? WHERE id = ?`,
		orderdomain.PaymentPaid, orderdomain.FulfilmentCompleted, completed, order.ID,
	).Error; err != nil {
		t.Fatalf("mark order completed: %v", err)
	}

	record := env.createRequest(t, order.ID, 20, 0)
	if _, err := env.svc.ShopRespond(ctx, record.ID, 10, true, ""); err != nil {
		t.Fatalf("shop respond: %v", err)
	}
	resolved, err := env.svc.AdminRespond(ctx, record.ID, 99, true, "")
	if err != nil {
		t.Fatalf("full refund of a captured order must complete: %v", err)
	}
	if resolved.Status != refunddomain.StatusRefunded {
		t.Fatalf("expected refunded, got %s", resolved.Status)
	}

	customerSummary, err := env.walletSvc.Summary(ctx, walletdomain.OwnerCustomer, 20)
	if err != nil {
		t.Fatalf("customer summary: %v", err)
	}
	if customerSummary.AvailableBalance != 100_000 {
		t.Fatalf("customer must receive the full order amount, got %d", customerSummary.AvailableBalance)
	}

	shopSummary, err := env.walletSvc.Summary(ctx, walletdomain.OwnerShop, 10)
	if err != nil {
		t.Fatalf("shop summary: %v", err)
	}
	if shopSummary.PendingBalance != 0 {
		t.Fatalf("shop escrow must be cleared, pending %d", shopSummary.PendingBalance)
	}

	platformSummary, err := env.walletSvc.Summary(ctx, walletdomain.OwnerPlatform, walletdomain.PlatformWalletOwner)
	if err != nil {
		t.Fatalf("platform summary: %v", err)
	}
	if platformSummary.AvailableBalance != 0 {
		t.Fatalf("commission must be returned, platform available %d", platformSummary.AvailableBalance)
	}

	var status string
	if err := env.db.Raw(`SELECT status FROM transactions WHERE id = ?`, link.ID).Scan(&status).Error; err != nil {
		t.Fatalf("read transaction: %v", err)
	}
	if status != string(txdomain.StatusRefunded) {
		t.Fatalf("fully refunded transaction must be marked refunded, got %s", status)
	}
}

func TestRefundAdminApproveUsesAvailableAfterRelease(t *testing.T) {
	env := setupRefundTestEnv(t)
	ctx := context.Background()
	orderID := env.insertPaidOrder(t, 10, 20, 50_000, env.now.Add(-24*time.Hour), true)
	env.seedCapture(t, orderID, 10, 50_000, 2_500, true)

	record, err := env.svc.Create(ctx, refunddomain.CreateRequest{
		OrderID:       orderID,
		RequesterID:   20,
		RequesterRole: refunddomain.RequesterCustomer,
		Reason:        "defective",
		Description:   "item arrived broken in half",
		Type:          refunddomain.TypePartial,
		Amount:        40_000,
	})
	if err != nil {
		t.Fatalf("create refund: %v", err)
	}
	if _, err := env.svc.ShopRespond(ctx, record.ID, 10, true, ""); err != nil {
		t.Fatalf("shop respond: %v", err)
	}
	resolved, err := env.svc.AdminRespond(ctx, record.ID, 99, true, "")
	if err != nil {
		t.Fatalf("admin respond: %v", err)
	}
	if resolved.RefundedFromEscrow {
		t.Fatalf("released order must refund from available balance")
	}

	// 40,000 of a 50,000 order with 2,500 commission: the platform
	// returns 2,000 pro rata, the shop the remaining 38,000.
	shopSummary, err := env.walletSvc.Summary(ctx, walletdomain.OwnerShop, 10)
	if err != nil {
		t.Fatalf("shop summary: %v", err)
	}
	if shopSummary.AvailableBalance != 9_500 {
		t.Fatalf("expected shop available 9500, got %d", shopSummary.AvailableBalance)
	}

	platformSummary, err := env.walletSvc.Summary(ctx, walletdomain.OwnerPlatform, walletdomain.PlatformWalletOwner)
	if err != nil {
		t.Fatalf("platform summary: %v", err)
	}
	if platformSummary.AvailableBalance != 500 {
		t.Fatalf("expected platform available 500, got %d", platformSummary.AvailableBalance)
	}

	customerSummary, err := env.walletSvc.Summary(ctx, walletdomain.OwnerCustomer, 20)
	if err != nil {
		t.Fatalf("customer summary: %v", err)
	}
	if customerSummary.AvailableBalance != 40_000 {
		t.Fatalf("expected customer credit 40000, got %d", customerSummary.AvailableBalance)
	}
}

func TestRefundAdminRejectEndsCase(t *testing.T) {
	env := setupRefundTestEnv(t)
	ctx := context.Background()
	orderID := env.insertPaidOrder(t, 10, 20, 100_000, env.now.Add(-24*time.Hour), false)
	record := env.createRequest(t, orderID, 20, 0)

	if _, err := env.svc.ShopRespond(ctx, record.ID, 10, true, ""); err != nil {
		t.Fatalf("shop respond: %v", err)
	}
	resolved, err := env.svc.AdminRespond(ctx, record.ID, 99, false, "insufficient evidence")
	if err != nil {
		t.Fatalf("admin reject: %v", err)
	}
	if resolved.Status != refunddomain.StatusAdminRejected {
		t.Fatalf("expected admin_rejected, got %s", resolved.Status)
	}
	if !resolved.Status.Terminal() {
		t.Fatalf("admin_rejected must be terminal")
	}

	_, err = env.svc.AdminRespond(ctx, record.ID, 99, true, "")
	if !errors.Is(err, refunddomain.ErrInvalidStateTransition) {
		t.Fatalf("terminal case must refuse further transitions, got %v", err)
	}
}

func TestRefundAdminApproveAdvancesTransactionStatus(t *testing.T) {
	env := setupRefundTestEnv(t)
	ctx := context.Background()
	firstOrder := env.insertPaidOrder(t, 10, 20, 100_000, env.now.Add(-24*time.Hour), false)
	secondOrder := env.insertPaidOrder(t, 11, 20, 50_000, env.now.Add(-24*time.Hour), false)
	env.credit(t, walletdomain.OwnerShop, 10, 95_000, walletdomain.BalancePending)
	env.credit(t, walletdomain.OwnerPlatform, walletdomain.PlatformWalletOwner, 7_500, walletdomain.BalanceAvailable)

	txn := txdomain.Transaction{
		ID:          env.node.Generate(),
		Code:        "TX-REFUND-TEST",
		Status:      txdomain.StatusCompleted,
		TotalAmount: 150_000,
		CreatedAt:   env.now.Add(-24 * time.Hour),
	}
	if err := env.db.Create(&txn).Error; err != nil {
		t.Fatalf("insert transaction: %v", err)
	}
	shares := []struct {
		orderID    snowflake.ID
		amount     int64
		commission int64
	}{
		{firstOrder, 100_000, 5_000},
		{secondOrder, 50_000, 2_500},
	}
	for _, share := range shares {
		if err := env.db.Create(&txdomain.TransactionOrder{
			ID:            env.node.Generate(),
			TransactionID: txn.ID,
			OrderID:       share.orderID,
			ShopID:        10,
			TotalAmount:   share.amount,
			Commission:    share.commission,
			ShopAmount:    share.amount - share.commission,
			CreatedAt:     env.now.Add(-24 * time.Hour),
		}).Error; err != nil {
			t.Fatalf("insert transaction order: %v", err)
		}
	}

	record := env.createRequest(t, firstOrder, 20, 0)
	if _, err := env.svc.ShopRespond(ctx, record.ID, 10, true, ""); err != nil {
		t.Fatalf("shop respond: %v", err)
	}
	if _, err := env.svc.AdminRespond(ctx, record.ID, 99, true, ""); err != nil {
		t.Fatalf("admin respond: %v", err)
	}

	var status string
	if err := env.db.Raw(`SELECT status FROM transactions WHERE id = ?`, txn.ID).Scan(&status).Error; err != nil {
		t.Fatalf("read transaction: %v", err)
	}
	if status != string(txdomain.StatusPartiallyRefunded) {
		t.Fatalf("refunding one of two orders must mark the transaction partially refunded, got %s", status)
	}
}

func TestRefundEscalateOnlyFromPendingShop(t *testing.T) {
	env := setupRefundTestEnv(t)
	ctx := context.Background()
	orderID := env.insertPaidOrder(t, 10, 20, 100_000, env.now.Add(-24*time.Hour), false)
	record := env.createRequest(t, orderID, 20, 0)

	escalated, err := env.svc.Escalate(ctx, record.ID, "shop did not respond within 48h")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if escalated.Status != refunddomain.StatusPendingAdmin {
		t.Fatalf("expected pending_admin, got %s", escalated.Status)
	}
	if escalated.EscalatedAt == nil || escalated.SystemNote == nil {
		t.Fatalf("escalation must record the system note")
	}

	_, err = env.svc.Escalate(ctx, record.ID, "again")
	if !errors.Is(err, refunddomain.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid state transition, got %v", err)
	}
}
