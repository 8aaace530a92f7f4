// Package server exposes the settlement engine over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/escrow/internal/audit/domain"
	"github.com/smallbiznis/escrow/internal/authorization"
	"github.com/smallbiznis/escrow/internal/config"
	"github.com/smallbiznis/escrow/internal/observability/logger"
	"github.com/smallbiznis/escrow/internal/observability/metrics"
	"github.com/smallbiznis/escrow/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	platformdomain "github.com/smallbiznis/escrow/internal/platform/domain"
	refunddomain "github.com/smallbiznis/escrow/internal/refund/domain"
	txdomain "github.com/smallbiznis/escrow/internal/transaction/domain"
	walletdomain "github.com/smallbiznis/escrow/internal/wallet/domain"
	withdrawaldomain "github.com/smallbiznis/escrow/internal/withdrawal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg           config.Config
	Log           *zap.Logger
	DB            *gorm.DB
	WalletSvc     walletdomain.Service
	TxSvc         txdomain.Service
	RefundSvc     refunddomain.Service
	WithdrawalSvc withdrawaldomain.Service
	PlatformSvc   platformdomain.Service
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
}

type Server struct {
	cfg            config.Config
	log            *zap.Logger
	db             *gorm.DB
	walletSvc      walletdomain.Service
	txSvc          txdomain.Service
	refundSvc      refunddomain.Service
	withdrawalSvc  withdrawaldomain.Service
	platformSvc    platformdomain.Service
	authzSvc       authorization.Service
	auditSvc       auditdomain.Service
	webhookLimiter *rateLimiter
}

func NewServer(p Params) *Server {
	return &Server{
		cfg:            p.Cfg,
		log:            p.Log.Named("server"),
		db:             p.DB,
		walletSvc:      p.WalletSvc,
		txSvc:          p.TxSvc,
		refundSvc:      p.RefundSvc,
		withdrawalSvc:  p.WithdrawalSvc,
		platformSvc:    p.PlatformSvc,
		authzSvc:       p.AuthzSvc,
		auditSvc:       p.AuditSvc,
		webhookLimiter: newRateLimiter(p.Cfg.Webhook.RateLimit, p.Cfg.Webhook.RateWindow),
	}
}

func NewEngine(cfg config.Config, srv *Server, httpMetrics *metrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(tracing.GinMiddleware("escrow"))
	engine.Use(metrics.GinMiddleware(httpMetrics))
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv.RegisterRoutes(engine)
	return engine
}

func (s *Server) RegisterRoutes(engine *gin.Engine) {
	v1 := engine.Group("/v1")

	v1.POST("/payment-links", s.CreatePaymentLink)
	v1.GET("/transactions/:id", s.GetTransaction)
	v1.POST("/webhooks/:provider", s.HandleGatewayWebhook)

	v1.GET("/wallets/:owner_type/:owner_id/summary", s.GetWalletSummary)
	v1.GET("/wallets/:owner_type/:owner_id/entries", s.ListWalletEntries)

	v1.POST("/refunds", s.CreateRefundRequest)
	v1.GET("/refunds", s.ListRefundRequests)
	v1.GET("/refunds/:id", s.GetRefundRequest)
	v1.POST("/refunds/:id/shop-response", s.ShopRespondRefund)
	v1.POST("/refunds/:id/admin-response", s.AdminRespondRefund)

	v1.POST("/withdrawals", s.CreateWithdrawalRequest)
	v1.GET("/withdrawals", s.ListWithdrawalRequests)
	v1.GET("/withdrawals/:id", s.GetWithdrawalRequest)
	v1.POST("/withdrawals/:id/approve", s.ApproveWithdrawal)
	v1.POST("/withdrawals/:id/reject", s.RejectWithdrawal)
	v1.POST("/withdrawals/:id/cancel", s.CancelWithdrawal)
	v1.POST("/withdrawals/:id/payout-result", s.ReportPayoutResult)

	admin := v1.Group("/admin")
	admin.GET("/platform-config", s.GetPlatformConfig)
	admin.PUT("/platform-config", s.UpdatePlatformConfig)
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, engine *gin.Engine) {
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
	})
}

// Module wires the HTTP surface.
var Module = fx.Module("server",
	fx.Provide(
		NewServer,
		NewEngine,
		newHTTPMetrics,
	),
	fx.Invoke(RunHTTP),
)

func newHTTPMetrics(cfg config.Config) (*metrics.HTTPMetrics, error) {
	return metrics.NewHTTPMetrics(metrics.Config{
		ServiceName: "escrow",
		Environment: cfg.Environment,
	}, otel.GetMeterProvider())
}
