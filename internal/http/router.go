package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arsenic-art/DreamFundr/internal/http/handlers"
	"github.com/arsenic-art/DreamFundr/internal/http/middleware"
	"github.com/arsenic-art/DreamFundr/internal/idempotency"
	"github.com/arsenic-art/DreamFundr/internal/modules/campaigns"
	"github.com/arsenic-art/DreamFundr/internal/modules/payments"
)

// Deps carries the wired services the router mounts.
type Deps struct {
	DB            *gorm.DB
	Campaigns     *campaigns.Repo
	Currency      string
	Orders        *payments.OrderService
	Confirmations *payments.ConfirmationService
	Webhooks      *payments.WebhookService
	Anomalies     *payments.AnomalyQueue
	Engine        *payments.SettlementEngine
	Ledger        *payments.Ledger
	Idempotency   *idempotency.Store // optional
	CookieName    string
	MaxBodyBytes  int64
}

func NewRouter(logger *slog.Logger, d Deps) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.ErrorHandler(logger),
		middleware.Recovery(logger),
		middleware.BodyLimit(d.MaxBodyBytes),
	)

	health := &handlers.HealthHandler{DB: d.DB}
	r.GET("/health", health.Health)

	api := r.Group("/api")

	// Raw body: nothing before this route may read or rewrite the body.
	wh := handlers.NewWebhookHandler(logger, d.Webhooks)
	api.POST("/payments/webhook", wh.Handle)

	authed := api.Group("", middleware.Sessions(middleware.SessionCfg{DB: d.DB, CookieName: d.CookieName}))

	pay := handlers.NewPaymentsHandler(logger, d.Orders, d.Confirmations)
	p := authed.Group("/payments", middleware.RequireAuth())
	p.POST("/create-order", middleware.Idempotency(d.Idempotency, logger), pay.CreateOrder)
	p.POST("/verify", pay.Verify)

	fr := handlers.NewFundraisersHandler(d.Campaigns, d.Currency)
	f := authed.Group("/fundraisers", middleware.RequireAuth())
	f.POST("", middleware.Idempotency(d.Idempotency, logger), fr.Create)
	f.POST("/:fundraiserId/close", fr.Close)

	don := handlers.NewDonationsHandler(d.Ledger)
	api.GET("/donations/fundraiser/:fundraiserId/stats", don.Stats)
	api.GET("/donations/fundraiser/:fundraiserId/top-donors", don.TopDonors)

	adm := handlers.NewAdminHandler(d.Anomalies, d.Engine, d.Ledger)
	a := authed.Group("/admin", middleware.RequireAdmin())
	a.GET("/anomalies", adm.ListAnomalies)
	a.POST("/anomalies/:id/resolve", adm.Resolve)
	a.POST("/anomalies/:id/reattribute", adm.Reattribute)
	a.GET("/reconcile/:fundraiserId", adm.Reconcile)

	return r
}
