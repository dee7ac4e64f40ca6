package api_gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/referral-ledger/internal/api_gateway/handler"
	"github.com/referral-ledger/internal/api_gateway/middleware"
	"github.com/referral-ledger/internal/metrics"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck probes one dependency; a non-nil error marks the gateway degraded
type HealthCheck func(ctx context.Context) error

type handlers struct {
	member      *handler.MemberHandler
	transaction *handler.TransactionHandler
	admin       *handler.AdminHandler
	payment     *handler.PaymentHandler
}

// setupRouter registers middleware and routes
func setupRouter(logger *slog.Logger, r *gin.Engine, h handlers, adminToken string, checks map[string]HealthCheck) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())

	v1 := r.Group("/api/v1")
	{
		members := v1.Group("/members")
		{
			members.POST("", h.member.Join)
			members.GET("/:id", h.member.GetByID)
			members.GET("/:id/referrals", h.member.Referrals)
			members.GET("/:id/chain", h.member.Chain)
			members.GET("/:id/tree", h.member.Tree)
			members.POST("/:id/transactions", h.transaction.Create)
			members.GET("/:id/transactions", h.transaction.ListByMember)
		}

		v1.GET("/transactions/:id", h.transaction.GetByID)
		v1.POST("/payments/confirmations", h.payment.Confirm)

		admin := v1.Group("/admin", middleware.AdminAuth(adminToken, logger))
		{
			admin.GET("/transactions", h.transaction.List)
			admin.POST("/transactions/:id/approve", h.admin.Approve)
			admin.POST("/transactions/:id/reject", h.admin.Reject)
			admin.POST("/members/:id/adjustments", h.admin.Adjust)
			admin.GET("/members/:id/distributions", h.admin.MemberEvents)
			admin.POST("/distributions", h.admin.Distribute)
			admin.GET("/distributions/:source_ref", h.admin.DistributionEvent)
			admin.GET("/summary", h.admin.Summary)
			admin.GET("/settings", h.admin.Settings)
			admin.GET("/settings/:key", h.admin.Setting)
			admin.PUT("/settings/:key", h.admin.UpdateSetting)
		}
	}

	r.GET("/health", healthHandler(checks))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(gin.H, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{"status": overall, "checks": results, "timestamp": time.Now().UTC()})
	}
}
