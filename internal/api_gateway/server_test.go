package api_gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/referral-ledger/internal/api_gateway/middleware"
	"github.com/referral-ledger/internal/api_gateway/service"
	"github.com/referral-ledger/internal/config"
	"github.com/referral-ledger/internal/data/memory"
	"github.com/referral-ledger/internal/domain/settings"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/referral/approval"
	"github.com/referral-ledger/internal/referral/configuration"
	"github.com/referral-ledger/internal/referral/distribution"
	"github.com/referral-ledger/internal/referral/placement"
	"github.com/referral-ledger/internal/referral/queries"
	"github.com/referral-ledger/internal/referral/reporting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminToken = "admin-secret"

type recordingPublisher struct {
	mu   sync.Mutex
	sent []*shared.PaymentConfirmation
}

func (p *recordingPublisher) PublishPayment(_ context.Context, c *shared.PaymentConfirmation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, c)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type gateway struct {
	handler   http.Handler
	publisher *recordingPublisher
}

func newGateway(t *testing.T, snap settings.Snapshot, checks map[string]HealthCheck) *gateway {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	store := memory.NewStore()

	provider := configuration.NewProvider(logger, store.Settings(), snap, clock)
	placementSvc := placement.NewService(store, store.Members(), provider, clock, logger)
	querySvc := queries.NewService(store.Members(), provider, logger)
	distributionSvc := distribution.NewService(store, store.Members(), store.Ledger(), store.Outbox(), provider, clock, logger)
	approvalSvc := approval.NewService(store, store.Members(), store.Ledger(), distributionSvc, provider, clock, logger)
	reportingSvc := reporting.NewService(store.Members(), store.Ledger(), logger)
	publisher := &recordingPublisher{}

	cfg := &config.Config{
		Server: config.ServerConfig{Port: 0, ShutdownTimeout: time.Second},
		Admin:  config.AdminConfig{Token: testAdminToken},
	}
	srv := NewServer(logger, cfg, Services{
		Members:      service.NewMemberService(logger, placementSvc, querySvc, store.Members()),
		Transactions: service.NewTransactionService(logger, approvalSvc, reportingSvc, store.Ledger()),
		Admin:        service.NewAdminService(logger, approvalSvc, distributionSvc, reportingSvc, provider, nil),
		Payments:     service.NewPaymentService(logger, publisher, clock),
		HealthChecks: checks,
	})

	return &gateway{handler: srv.Handler(), publisher: publisher}
}

func (g *gateway) call(t *testing.T, method, path, body string, admin bool) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set(middleware.AdminTokenHeader, testAdminToken)
	}

	rr := httptest.NewRecorder()
	g.handler.ServeHTTP(rr, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded), rr.Body.String())
	return rr.Code, decoded
}

func dataField(t *testing.T, resp map[string]any, key string) any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", resp)
	return data[key]
}

func TestGateway_ReferralFlow(t *testing.T) {
	snap := settings.DefaultSnapshot()
	snap.BranchingFactor = 2
	g := newGateway(t, snap, nil)

	status, resp := g.call(t, http.MethodPost, "/api/v1/members", `{"username":"root"}`, false)
	require.Equal(t, http.StatusCreated, status)
	rootID := dataField(t, resp, "member").(map[string]any)["id"].(string)

	for _, name := range []string{"a", "b"} {
		status, _ = g.call(t, http.MethodPost, "/api/v1/members", `{"username":"`+name+`","referral_code":"root"}`, false)
		require.Equal(t, http.StatusCreated, status)
	}

	status, resp = g.call(t, http.MethodPost, "/api/v1/members", `{"username":"c","referral_code":"root"}`, false)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "BRANCHING_LIMIT_EXCEEDED", resp["error"].(map[string]any)["code"])

	status, resp = g.call(t, http.MethodPost, "/api/v1/members", `{"username":"d"}`, false)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(2), dataField(t, resp, "level"), "auto-placement fills the first open slot below the full root")
	childID := dataField(t, resp, "member").(map[string]any)["id"].(string)

	status, resp = g.call(t, http.MethodGet, "/api/v1/members/"+childID+"/chain", "", false)
	require.Equal(t, http.StatusOK, status)
	ancestors := dataField(t, resp, "ancestors").([]any)
	require.Len(t, ancestors, 2)
	assert.Equal(t, rootID, ancestors[1])

	status, resp = g.call(t, http.MethodPost, "/api/v1/members/"+childID+"/transactions", `{"kind":"DEPOSIT","amount":"100"}`, false)
	require.Equal(t, http.StatusCreated, status)
	entryID := dataField(t, resp, "id").(string)

	status, _ = g.call(t, http.MethodPost, "/api/v1/admin/transactions/"+entryID+"/approve", "", false)
	assert.Equal(t, http.StatusUnauthorized, status, "admin routes need the token")

	status, resp = g.call(t, http.MethodPost, "/api/v1/admin/transactions/"+entryID+"/approve", "", true)
	require.Equal(t, http.StatusOK, status)
	dist := dataField(t, resp, "distribution").(map[string]any)
	assert.Len(t, dist["credits"].([]any), 2)

	status, resp = g.call(t, http.MethodGet, "/api/v1/admin/summary", "", true)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(4), dataField(t, resp, "members"), "the rejected join left no member behind")

	status, resp = g.call(t, http.MethodGet, "/api/v1/admin/distributions/"+entryID, "", true)
	assert.Equal(t, http.StatusServiceUnavailable, status, "no audit store configured")
	assert.Equal(t, "AUDIT_UNAVAILABLE", resp["error"].(map[string]any)["code"])
}

func TestGateway_PaymentConfirmationQueued(t *testing.T) {
	g := newGateway(t, settings.DefaultSnapshot(), nil)

	status, resp := g.call(t, http.MethodPost, "/api/v1/payments/confirmations", `{"session_id":"cs_9","member_id":"m1","amount":"100","paid":true}`, false)

	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "QUEUED", dataField(t, resp, "status"))
	require.Len(t, g.publisher.sent, 1)
	assert.NotEmpty(t, g.publisher.sent[0].CorrelationID)
	assert.False(t, g.publisher.sent[0].Timestamp.IsZero())
}

func TestGateway_Health(t *testing.T) {
	t.Run("AllHealthy", func(t *testing.T) {
		g := newGateway(t, settings.DefaultSnapshot(), map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		})

		status, resp := g.call(t, http.MethodGet, "/health", "", false)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "ok", resp["status"])
	})

	t.Run("Degraded", func(t *testing.T) {
		g := newGateway(t, settings.DefaultSnapshot(), map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"mongodb":  func(context.Context) error { return errors.New("no reachable servers") },
		})

		status, resp := g.call(t, http.MethodGet, "/health", "", false)
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, "degraded", resp["status"])
		checks := resp["checks"].(map[string]any)
		assert.Equal(t, "ok", checks["postgres"])
		assert.Equal(t, "no reachable servers", checks["mongodb"])
	})
}

func TestGateway_Metrics(t *testing.T) {
	g := newGateway(t, settings.DefaultSnapshot(), nil)
	g.call(t, http.MethodGet, "/health", "", false)

	rr := httptest.NewRecorder()
	g.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `referral_http_requests_total{method="GET",route="/health",status="200"}`)
}
