package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/credential-gate/internal/core/domain"
	"github.com/arklim/credential-gate/internal/infra/config"
	"github.com/arklim/credential-gate/internal/infra/lock"
	"github.com/arklim/credential-gate/internal/infra/security"
	"github.com/arklim/credential-gate/internal/infra/telemetry"
	"github.com/arklim/credential-gate/internal/repository/sqlite"
	"github.com/arklim/credential-gate/internal/transport/http/handlers"
	"github.com/arklim/credential-gate/internal/transport/http/middleware"
	httproutes "github.com/arklim/credential-gate/internal/transport/http/routes"
	"github.com/arklim/credential-gate/internal/usecase"
)

const (
	adminSecret   = "Adm1n!Secret"
	userPassword  = "Abc12345!"
	adminTokenKey = "0123456789abcdef0123456789abcdef"
)

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	r := httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: logger,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

type testServer struct {
	engine   *gin.Engine
	registry *prometheus.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zaptest.NewLogger(t)
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "gate.db"))
	if err != nil {
		t.Fatalf("sqlite.Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	adminHash, err := hasher.Hash(adminSecret)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	registry := prometheus.NewRegistry()
	accountMetrics, err := telemetry.NewAccountMetrics(registry)
	if err != nil {
		t.Fatalf("NewAccountMetrics returned error: %v", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewHTTPMetrics returned error: %v", err)
	}

	tokens, err := security.NewAdminTokenManager([]byte(adminTokenKey), usecase.DefaultAdminIdentifier, time.Hour)
	if err != nil {
		t.Fatalf("NewAdminTokenManager returned error: %v", err)
	}

	locker := lock.NewKeyedLocker()
	policy := security.NewPasswordPolicy(nil)
	accounts := usecase.NewAccountService(store, locker, hasher, policy, nil, accountMetrics, usecase.AccountServiceConfig{Rules: domain.DefaultStatusRules()}, log)
	admin := usecase.NewAdminService(store, locker, hasher, policy, tokens, nil, accountMetrics, usecase.AdminServiceConfig{PasswordHash: adminHash}, log)

	engine := httproutes.Register(httproutes.Dependencies{
		Config:      &config.AppConfig{App: config.AppSettings{Env: "test"}},
		Logger:      log,
		Accounts:    accounts,
		Admin:       admin,
		HTTPMetrics: httpMetrics,
		Gatherer:    registry,
		Database:    store,
	})
	return &testServer{engine: engine, registry: registry}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestReadinessWithStore(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/readyz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[handlers.ReadyResponse](t, w)
	if resp.Checks["database"] != "ok" {
		t.Fatalf("expected database check ok, got %+v", resp.Checks)
	}
}

func TestAccountLifecycle(t *testing.T) {
	s := newTestServer(t)
	register := handlers.RegisterRequest{Identifier: "1234567", Password: userPassword, ConfirmPassword: userPassword}

	w := s.do(t, http.MethodPost, "/api/v1/accounts/register", "", register)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decode[handlers.AccountSummary](t, w)
	if created.Status != domain.AccountStatusPristine || strings.Contains(w.Body.String(), "password") {
		t.Fatalf("unexpected registration payload: %s", w.Body.String())
	}

	if w := s.do(t, http.MethodPost, "/api/v1/accounts/register", "", register); w.Code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/api/v1/accounts/register", "", handlers.RegisterRequest{Identifier: "12ab", Password: "short", ConfirmPassword: "other"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid register: expected 400, got %d", w.Code)
	}
	if resp := decode[handlers.ErrorResponse](t, w); len(resp.Reasons) < 2 {
		t.Fatalf("expected every violation reported, got %+v", resp.Reasons)
	}

	w = s.do(t, http.MethodPost, "/api/v1/accounts/login", "", handlers.LoginRequest{Identifier: "1234567", Password: userPassword})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decode[handlers.LoginResponse](t, w); resp.Account.Status != domain.AccountStatusActive {
		t.Fatalf("expected active account after login, got %s", resp.Account.Status)
	}

	if w := s.do(t, http.MethodPost, "/api/v1/accounts/login", "", handlers.LoginRequest{Identifier: "7654321", Password: userPassword}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown login: expected 404, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/v1/accounts/login", "", map[string]string{"identifier": "1234567"}); w.Code != http.StatusBadRequest {
		t.Fatalf("incomplete login: expected 400, got %d", w.Code)
	}

	for i := 0; i < 5; i++ {
		w := s.do(t, http.MethodPost, "/api/v1/accounts/login", "", handlers.LoginRequest{Identifier: "1234567", Password: "Wrong123!"})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("failure %d: expected 401, got %d", i+1, w.Code)
		}
	}

	w = s.do(t, http.MethodPost, "/api/v1/accounts/login", "", handlers.LoginRequest{Identifier: "1234567", Password: userPassword})
	if w.Code != http.StatusForbidden {
		t.Fatalf("blocked login: expected 403, got %d", w.Code)
	}
	if resp := decode[handlers.ErrorResponse](t, w); resp.Status != string(domain.AccountStatusBlocked) {
		t.Fatalf("expected blocked status in denial, got %+v", resp)
	}

	if w := s.do(t, http.MethodPost, "/api/v1/accounts/logout", "", handlers.LogoutRequest{Identifier: "1234567"}); w.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", w.Code)
	}

	metrics := s.do(t, http.MethodGet, "/metrics", "", nil).Body.String()
	for _, want := range []string{
		`gate_login_attempts_total{outcome="invalid_credentials"} 5`,
		`gate_account_status_transitions_total{from="active",to="blocked"} 1`,
		"gate_http_requests_total",
	} {
		if !strings.Contains(metrics, want) {
			t.Fatalf("expected metrics to contain %q", want)
		}
	}
}

func TestAdminFlow(t *testing.T) {
	s := newTestServer(t)
	register := handlers.RegisterRequest{Identifier: "123456", Password: userPassword, ConfirmPassword: userPassword}
	if w := s.do(t, http.MethodPost, "/api/v1/accounts/register", "", register); w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", w.Code)
	}

	if w := s.do(t, http.MethodGet, "/api/v1/admin/users", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list: expected 401, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/v1/admin/login", "", handlers.AdminLoginRequest{Password: "nope"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad admin secret: expected 401, got %d", w.Code)
	}

	w := s.do(t, http.MethodPost, "/api/v1/admin/login", "", handlers.AdminLoginRequest{Password: adminSecret})
	if w.Code != http.StatusOK {
		t.Fatalf("admin login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	session := decode[handlers.AdminLoginResponse](t, w)
	if session.TokenType != "Bearer" || session.Token == "" {
		t.Fatalf("unexpected admin session: %+v", session)
	}
	token := session.Token

	w = s.do(t, http.MethodGet, "/api/v1/admin/users", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list users: expected 200, got %d", w.Code)
	}
	if users := decode[handlers.UserListResponse](t, w); len(users.Users) != 1 || users.Users[0].Identifier != "123456" {
		t.Fatalf("unexpected users: %+v", users)
	}

	w = s.do(t, http.MethodPost, "/api/v1/admin/users/123456/status", token, handlers.ChangeStatusRequest{Status: "suspended"})
	if w.Code != http.StatusOK {
		t.Fatalf("change status: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if acc := decode[handlers.AccountSummary](t, w); acc.Status != domain.AccountStatusSuspended {
		t.Fatalf("expected suspended, got %s", acc.Status)
	}
	if w := s.do(t, http.MethodPost, "/api/v1/admin/users/123456/status", token, handlers.ChangeStatusRequest{Status: "suspended"}); w.Code != http.StatusConflict {
		t.Fatalf("unchanged status: expected 409, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/v1/admin/users/admin/status", token, handlers.ChangeStatusRequest{Status: "active"}); w.Code != http.StatusConflict {
		t.Fatalf("reserved account: expected 409, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/v1/admin/users/123456/status", token, handlers.ChangeStatusRequest{Status: "frozen"}); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown status: expected 400, got %d", w.Code)
	}

	if w := s.do(t, http.MethodPost, "/api/v1/accounts/login", "", handlers.LoginRequest{Identifier: "123456", Password: userPassword}); w.Code != http.StatusForbidden {
		t.Fatalf("suspended login: expected 403, got %d", w.Code)
	}

	if w := s.do(t, http.MethodPost, "/api/v1/admin/users/123456/password", token, handlers.ChangePasswordRequest{Password: "N3w!Passw0rd"}); w.Code != http.StatusNoContent {
		t.Fatalf("change password: expected 204, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/v1/admin/users/999999/password", token, handlers.ChangePasswordRequest{Password: "N3w!Passw0rd"}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown account password: expected 404, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/v1/admin/activities", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list activities: expected 200, got %d", w.Code)
	}
	activities := decode[handlers.ActivityListResponse](t, w).Activities
	if len(activities) == 0 || activities[0].ActionType != domain.ActionPasswordChange {
		t.Fatalf("expected password change as newest activity, got %+v", activities)
	}

	w = s.do(t, http.MethodGet, "/api/v1/admin/stats", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", w.Code)
	}
	if stats := decode[handlers.StatsResponse](t, w); stats.TotalUsers != 1 || stats.TotalActivities != len(activities) {
		t.Fatalf("unexpected stats: %+v (activities %d)", stats, len(activities))
	}
}
