package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/service"
)

type testServer struct {
	app     *fiber.App
	queue   *events.MemoryQueue
	repo    *repository.MemoryAccountRepository
	metrics *observability.Metrics
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newServer(t *testing.T, accounts handlers.AccountService, tokens *auth.TokenManager, deps map[string]handlers.Pinger) *fiber.App {
	t.Helper()
	app := fiber.New()
	RegisterMiddlewares(app, MiddlewareConfig{
		Logger:         zap.NewNop(),
		Metrics:        observability.NewMetrics(),
		RequestTimeout: 5 * time.Second,
		AllowedOrigins: "http://localhost:4200",
	})
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("account-service", "test", deps),
		Accounts:       handlers.NewAccountsHandler(accounts),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return app
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Config{
		App:  config.AppConfig{Name: "account-service", PublicBaseURL: "http://localhost:8084"},
		Auth: config.AuthConfig{BcryptCost: bcrypt.MinCost, PhoneRegion: "KE"},
	}
	repo := repository.NewMemoryAccountRepository()
	queue := events.NewMemoryQueue(16, 10*time.Millisecond)
	metrics := observability.NewMetrics()
	tokens := auth.NewTokenManager("secret", cfg.App.Name, time.Hour)

	svc, err := service.NewAccountService(cfg, service.AccountDependencies{
		Accounts: repo,
		Tokens:   tokens,
		Notifier: service.NewNotificationDispatcher(queue, zap.NewNop(), metrics, time.Second),
		Logger:   zap.NewNop(),
		Metrics:  metrics,
	})
	require.NoError(t, err)

	return &testServer{
		app:     newServer(t, svc, tokens, map[string]handlers.Pinger{"postgres": stubPinger{}}),
		queue:   queue,
		repo:    repo,
		metrics: metrics,
	}
}

type response struct {
	status int
	body   map[string]any
}

func do(t *testing.T, app *fiber.App, method, target string, payload any, headers ...string) response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := response{status: resp.StatusCode, body: map[string]any{}}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.body), string(raw))
	}
	return out
}

func errorCode(r response) string {
	e, _ := r.body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func signupPayload() map[string]string {
	return map[string]string{
		"company":  "Acme",
		"kraPin":   "A123",
		"phone":    "0700000000",
		"email":    "a@x.com",
		"password": "secret",
	}
}

func TestAccountLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	res := do(t, s.app, http.MethodPost, "/api/auth/signup", signupPayload())
	require.Equal(t, http.StatusCreated, res.status)
	assert.Equal(t, true, res.body["success"])
	assert.Equal(t, true, res.body["requiresVerification"])

	account, err := s.repo.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.False(t, account.Verified)

	require.Equal(t, 1, s.queue.Len())
	delivery, err := s.queue.Receive(context.Background())
	require.NoError(t, err)
	n, err := events.DecodeActivationNotification(delivery.Payload)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", n.Email)
	link, err := url.Parse(n.ActivationLink)
	require.NoError(t, err)
	assert.Equal(t, "/api/auth/verify", link.Path)
	token := link.Query().Get("token")

	res = do(t, s.app, http.MethodGet, "/api/auth/verify?token="+url.QueryEscape(token), nil)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, true, res.body["verified"])

	res = do(t, s.app, http.MethodGet, "/api/auth/verify?token="+url.QueryEscape(token), nil)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, false, res.body["verified"])

	res = do(t, s.app, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "secret"})
	require.Equal(t, http.StatusOK, res.status)
	jwtToken, _ := res.body["token"].(string)
	require.NotEmpty(t, jwtToken)

	res = do(t, s.app, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, res.status)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(res))

	res = do(t, s.app, http.MethodGet, "/api/auth/me", nil, "Authorization", "Bearer "+jwtToken)
	require.Equal(t, http.StatusOK, res.status)
	data, _ := res.body["data"].(map[string]any)
	assert.Equal(t, "Acme", data["company"])
	assert.Equal(t, true, data["verified"])
	assert.NotContains(t, data, "password_hash")
}

func TestSignUpDuplicates(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(t, s.app, http.MethodPost, "/api/auth/signup", signupPayload()).status)

	dupEmail := signupPayload()
	dupEmail["kraPin"] = "B456"
	dupPhone := signupPayload()
	dupPhone["kraPin"] = "B456"
	dupPhone["email"] = "b@x.com"

	tests := []struct {
		name    string
		payload map[string]string
		code    string
	}{
		{"tax id", signupPayload(), "DUPLICATE_TAX_ID"},
		{"email", dupEmail, "DUPLICATE_EMAIL"},
		{"phone", dupPhone, "DUPLICATE_PHONE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := do(t, s.app, http.MethodPost, "/api/auth/signup", tt.payload)
			assert.Equal(t, http.StatusBadRequest, res.status)
			assert.Equal(t, tt.code, errorCode(res))
			assert.Equal(t, false, res.body["success"])
		})
	}
	assert.Equal(t, 1, s.repo.Len())
	assert.Equal(t, 1, s.queue.Len())
}

func TestSignUpValidation(t *testing.T) {
	s := newTestServer(t)

	payload := signupPayload()
	payload["email"] = "nope"
	res := do(t, s.app, http.MethodPost, "/api/auth/signup", payload)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(res))

	details, _ := res.body["error"].(map[string]any)["details"].(map[string]any)
	assert.Contains(t, details, "email")
	assert.Zero(t, s.repo.Len())
}

func TestLoginUnknownEmailMatchesWrongPassword(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(t, s.app, http.MethodPost, "/api/auth/signup", signupPayload()).status)

	unknown := do(t, s.app, http.MethodPost, "/api/auth/login", map[string]string{"email": "who@x.com", "password": "secret"})
	wrong := do(t, s.app, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "bad"})

	assert.Equal(t, http.StatusUnauthorized, unknown.status)
	assert.Equal(t, unknown, wrong)
}

func TestLoginIncompleteRequestsFailAsInvalidCredentials(t *testing.T) {
	s := newTestServer(t)
	wrong := do(t, s.app, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "bad"})

	for name, payload := range map[string]any{
		"empty password": map[string]string{"email": "a@x.com", "password": ""},
		"empty email":    map[string]string{"email": "", "password": "secret"},
		"no body":        nil,
	} {
		t.Run(name, func(t *testing.T) {
			res := do(t, s.app, http.MethodPost, "/api/auth/login", payload)
			assert.Equal(t, http.StatusUnauthorized, res.status)
			assert.Equal(t, "INVALID_CREDENTIALS", errorCode(res))
			assert.Equal(t, wrong, res)
		})
	}
}

func TestSignUpPasswordOverBcryptLimit(t *testing.T) {
	s := newTestServer(t)
	payload := signupPayload()
	payload["password"] = strings.Repeat("é", 40)

	res := do(t, s.app, http.MethodPost, "/api/auth/signup", payload)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(res))
	assert.Zero(t, s.repo.Len())
}

func TestMeRequiresBearer(t *testing.T) {
	s := newTestServer(t)

	res := do(t, s.app, http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, res.status)

	res = do(t, s.app, http.MethodGet, "/api/auth/me", nil, "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, res.status)
}

type brokenAccounts struct{}

func (brokenAccounts) Register(context.Context, service.RegisterInput) (*domain.Account, error) {
	return nil, errors.New("pq: connection refused to 10.0.0.5")
}

func (brokenAccounts) Verify(context.Context, string) (bool, error) {
	return false, errors.New("pq: connection refused")
}

func (brokenAccounts) Login(context.Context, string, string) (*domain.Credential, error) {
	return nil, errors.New("pq: connection refused")
}

func (brokenAccounts) Profile(context.Context, domain.Identity) (*domain.Account, error) {
	return nil, errors.New("pq: connection refused")
}

func TestUnexpectedErrorsAreGeneric(t *testing.T) {
	app := newServer(t, brokenAccounts{}, auth.NewTokenManager("secret", "account-service", time.Hour), nil)

	res := do(t, app, http.MethodPost, "/api/auth/signup", signupPayload())
	assert.Equal(t, http.StatusInternalServerError, res.status)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(res))
	assert.Equal(t, "internal server error", res.body["message"])

	res = do(t, app, http.MethodGet, "/api/auth/verify?token=x", nil)
	assert.Equal(t, http.StatusInternalServerError, res.status)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	res := do(t, s.app, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, "NOT_FOUND", errorCode(res))
	assert.Equal(t, "route not found", res.body["message"])
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/signup", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:4200", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	tokens := auth.NewTokenManager("secret", "account-service", time.Hour)

	ok := newServer(t, brokenAccounts{}, tokens, map[string]handlers.Pinger{"postgres": stubPinger{}})
	assert.Equal(t, http.StatusOK, do(t, ok, http.MethodGet, "/health/live", nil).status)
	res := do(t, ok, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "ready", res.body["status"])

	down := newServer(t, brokenAccounts{}, tokens, map[string]handlers.Pinger{"redis": stubPinger{err: errors.New("dial tcp: refused")}})
	res = do(t, down, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.status)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", errorCode(res))
}
