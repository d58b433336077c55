package auth

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/account-service/internal/domain"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

func newProtectedApp(tm *TokenManager) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var de *apperrors.DomainError
			if errors.As(err, &de) {
				return c.Status(de.HTTPStatus).SendString(de.Message)
			}
			return c.SendStatus(http.StatusInternalServerError)
		},
	})
	app.Get("/me", NewAuthMiddleware(tm).Handle, func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return c.SendStatus(http.StatusInternalServerError)
		}
		return c.SendString(identity.AccountID)
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", "account-service", time.Hour)
	app := newProtectedApp(tm)

	cred, err := tm.Issue(domain.Identity{AccountID: "acc-1", Email: "a@x.com"})
	require.NoError(t, err)

	expiring := NewTokenManager("secret", "account-service", time.Minute)
	expiring.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, err := expiring.Issue(domain.Identity{AccountID: "acc-1"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "valid", header: "Bearer " + cred.Token, status: http.StatusOK, body: "acc-1"},
		{name: "missing", header: "", status: http.StatusUnauthorized, body: "missing authorization header"},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized, body: "invalid authorization header"},
		{name: "bad token", header: "Bearer nope", status: http.StatusUnauthorized, body: "invalid token"},
		{name: "expired", header: "Bearer " + stale.Token, status: http.StatusUnauthorized, body: "token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(body))
		})
	}
}
