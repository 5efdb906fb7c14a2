package auth

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/helpdesk-hub/ticket-service/pkg/util/errorutil"
)

func newApp(mw *AuthMiddleware, guards ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := apperrors.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).SendString(domainErr.Code)
		},
	})
	handlers := append([]fiber.Handler{mw.Handle}, guards...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return c.SendString("anonymous")
		}
		return c.SendString(principal.SubjectID + ":" + string(principal.Role))
	})
	app.Get("/", handlers...)
	return app
}

func call(t *testing.T, app *fiber.App, header string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(fiber.HeaderAuthorization, header)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 10)
	token, expiresAt, err := tm.GenerateToken("agent-7", RoleAssignee)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), expiresAt, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-7", claims.Subject)
	assert.Equal(t, RoleAssignee, claims.Role)

	_, err = NewTokenManager("other", 10).ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	tm := NewTokenManager("secret", 10)
	claims := &Claims{
		Role: RoleRequestor,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = tm.ParseToken(signed)
	assert.Error(t, err)
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" Moderator ")
	assert.True(t, ok)
	assert.Equal(t, RoleModerator, role)

	_, ok = ParseRole("superuser")
	assert.False(t, ok)
}

func TestMiddlewareOptionalAuth(t *testing.T) {
	tm := NewTokenManager("secret", 10)
	app := newApp(NewAuthMiddleware(tm, false))

	status, body := call(t, app, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "anonymous", body)

	token, _, err := tm.GenerateToken("user-1", RoleRequestor)
	require.NoError(t, err)
	status, body = call(t, app, "Bearer "+token)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "user-1:requestor", body)

	status, body = call(t, app, "Basic abc")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, apperrors.CodeUnauthorized, body)
}

func TestMiddlewareRequiredAuth(t *testing.T) {
	app := newApp(NewAuthMiddleware(NewTokenManager("secret", 10), true))

	status, body := call(t, app, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, apperrors.CodeUnauthorized, body)
}

func TestRequireRole(t *testing.T) {
	tm := NewTokenManager("secret", 10)
	app := newApp(NewAuthMiddleware(tm, false), RequireRole(RoleModerator, RoleAdmin))

	status, _ := call(t, app, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	requestor, _, err := tm.GenerateToken("user-1", RoleRequestor)
	require.NoError(t, err)
	status, body := call(t, app, "Bearer "+requestor)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, apperrors.CodeForbidden, body)

	admin, _, err := tm.GenerateToken("root", RoleAdmin)
	require.NoError(t, err)
	status, body = call(t, app, "Bearer "+admin)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "root:admin", body)
}

func TestRequireRoleErrorMatchesForbidden(t *testing.T) {
	tm := NewTokenManager("secret", 10)
	var got error
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			got = err
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	app.Get("/", NewAuthMiddleware(tm, true).Handle, RequireRole(RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	assignee, _, err := tm.GenerateToken("agent-2", RoleAssignee)
	require.NoError(t, err)
	status, _ := call(t, app, "Bearer "+assignee)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.ErrorIs(t, got, apperrors.ErrForbidden)
	assert.NotErrorIs(t, got, apperrors.ErrValidation)
}
