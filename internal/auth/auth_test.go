package auth

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"battery_log/internal/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIssuer(t *testing.T) *Issuer {
	t.Helper()
	issuer, err := NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	return issuer
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer("", time.Hour)
	assert.ErrorIs(t, err, apperr.ErrNotConfigured)
}

func TestIssueAndVerify(t *testing.T) {
	issuer := newIssuer(t)

	token, err := issuer.Issue("u-1", RoleAdmin, "admin@test.com")
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.ID)
	assert.Equal(t, "admin@test.com", claims.Email)
	assert.True(t, claims.IsAdmin())
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestVerifyRejects(t *testing.T) {
	issuer := newIssuer(t)

	other, err := NewIssuer("other-secret", time.Hour)
	require.NoError(t, err)
	foreign, err := other.Issue("u-1", RoleUser, "a@b.c")
	require.NoError(t, err)

	expiredIssuer := newIssuer(t)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredIssuer.Issue("u-1", RoleUser, "a@b.c")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{ID: "u-1", Role: RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong secret": foreign,
		"expired":      expired,
		"alg none":     unsigned,
		"garbage":      "not.a.token",
	} {
		_, err := issuer.Verify(token)
		assert.Error(t, err, name)
	}
}

func testApp(issuer *Issuer) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(apperr.HTTPStatus(apperr.KindOf(err))).
				JSON(fiber.Map{"message": apperr.MessageOf(err, "Server error")})
		},
	})
	app.Get("/me", RequireAuth(issuer), func(c *fiber.Ctx) error {
		return c.SendString(ClaimsFrom(c).ID)
	})
	app.Get("/admin", RequireAuth(issuer), RequireAdmin(), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func call(t *testing.T, app *fiber.App, path, authorization string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func message(t *testing.T, body string) string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out["message"]
}

func TestRequireAuth(t *testing.T) {
	issuer := newIssuer(t)
	app := testApp(issuer)
	token, err := issuer.Issue("u-7", RoleUser, "u@test.com")
	require.NoError(t, err)

	status, body := call(t, app, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "No token provided", message(t, body))

	status, body = call(t, app, "/me", token)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "No token provided", message(t, body))

	status, body = call(t, app, "/me", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid or expired token", message(t, body))

	status, body = call(t, app, "/me", "Bearer "+token)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "u-7", body)
}

func TestRequireAdmin(t *testing.T) {
	issuer := newIssuer(t)
	app := testApp(issuer)

	userToken, err := issuer.Issue("u-1", RoleUser, "u@test.com")
	require.NoError(t, err)
	adminToken, err := issuer.Issue("a-1", RoleAdmin, "a@test.com")
	require.NoError(t, err)

	status, body := call(t, app, "/admin", "Bearer "+userToken)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Admins only", message(t, body))

	status, _ = call(t, app, "/admin", "Bearer "+adminToken)
	assert.Equal(t, http.StatusOK, status)
}
