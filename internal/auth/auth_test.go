package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testDBCounter atomic.Int64

func newTestService(t *testing.T) *Service {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, testDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	svc := NewService(db, NewTokenIssuer("test-secret", time.Hour))
	require.NoError(t, svc.Migrate())
	return svc
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "holder@example.com", "long-enough-password", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{RoleHolder}, []string(user.Roles))
	assert.NotEqual(t, "long-enough-password", user.PasswordHash)

	token, logged, err := svc.Login(ctx, "holder@example.com", "long-enough-password")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, user.ID, logged.ID)

	_, _, err = svc.Login(ctx, "holder@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "dup@example.com", "password-one", nil)
	require.NoError(t, err)

	_, err = svc.Register(ctx, "dup@example.com", "password-two", nil)
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTestService(t)
	issuer := svc.issuer

	user, err := svc.Register(context.Background(), "admin@example.com", "admin-password", []string{RoleAdmin, RoleIssuer})
	require.NoError(t, err)

	token, err := issuer.Issue(user)
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.ElementsMatch(t, []string{RoleAdmin, RoleIssuer}, claims.Roles)

	_, err = issuer.Parse(token + "tampered")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokenIssuer("different-secret", time.Hour)
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func setupRouter(t *testing.T, svc *Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	protected := r.Group("/", svc.issuer.Middleware())
	protected.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": Subject(c).String(), "admin": HasRole(c, RoleAdmin)})
	})
	protected.GET("/issuer-only", RequireRole(RoleIssuer), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	svc := newTestService(t)
	r := setupRouter(t, svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	svc := newTestService(t)
	r := setupRouter(t, svc)

	user, err := svc.Register(context.Background(), "h@example.com", "some-password", nil)
	require.NoError(t, err)
	token, err := svc.issuer.Issue(user)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), user.ID.String())
}

func TestRequireRole(t *testing.T) {
	svc := newTestService(t)
	r := setupRouter(t, svc)
	ctx := context.Background()

	holder, err := svc.Register(ctx, "holder@example.com", "some-password", nil)
	require.NoError(t, err)
	issuerUser, err := svc.Register(ctx, "issuer@example.com", "some-password", []string{RoleIssuer})
	require.NoError(t, err)
	admin, err := svc.Register(ctx, "admin@example.com", "some-password", []string{RoleAdmin})
	require.NoError(t, err)

	cases := []struct {
		name string
		user *User
		want int
	}{
		{"holder denied", holder, http.StatusForbidden},
		{"issuer allowed", issuerUser, http.StatusOK},
		{"admin passes every guard", admin, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token, err := svc.issuer.Issue(tc.user)
			require.NoError(t, err)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/issuer-only", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
