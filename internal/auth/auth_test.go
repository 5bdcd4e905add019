package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stockgame/tradingsim/internal/apperr"
	"github.com/stockgame/tradingsim/internal/config"
	"github.com/stockgame/tradingsim/internal/models"
	"github.com/stockgame/tradingsim/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	svc := NewService(st, config.AuthConfig{
		JWTSecret:   "test-secret",
		AccessTTL:   time.Hour,
		RefreshTTL:  24 * time.Hour,
		AdminEmails: []string{"Boss@Example.com"},
	}, nil)
	return svc, st
}

func TestLogin_CreatesThenReuses(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	id := Identity{Provider: "kakao", ProviderID: "42", Email: "p@example.com", Name: "Player"}

	first, err := svc.Login(ctx, id)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, models.RoleUser, first.User.Role)
	assert.True(t, first.User.Balance.Equal(models.InitialBalance))
	assert.Equal(t, "Player", first.User.Nickname)

	second, err := svc.Login(ctx, id)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.User.ID, second.User.ID)

	users, err := st.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	// the first session was dropped by the second login
	_, err = svc.Refresh(ctx, first.Tokens.RefreshToken)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestLogin_AdminEmail(t *testing.T) {
	svc, _ := newService(t)

	res, err := svc.Login(context.Background(), Identity{Provider: "google", ProviderID: "1", Email: "boss@example.com"})

	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, res.User.Role)
}

func TestLogin_PromotesExistingUserListedAsAdmin(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	id := Identity{Provider: "google", ProviderID: "7", Email: "late@example.com"}

	before, err := svc.Login(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, before.User.Role)

	promoted := NewService(st, config.AuthConfig{
		JWTSecret:   "test-secret",
		AccessTTL:   time.Hour,
		RefreshTTL:  time.Hour,
		AdminEmails: []string{"late@example.com"},
	}, nil)
	after, err := promoted.Login(ctx, id)
	require.NoError(t, err)

	assert.False(t, after.Created)
	assert.Equal(t, models.RoleAdmin, after.User.Role)
	stored, err := st.GetUser(ctx, before.User.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, stored.Role)
	claims, err := promoted.Verify(after.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestLogin_MissingIdentity(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Login(context.Background(), Identity{Provider: "google"})

	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestVerify(t *testing.T) {
	svc, _ := newService(t)
	res, err := svc.Login(context.Background(), Identity{Provider: "p", ProviderID: "1", Email: "a@b.c"})
	require.NoError(t, err)

	claims, err := svc.Verify(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.Subject)
	assert.Equal(t, "a@b.c", claims.Email)

	_, err = svc.Verify(res.Tokens.RefreshToken)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err), "refresh token is not an access token")

	_, err = svc.Verify(res.Tokens.AccessToken + "x")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Verify(res.Tokens.AccessToken)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestRefresh_Rotates(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	res, err := svc.Login(ctx, Identity{Provider: "p", ProviderID: "1"})
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.Tokens.RefreshToken, next.RefreshToken)

	_, err = svc.Refresh(ctx, res.Tokens.RefreshToken)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err), "old refresh token is consumed")

	_, err = svc.Refresh(ctx, next.RefreshToken)
	assert.NoError(t, err)
}

func TestLogout(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	res, err := svc.Login(ctx, Identity{Provider: "p", ProviderID: "1"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, res.User.ID))

	_, err = svc.Refresh(ctx, res.Tokens.RefreshToken)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := newService(t)
	ctx := context.Background()
	player, err := svc.Login(ctx, Identity{Provider: "p", ProviderID: "1"})
	require.NoError(t, err)
	admin, err := svc.Login(ctx, Identity{Provider: "p", ProviderID: "2", Email: "boss@example.com"})
	require.NoError(t, err)

	r := gin.New()
	// mirror the api error middleware closely enough to read the kind
	r.Use(func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			c.String(http.StatusTeapot, string(apperr.KindOf(c.Errors[0].Err)))
		}
	})
	r.GET("/me", RequireAuth(svc), func(c *gin.Context) { c.String(http.StatusOK, UserID(c)) })
	r.GET("/admin", RequireAuth(svc), RequireRole(models.RoleAdmin), func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	tests := []struct {
		name     string
		path     string
		token    string
		wantCode int
		wantBody string
	}{
		{"no token", "/me", "", http.StatusTeapot, "unauthorized"},
		{"garbage", "/me", "Bearer nope", http.StatusTeapot, "unauthorized"},
		{"player", "/me", "Bearer " + player.Tokens.AccessToken, http.StatusOK, player.User.ID},
		{"player on admin", "/admin", "Bearer " + player.Tokens.AccessToken, http.StatusTeapot, "forbidden"},
		{"admin", "/admin", "Bearer " + admin.Tokens.AccessToken, http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", tt.token)
			}

			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}
