package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stockgame/tradingsim/internal/api/handler"
	"github.com/stockgame/tradingsim/internal/auth"
	"github.com/stockgame/tradingsim/internal/config"
	"github.com/stockgame/tradingsim/internal/leaderboard"
	"github.com/stockgame/tradingsim/internal/metrics"
	"github.com/stockgame/tradingsim/internal/news"
	"github.com/stockgame/tradingsim/internal/portfolio"
	"github.com/stockgame/tradingsim/internal/stocks"
	"github.com/stockgame/tradingsim/internal/store/memory"
	"github.com/stockgame/tradingsim/internal/trade"
	"github.com/stockgame/tradingsim/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type app struct {
	t      *testing.T
	router *gin.Engine
}

func newApp(t *testing.T) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := memory.New()
	authSvc := auth.NewService(st, config.AuthConfig{
		JWTSecret:   "secret",
		AccessTTL:   time.Hour,
		RefreshTTL:  time.Hour,
		AdminEmails: []string{"admin@example.com"},
	}, nil)

	router := NewRouter(Options{
		Services: handler.Services{
			Trades:      trade.NewEngine(st, trade.Options{PriceTolerance: 0.05}),
			Stocks:      stocks.NewService(st, stocks.Options{}),
			Portfolios:  portfolio.NewService(st),
			News:        news.NewService(st, nil),
			Leaderboard: leaderboard.NewRanker(st, leaderboard.Options{}),
			Users:       users.NewService(st, nil),
			Auth:        authSvc,
		},
		Verifier:       authSvc,
		RequestTimeout: 5 * time.Second,
		DevLogin:       true,
		Metrics:        metrics.New(),
	})
	return &app{t: t, router: router}
}

type envelope struct {
	Success bool            `json:"success"`
	Error   json.RawMessage `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (a *app) do(method, path, token string, body any) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" && bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func (a *app) login(providerID, email string) string {
	a.t.Helper()
	code, env := a.do(http.MethodPost, "/api/auth/dev-login", "", map[string]string{
		"provider": "dev", "provider_id": providerID, "email": email, "nickname": providerID,
	})
	require.Equal(a.t, http.StatusCreated, code, string(env.Error))
	var res struct {
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	require.NoError(a.t, json.Unmarshal(env.Data, &res))
	return res.Tokens.AccessToken
}

func TestRouter_GameFlow(t *testing.T) {
	a := newApp(t)
	admin := a.login("admin", "admin@example.com")
	player := a.login("player", "player@example.com")

	// admin lists a stock; players may not
	code, env := a.do(http.MethodPost, "/api/stocks", admin, map[string]any{
		"name": "Samsung", "symbol": "005930", "current_price": "1000",
	})
	require.Equal(t, http.StatusCreated, code, string(env.Error))
	var stock struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stock))

	code, _ = a.do(http.MethodPost, "/api/stocks", player, map[string]any{
		"name": "X", "symbol": "000001", "current_price": "1",
	})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodGet, "/api/stocks/"+stock.ID, "", nil)
	assert.Equal(t, http.StatusOK, code)

	// player trades
	code, env = a.do(http.MethodPost, "/api/portfolios/buy", player, map[string]any{
		"stock_id": stock.ID, "quantity": 100, "price": "1000",
	})
	require.Equal(t, http.StatusOK, code, string(env.Error))

	code, env = a.do(http.MethodPost, "/api/portfolios/sell", player, map[string]any{
		"stock_id": stock.ID, "quantity": 500, "price": "1000",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(env.Error), "insufficient_quantity")

	code, env = a.do(http.MethodGet, "/api/portfolios/balance", player, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"balance":"9900000"`)

	code, env = a.do(http.MethodGet, "/api/portfolios/"+stock.ID, player, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"quantity":100`)

	code, env = a.do(http.MethodGet, "/api/portfolios/volume/stats/"+stock.ID, player, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"buy_quantity":100`)

	code, _ = a.do(http.MethodGet, "/api/portfolios", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// ranking
	code, _ = a.do(http.MethodPost, "/api/leaderboard/admin/refresh", admin, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = a.do(http.MethodGet, "/api/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, code)
	var board []struct {
		Username string `json:"username"`
		Rank     int    `json:"rank"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &board))
	require.Len(t, board, 2)
	assert.Equal(t, 1, board[0].Rank)

	code, env = a.do(http.MethodGet, "/api/users/me", player, nil)
	require.Equal(t, http.StatusOK, code)
	var me struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))

	code, _ = a.do(http.MethodPut, "/api/leaderboard/admin/"+me.ID+"/visibility", admin, map[string]bool{"is_visible": false})
	require.Equal(t, http.StatusOK, code)

	_, env = a.do(http.MethodGet, "/api/leaderboard", "", nil)
	require.NoError(t, json.Unmarshal(env.Data, &board))
	require.Len(t, board, 1)
	assert.Equal(t, "admin", board[0].Username)
}

func TestRouter_News(t *testing.T) {
	a := newApp(t)
	admin := a.login("admin", "admin@example.com")

	code, env := a.do(http.MethodPost, "/api/news", admin, map[string]any{
		"title": "Draft", "content": "body", "category": "market",
	})
	require.Equal(t, http.StatusCreated, code, string(env.Error))
	var n struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &n))

	_, env = a.do(http.MethodGet, "/api/news", "", nil)
	assert.JSONEq(t, `[]`, string(env.Data))

	code, _ = a.do(http.MethodPut, "/api/news/"+n.ID+"/publish", admin, map[string]bool{"is_published": true})
	require.Equal(t, http.StatusOK, code)

	_, env = a.do(http.MethodGet, "/api/news/category/market", "", nil)
	assert.Contains(t, string(env.Data), n.ID)

	code, _ = a.do(http.MethodGet, "/api/news/all", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.do(http.MethodDelete, "/api/news/"+n.ID, admin, nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = a.do(http.MethodGet, "/api/news/"+n.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRouter_MalformedInput(t *testing.T) {
	a := newApp(t)
	admin := a.login("admin", "admin@example.com")
	player := a.login("player", "player@example.com")

	code, env := a.do(http.MethodPost, "/api/stocks", admin, map[string]any{
		"name": "Samsung", "symbol": "005930", "current_price": "1000",
	})
	require.Equal(t, http.StatusCreated, code, string(env.Error))
	var stock struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stock))

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"buy with non-numeric price", http.MethodPost, "/api/portfolios/buy", player,
			map[string]any{"stock_id": stock.ID, "quantity": 1, "price": "abc"}, http.StatusBadRequest},
		{"create stock with cut exponent", http.MethodPost, "/api/stocks", admin,
			map[string]any{"name": "X", "symbol": "000001", "current_price": "1e"}, http.StatusBadRequest},
		{"price update with non-numeric price", http.MethodPut, "/api/stocks/" + stock.ID + "/price", admin,
			map[string]any{"price": "abc"}, http.StatusBadRequest},
		{"unknown stock id", http.MethodGet, "/api/stocks/nope", "", nil, http.StatusNotFound},
		{"buy unknown stock id", http.MethodPost, "/api/portfolios/buy", player,
			map[string]any{"stock_id": "nope", "quantity": 1, "price": "1000"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := a.do(tt.method, tt.path, tt.token, tt.body)

			assert.Equal(t, tt.want, code, string(env.Error))
			assert.NotContains(t, string(env.Error), "internal server error")
		})
	}
}

func TestRouter_UserAdministration(t *testing.T) {
	a := newApp(t)
	admin := a.login("admin", "admin@example.com")
	player := a.login("player", "player@example.com")

	code, _ := a.do(http.MethodGet, "/api/users", player, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodPost, "/api/users/make-admin", player, map[string]string{"nickname": "player"})
	assert.Equal(t, http.StatusForbidden, code)

	code, env := a.do(http.MethodGet, "/api/users", admin, nil)
	require.Equal(t, http.StatusOK, code)
	var list []struct {
		ID       string `json:"id"`
		Nickname string `json:"nickname"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 2)
	var playerID string
	for _, u := range list {
		if u.Nickname == "player" {
			playerID = u.ID
		}
	}
	require.NotEmpty(t, playerID)

	code, env = a.do(http.MethodPut, "/api/users/"+playerID, admin, map[string]string{"role": "ROOT"})
	assert.Equal(t, http.StatusBadRequest, code, string(env.Error))

	code, env = a.do(http.MethodPost, "/api/users/make-admin", admin, map[string]string{"email": "player@example.com"})
	require.Equal(t, http.StatusOK, code, string(env.Error))
	assert.Contains(t, string(env.Data), `"role":"ADMIN"`)

	code, env = a.do(http.MethodPut, "/api/users/"+playerID, admin, map[string]string{"nickname": "renamed", "role": "USER"})
	require.Equal(t, http.StatusOK, code, string(env.Error))
	assert.Contains(t, string(env.Data), `"nickname":"renamed"`)

	code, _ = a.do(http.MethodPost, "/api/users/make-admin", admin, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(http.MethodDelete, "/api/users/"+playerID, admin, nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = a.do(http.MethodGet, "/api/users/"+playerID, admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	a := newApp(t)

	code, env := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stockgame_http_requests_total")
}
