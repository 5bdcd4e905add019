package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stockgame/tradingsim/internal/api/middleware"
	"github.com/stockgame/tradingsim/internal/apperr"
	"github.com/stockgame/tradingsim/internal/auth"
	"github.com/stockgame/tradingsim/internal/models"
	"github.com/stockgame/tradingsim/internal/trade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockTrades struct{ mock.Mock }

func (m *mockTrades) Buy(ctx context.Context, userID string, o trade.Order) (*trade.Result, error) {
	args := m.Called(ctx, userID, o)
	res, _ := args.Get(0).(*trade.Result)
	return res, args.Error(1)
}

func (m *mockTrades) Sell(ctx context.Context, userID string, o trade.Order) (*trade.Result, error) {
	args := m.Called(ctx, userID, o)
	res, _ := args.Get(0).(*trade.Result)
	return res, args.Error(1)
}

type mockLeaderboard struct{ mock.Mock }

func (m *mockLeaderboard) Public(ctx context.Context) ([]models.LeaderboardEntry, error) {
	args := m.Called(ctx)
	entries, _ := args.Get(0).([]models.LeaderboardEntry)
	return entries, args.Error(1)
}

func (m *mockLeaderboard) Admin(ctx context.Context) ([]models.LeaderboardEntry, error) {
	args := m.Called(ctx)
	entries, _ := args.Get(0).([]models.LeaderboardEntry)
	return entries, args.Error(1)
}

func (m *mockLeaderboard) Stats(ctx context.Context) (*models.LeaderboardStats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(*models.LeaderboardStats)
	return stats, args.Error(1)
}

func (m *mockLeaderboard) ToggleVisibility(ctx context.Context, userID string, visible bool) error {
	return m.Called(ctx, userID, visible).Error(0)
}

func (m *mockLeaderboard) Recompute(ctx context.Context) ([]models.LeaderboardEntry, error) {
	args := m.Called(ctx)
	entries, _ := args.Get(0).([]models.LeaderboardEntry)
	return entries, args.Error(1)
}

func (m *mockLeaderboard) History(ctx context.Context, limit int) ([]models.LeaderboardSnapshot, error) {
	args := m.Called(ctx, limit)
	snaps, _ := args.Get(0).([]models.LeaderboardSnapshot)
	return snaps, args.Error(1)
}

// staticVerifier authenticates every bearer token as one user.
type staticVerifier struct{ userID string }

func (v staticVerifier) Verify(string) (*auth.Claims, error) {
	return &auth.Claims{Role: models.RoleUser, RegisteredClaims: jwt.RegisteredClaims{Subject: v.userID}}, nil
}

func setupRouter(s Services) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.Use(middleware.Error(nil))
	r.Use(middleware.Timeout(100 * time.Millisecond))

	hd := NewHandler(s)
	requireAuth := auth.RequireAuth(staticVerifier{userID: "user-1"})

	api := r.Group("/api")
	{
		api.POST("/portfolios/buy", requireAuth, hd.Buy)
		api.POST("/portfolios/sell", requireAuth, hd.Sell)
		api.GET("/leaderboard", hd.GetLeaderboard)
		api.GET("/leaderboard/history", hd.GetLeaderboardHistory)
	}
	return r
}

func TestIntegratedTradeHandlers(t *testing.T) {
	result := &trade.Result{Balance: decimal.NewFromInt(9_900_000)}
	order := trade.Order{StockID: "stock-1", Quantity: 100, Price: decimal.NewFromInt(1000)}

	testCases := []struct {
		name                 string
		url                  string
		body                 string
		setupMock            func(m *mockTrades)
		expectedStatusCode   int
		expectedBodyContains string
	}{
		{
			name: "Success - buyer comes from the token",
			url:  "/api/portfolios/buy",
			body: `{"stock_id":"stock-1","quantity":100,"price":"1000","user_id":"someone-else"}`,
			setupMock: func(m *mockTrades) {
				m.On("Buy", mock.Anything, "user-1", mock.MatchedBy(func(o trade.Order) bool {
					return o.StockID == order.StockID && o.Quantity == order.Quantity && o.Price.Equal(order.Price)
				})).Return(result, nil)
			},
			expectedStatusCode:   http.StatusOK,
			expectedBodyContains: `"balance":"9900000"`,
		},
		{
			name:                 "Failure - quantity must be positive",
			url:                  "/api/portfolios/buy",
			body:                 `{"stock_id":"stock-1","quantity":0,"price":1000}`,
			setupMock:            func(m *mockTrades) {},
			expectedStatusCode:   http.StatusBadRequest,
			expectedBodyContains: `"field":"Quantity"`,
		},
		{
			name:                 "Failure - price is not a number",
			url:                  "/api/portfolios/buy",
			body:                 `{"stock_id":"stock-1","quantity":1,"price":"abc"}`,
			setupMock:            func(m *mockTrades) {},
			expectedStatusCode:   http.StatusBadRequest,
			expectedBodyContains: "malformed request body",
		},
		{
			name: "Failure - insufficient funds",
			url:  "/api/portfolios/buy",
			body: `{"stock_id":"stock-1","quantity":100,"price":1000}`,
			setupMock: func(m *mockTrades) {
				m.On("Buy", mock.Anything, "user-1", mock.Anything).Return(nil, apperr.ErrInsufficientFunds)
			},
			expectedStatusCode:   http.StatusBadRequest,
			expectedBodyContains: `"code":"insufficient_funds"`,
		},
		{
			name: "Failure - sell without holding",
			url:  "/api/portfolios/sell",
			body: `{"stock_id":"stock-1","quantity":1,"price":1000}`,
			setupMock: func(m *mockTrades) {
				m.On("Sell", mock.Anything, "user-1", mock.Anything).Return(nil, apperr.ErrNoHolding)
			},
			expectedStatusCode:   http.StatusBadRequest,
			expectedBodyContains: `"code":"no_holding"`,
		},
		{
			name: "Failure - price mismatch",
			url:  "/api/portfolios/sell",
			body: `{"stock_id":"stock-1","quantity":1,"price":1}`,
			setupMock: func(m *mockTrades) {
				m.On("Sell", mock.Anything, "user-1", mock.Anything).Return(nil, apperr.ErrPriceMismatch)
			},
			expectedStatusCode:   http.StatusConflict,
			expectedBodyContains: `"code":"price_mismatch"`,
		},
		{
			name: "Failure - store error",
			url:  "/api/portfolios/buy",
			body: `{"stock_id":"stock-1","quantity":1,"price":1000}`,
			setupMock: func(m *mockTrades) {
				m.On("Buy", mock.Anything, "user-1", mock.Anything).Return(nil, errors.New("connection reset"))
			},
			expectedStatusCode:   http.StatusInternalServerError,
			expectedBodyContains: "internal server error",
		},
		{
			name: "Failure - trade is too slow and times out",
			url:  "/api/portfolios/buy",
			body: `{"stock_id":"stock-1","quantity":1,"price":1000}`,
			setupMock: func(m *mockTrades) {
				m.On("Buy", mock.Anything, "user-1", mock.Anything).
					After(200*time.Millisecond).
					Return(nil, context.DeadlineExceeded)
			},
			expectedStatusCode:   http.StatusGatewayTimeout,
			expectedBodyContains: "request timed out",
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			// ARRANGE
			m := new(mockTrades)
			tt.setupMock(m)
			router := setupRouter(Services{Trades: m})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, tt.url, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer token")

			// ACT
			router.ServeHTTP(w, req)

			// ASSERT
			assert.Equal(t, tt.expectedStatusCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBodyContains)
			m.AssertExpectations(t)
		})
	}
}

func TestIntegratedLeaderboardHandlers(t *testing.T) {
	entries := []models.LeaderboardEntry{{UserID: "u1", Username: "alice", Rank: 1, IsVisible: true}}

	testCases := []struct {
		name                 string
		url                  string
		setupMock            func(m *mockLeaderboard)
		expectedStatusCode   int
		expectedBodyContains string
	}{
		{
			name: "Success - public board",
			url:  "/api/leaderboard",
			setupMock: func(m *mockLeaderboard) {
				m.On("Public", mock.Anything).Return(entries, nil)
			},
			expectedStatusCode:   http.StatusOK,
			expectedBodyContains: `"username":"alice"`,
		},
		{
			name: "Success - history default limit",
			url:  "/api/leaderboard/history",
			setupMock: func(m *mockLeaderboard) {
				m.On("History", mock.Anything, 10).Return([]models.LeaderboardSnapshot{}, nil)
			},
			expectedStatusCode:   http.StatusOK,
			expectedBodyContains: `"data":[]`,
		},
		{
			name: "Success - history explicit limit",
			url:  "/api/leaderboard/history?limit=3",
			setupMock: func(m *mockLeaderboard) {
				m.On("History", mock.Anything, 3).Return([]models.LeaderboardSnapshot{}, nil)
			},
			expectedStatusCode:   http.StatusOK,
			expectedBodyContains: `"success":true`,
		},
		{
			name:                 "Failure - invalid limit parameter",
			url:                  "/api/leaderboard/history?limit=abc",
			setupMock:            func(m *mockLeaderboard) {},
			expectedStatusCode:   http.StatusBadRequest,
			expectedBodyContains: "invalid 'limit' query parameter",
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			m := new(mockLeaderboard)
			tt.setupMock(m)
			router := setupRouter(Services{Leaderboard: m})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, tt.url, nil)

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatusCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBodyContains)
			m.AssertExpectations(t)
		})
	}
}
