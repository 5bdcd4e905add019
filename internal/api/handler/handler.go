package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stockgame/tradingsim/internal/api/dto"
	"github.com/stockgame/tradingsim/internal/auth"
	"github.com/stockgame/tradingsim/internal/models"
	"github.com/stockgame/tradingsim/internal/news"
	"github.com/stockgame/tradingsim/internal/portfolio"
	"github.com/stockgame/tradingsim/internal/stocks"
	"github.com/stockgame/tradingsim/internal/trade"
	"github.com/stockgame/tradingsim/internal/users"
)

type TradeService interface {
	Buy(ctx context.Context, userID string, o trade.Order) (*trade.Result, error)
	Sell(ctx context.Context, userID string, o trade.Order) (*trade.Result, error)
}

type StockService interface {
	List(ctx context.Context) ([]models.Stock, error)
	Get(ctx context.Context, id string) (*models.Stock, error)
	Create(ctx context.Context, in stocks.CreateInput) (*models.Stock, error)
	Update(ctx context.Context, id string, in stocks.UpdateInput) (*models.Stock, error)
	UpdatePrice(ctx context.Context, id string, price decimal.Decimal) (*models.Stock, error)
	SetVolume(ctx context.Context, id string, volume int64) (*models.Stock, error)
	Delete(ctx context.Context, id string) error
	Simulate(ctx context.Context) ([]models.Stock, error)
}

type PortfolioService interface {
	Holdings(ctx context.Context, userID string) ([]portfolio.Position, error)
	Holding(ctx context.Context, userID, stockID string) (*portfolio.Position, error)
	Transactions(ctx context.Context, userID string) ([]portfolio.Trade, error)
	Balance(ctx context.Context, userID string) (*portfolio.Balance, error)
	VolumeStats(ctx context.Context, stockID string) (*portfolio.VolumeStats, error)
	AllVolumeStats(ctx context.Context) ([]portfolio.VolumeStats, error)
}

type NewsService interface {
	All(ctx context.Context) ([]models.News, error)
	Published(ctx context.Context) ([]models.News, error)
	ByCategory(ctx context.Context, category string) ([]models.News, error)
	Get(ctx context.Context, id string) (*models.News, error)
	Create(ctx context.Context, in news.CreateInput) (*models.News, error)
	Update(ctx context.Context, id string, in news.UpdateInput) (*models.News, error)
	SetPublished(ctx context.Context, id string, published bool) (*models.News, error)
	Delete(ctx context.Context, id string) error
}

type LeaderboardService interface {
	Public(ctx context.Context) ([]models.LeaderboardEntry, error)
	Admin(ctx context.Context) ([]models.LeaderboardEntry, error)
	Stats(ctx context.Context) (*models.LeaderboardStats, error)
	ToggleVisibility(ctx context.Context, userID string, visible bool) error
	Recompute(ctx context.Context) ([]models.LeaderboardEntry, error)
	History(ctx context.Context, limit int) ([]models.LeaderboardSnapshot, error)
}

type UserService interface {
	List(ctx context.Context) ([]models.User, error)
	Get(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, id string, in users.UpdateInput) (*models.User, error)
	MakeAdmin(ctx context.Context, email, nickname string) (*models.User, error)
	Delete(ctx context.Context, id string) error
}

type AuthService interface {
	Login(ctx context.Context, id auth.Identity) (*auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, userID string) error
	Me(ctx context.Context, userID string) (*models.User, error)
}

type Handler struct {
	trades      TradeService
	stocks      StockService
	portfolios  PortfolioService
	news        NewsService
	leaderboard LeaderboardService
	users       UserService
	auth        AuthService
}

type Services struct {
	Trades      TradeService
	Stocks      StockService
	Portfolios  PortfolioService
	News        NewsService
	Leaderboard LeaderboardService
	Users       UserService
	Auth        AuthService
}

func NewHandler(s Services) *Handler {
	return &Handler{
		trades:      s.Trades,
		stocks:      s.Stocks,
		portfolios:  s.Portfolios,
		news:        s.News,
		leaderboard: s.Leaderboard,
		users:       s.Users,
		auth:        s.Auth,
	}
}

// bind decodes the JSON body into obj. Failures are tagged as binding
// errors so they render as 400 whatever the decoder returned.
func bind(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return false
	}
	return true
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.Res{Success: true, Data: data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.Res{Success: true, Data: data})
}

func Health(c *gin.Context) {
	ok(c, gin.H{"status": "healthy"})
}
