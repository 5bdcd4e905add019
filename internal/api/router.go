// Package api wires the HTTP surface: middleware, routes and handlers.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stockgame/tradingsim/internal/api/handler"
	"github.com/stockgame/tradingsim/internal/api/middleware"
	"github.com/stockgame/tradingsim/internal/auth"
	"github.com/stockgame/tradingsim/internal/logger"
	"github.com/stockgame/tradingsim/internal/metrics"
	"github.com/stockgame/tradingsim/internal/models"
	"go.uber.org/zap"
)

type Options struct {
	Services       handler.Services
	Verifier       auth.Verifier
	RequestTimeout time.Duration
	DevLogin       bool
	// Websocket serves GET /ws/prices when set.
	Websocket gin.HandlerFunc
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

func NewRouter(opts Options) *gin.Engine {
	log := logger.OrNop(opts.Logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Gin(log))
	r.Use(opts.Metrics.Gin())
	r.Use(middleware.Error(log))

	hd := handler.NewHandler(opts.Services)
	requireAuth := auth.RequireAuth(opts.Verifier)
	adminOnly := auth.RequireRole(models.RoleAdmin)

	r.GET("/health", handler.Health)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}
	if opts.Websocket != nil {
		// long-lived: no request timeout
		r.GET("/ws/prices", opts.Websocket)
	}

	api := r.Group("/api")
	api.Use(middleware.Timeout(opts.RequestTimeout))
	{
		authGroup := api.Group("/auth")
		if opts.DevLogin {
			authGroup.POST("/dev-login", hd.DevLogin)
		}
		authGroup.POST("/refresh", hd.RefreshToken)
		authGroup.POST("/logout", requireAuth, hd.Logout)

		userGroup := api.Group("/users", requireAuth)
		userGroup.GET("/me", hd.Me)
		userAdmin := userGroup.Group("", adminOnly)
		userAdmin.GET("", hd.ListUsers)
		userAdmin.POST("/make-admin", hd.MakeAdmin)
		userAdmin.GET("/:id", hd.GetUser)
		userAdmin.PUT("/:id", hd.UpdateUser)
		userAdmin.DELETE("/:id", hd.DeleteUser)

		stockGroup := api.Group("/stocks")
		stockGroup.GET("", hd.ListStocks)
		stockGroup.GET("/:id", hd.GetStock)
		stockAdmin := stockGroup.Group("", requireAuth, adminOnly)
		stockAdmin.POST("", hd.CreateStock)
		stockAdmin.POST("/simulate", hd.SimulatePrices)
		stockAdmin.PUT("/:id", hd.UpdateStock)
		stockAdmin.PUT("/:id/price", hd.UpdateStockPrice)
		stockAdmin.PUT("/:id/volume", hd.UpdateStockVolume)
		stockAdmin.DELETE("/:id", hd.DeleteStock)

		newsGroup := api.Group("/news")
		newsGroup.GET("", hd.ListPublishedNews)
		newsGroup.GET("/category/:category", hd.ListNewsByCategory)
		newsGroup.GET("/:id", hd.GetNews)
		newsAdmin := newsGroup.Group("", requireAuth, adminOnly)
		newsAdmin.GET("/all", hd.ListAllNews)
		newsAdmin.POST("", hd.CreateNews)
		newsAdmin.PUT("/:id", hd.UpdateNews)
		newsAdmin.PUT("/:id/publish", hd.PublishNews)
		newsAdmin.DELETE("/:id", hd.DeleteNews)

		portfolioGroup := api.Group("/portfolios", requireAuth)
		portfolioGroup.POST("/buy", hd.Buy)
		portfolioGroup.POST("/sell", hd.Sell)
		portfolioGroup.GET("", hd.GetHoldings)
		portfolioGroup.GET("/transactions", hd.GetTransactions)
		portfolioGroup.GET("/balance", hd.GetBalance)
		portfolioGroup.GET("/volume/stats", hd.GetAllVolumeStats)
		portfolioGroup.GET("/volume/stats/:stockId", hd.GetVolumeStats)
		portfolioGroup.GET("/:stockId", hd.GetHolding)

		lbGroup := api.Group("/leaderboard")
		lbGroup.GET("", hd.GetLeaderboard)
		lbGroup.GET("/history", hd.GetLeaderboardHistory)
		lbAdmin := lbGroup.Group("", requireAuth, adminOnly)
		lbAdmin.GET("/admin", hd.GetAdminLeaderboard)
		lbAdmin.GET("/stats", hd.GetLeaderboardStats)
		lbAdmin.PUT("/admin/:userId/visibility", hd.SetLeaderboardVisibility)
		lbAdmin.POST("/admin/refresh", hd.RefreshLeaderboard)
	}
	return r
}
