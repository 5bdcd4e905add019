package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/stockgame/tradingsim/internal/auth"
)

func (hd *Handler) GetHoldings(c *gin.Context) {
	holdings, err := hd.portfolios.Holdings(c.Request.Context(), auth.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, holdings)
}

// GetHolding returns null data when the caller does not hold the stock.
func (hd *Handler) GetHolding(c *gin.Context) {
	holding, err := hd.portfolios.Holding(c.Request.Context(), auth.UserID(c), c.Param("stockId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, holding)
}

func (hd *Handler) GetTransactions(c *gin.Context) {
	txs, err := hd.portfolios.Transactions(c.Request.Context(), auth.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, txs)
}

func (hd *Handler) GetBalance(c *gin.Context) {
	balance, err := hd.portfolios.Balance(c.Request.Context(), auth.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, balance)
}

func (hd *Handler) GetAllVolumeStats(c *gin.Context) {
	stats, err := hd.portfolios.AllVolumeStats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, stats)
}

func (hd *Handler) GetVolumeStats(c *gin.Context) {
	stats, err := hd.portfolios.VolumeStats(c.Request.Context(), c.Param("stockId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, stats)
}
