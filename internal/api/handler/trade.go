package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/stockgame/tradingsim/internal/api/dto"
	"github.com/stockgame/tradingsim/internal/auth"
	"github.com/stockgame/tradingsim/internal/trade"
)

// Buy handles POST /api/portfolios/buy. The buyer is always the caller.
func (hd *Handler) Buy(c *gin.Context) {
	hd.trade(c, hd.trades.Buy)
}

// Sell handles POST /api/portfolios/sell.
func (hd *Handler) Sell(c *gin.Context) {
	hd.trade(c, hd.trades.Sell)
}

func (hd *Handler) trade(c *gin.Context, exec func(context.Context, string, trade.Order) (*trade.Result, error)) {
	var req dto.TradeReq
	if !bind(c, &req) {
		return
	}

	res, err := exec(c.Request.Context(), auth.UserID(c), trade.Order{
		StockID:  req.StockID,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, res)
}
