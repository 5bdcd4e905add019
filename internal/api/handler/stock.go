package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stockgame/tradingsim/internal/api/dto"
	"github.com/stockgame/tradingsim/internal/stocks"
)

func (hd *Handler) ListStocks(c *gin.Context) {
	list, err := hd.stocks.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, list)
}

func (hd *Handler) GetStock(c *gin.Context) {
	s, err := hd.stocks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, s)
}

func (hd *Handler) CreateStock(c *gin.Context) {
	var req dto.CreateStockReq
	if !bind(c, &req) {
		return
	}
	s, err := hd.stocks.Create(c.Request.Context(), stocks.CreateInput{
		Name:         req.Name,
		Symbol:       req.Symbol,
		CurrentPrice: req.CurrentPrice,
		Volume:       req.Volume,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	created(c, s)
}

func (hd *Handler) UpdateStock(c *gin.Context) {
	var req dto.UpdateStockReq
	if !bind(c, &req) {
		return
	}
	s, err := hd.stocks.Update(c.Request.Context(), c.Param("id"), stocks.UpdateInput{
		Name:         req.Name,
		Symbol:       req.Symbol,
		CurrentPrice: req.CurrentPrice,
		Volume:       req.Volume,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, s)
}

func (hd *Handler) UpdateStockPrice(c *gin.Context) {
	var req dto.PriceReq
	if !bind(c, &req) {
		return
	}
	s, err := hd.stocks.UpdatePrice(c.Request.Context(), c.Param("id"), req.Price)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, s)
}

func (hd *Handler) UpdateStockVolume(c *gin.Context) {
	var req dto.VolumeReq
	if !bind(c, &req) {
		return
	}
	s, err := hd.stocks.SetVolume(c.Request.Context(), c.Param("id"), *req.Volume)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, s)
}

func (hd *Handler) DeleteStock(c *gin.Context) {
	if err := hd.stocks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SimulatePrices runs one price simulation step on demand.
func (hd *Handler) SimulatePrices(c *gin.Context) {
	list, err := hd.stocks.Simulate(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, list)
}
