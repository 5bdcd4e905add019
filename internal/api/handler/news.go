package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stockgame/tradingsim/internal/api/dto"
	"github.com/stockgame/tradingsim/internal/news"
)

func (hd *Handler) ListPublishedNews(c *gin.Context) {
	list, err := hd.news.Published(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, list)
}

func (hd *Handler) ListAllNews(c *gin.Context) {
	list, err := hd.news.All(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, list)
}

func (hd *Handler) ListNewsByCategory(c *gin.Context) {
	list, err := hd.news.ByCategory(c.Request.Context(), c.Param("category"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, list)
}

func (hd *Handler) GetNews(c *gin.Context) {
	n, err := hd.news.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, n)
}

func (hd *Handler) CreateNews(c *gin.Context) {
	var req dto.CreateNewsReq
	if !bind(c, &req) {
		return
	}
	n, err := hd.news.Create(c.Request.Context(), news.CreateInput{
		Title:       req.Title,
		Summary:     req.Summary,
		Content:     req.Content,
		Category:    req.Category,
		IsPublished: req.IsPublished,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	created(c, n)
}

func (hd *Handler) UpdateNews(c *gin.Context) {
	var req dto.UpdateNewsReq
	if !bind(c, &req) {
		return
	}
	n, err := hd.news.Update(c.Request.Context(), c.Param("id"), news.UpdateInput{
		Title:    req.Title,
		Summary:  req.Summary,
		Content:  req.Content,
		Category: req.Category,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, n)
}

func (hd *Handler) PublishNews(c *gin.Context) {
	var req dto.PublishReq
	if !bind(c, &req) {
		return
	}
	n, err := hd.news.SetPublished(c.Request.Context(), c.Param("id"), *req.IsPublished)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, n)
}

func (hd *Handler) DeleteNews(c *gin.Context) {
	if err := hd.news.Delete(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
