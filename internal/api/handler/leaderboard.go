package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stockgame/tradingsim/internal/api/dto"
	"github.com/stockgame/tradingsim/internal/apperr"
)

const maxHistoryLimit = 100

func (hd *Handler) GetLeaderboard(c *gin.Context) {
	entries, err := hd.leaderboard.Public(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, entries)
}

func (hd *Handler) GetAdminLeaderboard(c *gin.Context) {
	entries, err := hd.leaderboard.Admin(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, entries)
}

func (hd *Handler) GetLeaderboardStats(c *gin.Context) {
	stats, err := hd.leaderboard.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, stats)
}

// GetLeaderboardHistory handles GET /api/leaderboard/history?limit=N.
func (hd *Handler) GetLeaderboardHistory(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			_ = c.Error(apperr.Newf(apperr.KindInvalid,
				"invalid 'limit' query parameter: must be an integer between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}
	snaps, err := hd.leaderboard.History(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, snaps)
}

func (hd *Handler) SetLeaderboardVisibility(c *gin.Context) {
	var req dto.VisibilityReq
	if !bind(c, &req) {
		return
	}
	userID := c.Param("userId")
	if err := hd.leaderboard.ToggleVisibility(c.Request.Context(), userID, *req.IsVisible); err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, gin.H{"user_id": userID, "is_visible": *req.IsVisible})
}

func (hd *Handler) RefreshLeaderboard(c *gin.Context) {
	entries, err := hd.leaderboard.Recompute(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, entries)
}
