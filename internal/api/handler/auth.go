package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stockgame/tradingsim/internal/api/dto"
	"github.com/stockgame/tradingsim/internal/auth"
)

// DevLogin handles POST /api/auth/dev-login: the posted identity is trusted
// as if an OAuth provider had verified it.
func (hd *Handler) DevLogin(c *gin.Context) {
	var id auth.Identity
	if !bind(c, &id) {
		return
	}
	res, err := hd.auth.Login(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, dto.Res{Success: true, Data: res})
}

func (hd *Handler) RefreshToken(c *gin.Context) {
	var req dto.RefreshReq
	if !bind(c, &req) {
		return
	}
	tokens, err := hd.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, tokens)
}

func (hd *Handler) Logout(c *gin.Context) {
	if err := hd.auth.Logout(c.Request.Context(), auth.UserID(c)); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (hd *Handler) Me(c *gin.Context) {
	u, err := hd.auth.Me(c.Request.Context(), auth.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, u)
}
