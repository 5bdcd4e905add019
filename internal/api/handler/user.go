package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stockgame/tradingsim/internal/api/dto"
	"github.com/stockgame/tradingsim/internal/models"
	"github.com/stockgame/tradingsim/internal/users"
)

func (hd *Handler) ListUsers(c *gin.Context) {
	list, err := hd.users.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, list)
}

func (hd *Handler) GetUser(c *gin.Context) {
	u, err := hd.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, u)
}

func (hd *Handler) UpdateUser(c *gin.Context) {
	var req dto.UpdateUserReq
	if !bind(c, &req) {
		return
	}
	in := users.UpdateInput{Name: req.Name, Nickname: req.Nickname, Email: req.Email}
	if req.Role != nil {
		role := models.Role(*req.Role)
		in.Role = &role
	}
	u, err := hd.users.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, u)
}

// MakeAdmin handles POST /api/users/make-admin.
func (hd *Handler) MakeAdmin(c *gin.Context) {
	var req dto.MakeAdminReq
	if !bind(c, &req) {
		return
	}
	u, err := hd.users.MakeAdmin(c.Request.Context(), req.Email, req.Nickname)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, u)
}

func (hd *Handler) DeleteUser(c *gin.Context) {
	if err := hd.users.Delete(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
