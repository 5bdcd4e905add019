package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stockgame/tradingsim/internal/apperr"
	"github.com/stockgame/tradingsim/internal/models"
)

const (
	ctxUserID = "auth.user_id"
	ctxRole   = "auth.role"
)

// Verifier checks access tokens. *Service implements it.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// RequireAuth rejects requests without a valid bearer access token and
// stores the caller in the gin context.
func RequireAuth(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			_ = c.Error(apperr.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, err := v.Verify(strings.TrimSpace(raw))
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Set(ctxUserID, claims.Subject)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Role(c) != role {
			_ = c.Error(apperr.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller, or "" outside RequireAuth.
func UserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func Role(c *gin.Context) models.Role {
	v, _ := c.Get(ctxRole)
	r, _ := v.(models.Role)
	return r
}
