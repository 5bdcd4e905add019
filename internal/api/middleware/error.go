package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stockgame/tradingsim/internal/api/dto"
	"github.com/stockgame/tradingsim/internal/apperr"
	"go.uber.org/zap"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindNotFound:             http.StatusNotFound,
	apperr.KindInvalid:              http.StatusBadRequest,
	apperr.KindConflict:             http.StatusConflict,
	apperr.KindInsufficientFunds:    http.StatusBadRequest,
	apperr.KindInsufficientQuantity: http.StatusBadRequest,
	apperr.KindNoHolding:            http.StatusBadRequest,
	apperr.KindPriceMismatch:        http.StatusConflict,
	apperr.KindUnauthorized:         http.StatusUnauthorized,
	apperr.KindForbidden:            http.StatusForbidden,
}

// StatusOf returns the HTTP status for a domain error kind.
func StatusOf(kind apperr.Kind) int {
	if s, ok := kindStatus[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error renders the first error a handler attached with c.Error, or a 504
// when the request deadline passed. Responses already written are left alone.
func Error(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		if errors.Is(c.Request.Context().Err(), context.DeadlineExceeded) {
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, dto.Res{
				Success: false,
				Error:   "request timed out",
			})
			return
		}

		if len(c.Errors) == 0 {
			return
		}
		first := c.Errors[0]
		err := first.Err

		// binding: validation tags
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			validationErrors := make([]dto.ErrorType, 0, len(ve))
			for _, fe := range ve {
				validationErrors = append(validationErrors, dto.ErrorType{
					Field:   fe.Field(),
					Message: fe.Error(),
				})
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.Res{
				Success: false,
				Error:   validationErrors,
			})
			return
		}

		// binding: malformed body, including field decoders such as
		// decimal.Decimal that return their own error types
		var se *json.SyntaxError
		var ue *json.UnmarshalTypeError
		if first.IsType(gin.ErrorTypeBind) || errors.As(err, &se) || errors.As(err, &ue) ||
			errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.Res{
				Success: false,
				Error:   "malformed request body",
			})
			return
		}

		var ae *apperr.Error
		if errors.As(err, &ae) {
			c.AbortWithStatusJSON(StatusOf(ae.Kind), dto.Res{
				Success: false,
				Error:   dto.AppError{Code: string(ae.Kind), Message: ae.Message},
			})
			return
		}

		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, dto.Res{
			Success: false,
			Error:   "internal server error",
		})
	}
}
