package dto

import "github.com/shopspring/decimal"

// Res is the envelope of every JSON response.
type Res struct {
	Success bool `json:"success"`
	Error   any  `json:"error"`
	Data    any  `json:"data"`
}

type ErrorType struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError is the error body for domain failures; Code is the error kind.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Trades

type TradeReq struct {
	StockID  string          `json:"stock_id" binding:"required"`
	Quantity int64           `json:"quantity" binding:"required,gt=0"`
	Price    decimal.Decimal `json:"price"`
}

// Stocks

type CreateStockReq struct {
	Name         string          `json:"name" binding:"required"`
	Symbol       string          `json:"symbol" binding:"required,len=6,numeric"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Volume       int64           `json:"volume" binding:"gte=0"`
}

type UpdateStockReq struct {
	Name         *string          `json:"name"`
	Symbol       *string          `json:"symbol"`
	CurrentPrice *decimal.Decimal `json:"current_price"`
	Volume       *int64           `json:"volume"`
}

type PriceReq struct {
	Price decimal.Decimal `json:"price"`
}

type VolumeReq struct {
	Volume *int64 `json:"volume" binding:"required"`
}

// News

type CreateNewsReq struct {
	Title       string `json:"title" binding:"required"`
	Summary     string `json:"summary"`
	Content     string `json:"content" binding:"required"`
	Category    string `json:"category" binding:"required"`
	IsPublished bool   `json:"is_published"`
}

type UpdateNewsReq struct {
	Title    *string `json:"title"`
	Summary  *string `json:"summary"`
	Content  *string `json:"content"`
	Category *string `json:"category"`
}

type PublishReq struct {
	IsPublished *bool `json:"is_published" binding:"required"`
}

// Leaderboard

type VisibilityReq struct {
	IsVisible *bool `json:"is_visible" binding:"required"`
}

// Users

type UpdateUserReq struct {
	Name     *string `json:"name"`
	Nickname *string `json:"nickname"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Role     *string `json:"role" binding:"omitempty,oneof=USER ADMIN"`
}

// MakeAdminReq needs one of Email or Nickname.
type MakeAdminReq struct {
	Email    string `json:"email" binding:"omitempty,email"`
	Nickname string `json:"nickname"`
}

// Auth

type RefreshReq struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}
