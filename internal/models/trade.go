package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InitialBalance is the cash every new player starts with.
var InitialBalance = decimal.NewFromInt(10_000_000)

// Role of a user account
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// NewID returns a fresh random identifier
func NewID() string {
	return uuid.NewString()
}

// User represents a player in the game
type User struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Nickname             string          `json:"nickname"`
	Email                string          `json:"email,omitempty"`
	Provider             string          `json:"provider"`
	ProviderID           string          `json:"-"`
	Role                 Role            `json:"role"`
	Balance              decimal.Decimal `json:"balance"`
	IsLeaderboardVisible bool            `json:"is_leaderboard_visible"`
	LastLoginAt          *time.Time      `json:"last_login_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Holding is a user's position in one stock. Quantity is always > 0;
// a position sold down to zero is deleted.
type Holding struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	StockID      string          `json:"stock_id"`
	Quantity     int64           `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TransactionType is BUY or SELL
type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

// Transaction is an immutable entry in the trade log
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	StockID     string          `json:"stock_id"`
	Type        TransactionType `json:"type"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Session is a stored refresh token
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}
