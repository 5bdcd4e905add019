package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LeaderboardEntry is one user's row in the published ranking.
// Rank 0 means the user is hidden and unranked.
type LeaderboardEntry struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	Username          string          `json:"username"`
	TotalAssets       decimal.Decimal `json:"total_assets"`
	CashBalance       decimal.Decimal `json:"cash_balance"`
	StockValue        decimal.Decimal `json:"stock_value"`
	Rank              int             `json:"rank"`
	IsVisible         bool            `json:"is_visible"`
	ProfitLoss        decimal.Decimal `json:"profit_loss"`
	ProfitLossPercent decimal.Decimal `json:"profit_loss_percent"`
	LastUpdated       time.Time       `json:"last_updated"`
}

// LeaderboardStats summarises the current ranking
type LeaderboardStats struct {
	TotalParticipants   int             `json:"total_participants"`
	VisibleParticipants int             `json:"visible_participants"`
	AverageAssets       decimal.Decimal `json:"average_assets"`
	TopAssets           decimal.Decimal `json:"top_assets"`
	LastUpdated         time.Time       `json:"last_updated"`
}

// LeaderboardSnapshot is one archived ranking cycle
type LeaderboardSnapshot struct {
	TakenAt time.Time          `json:"taken_at"`
	Entries []LeaderboardEntry `json:"entries"`
}
