// Package leaderboard ranks players by total assets and publishes the result.
package leaderboard

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockgame/tradingsim/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Standing is the input for one player: cash plus valued holdings.
type Standing struct {
	UserID      string
	Username    string
	CashBalance decimal.Decimal
	StockValue  decimal.Decimal
	Visible     bool
}

// StockValue marks holdings to market. A stock missing from prices (for
// example a deleted one) is worth zero.
func StockValue(holdings []models.Holding, prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, h := range holdings {
		price, ok := prices[h.StockID]
		if !ok {
			continue
		}
		total = total.Add(price.Mul(decimal.NewFromInt(h.Quantity)))
	}
	return total
}

// Rank builds one entry per standing. Visible entries are ranked 1..k by
// total assets, then cash balance, both descending, then user id ascending.
// Hidden entries get rank 0. Visible entries come first in the result.
func Rank(standings []Standing, at time.Time) []models.LeaderboardEntry {
	visible := make([]models.LeaderboardEntry, 0, len(standings))
	hidden := make([]models.LeaderboardEntry, 0)

	for _, s := range standings {
		total := s.CashBalance.Add(s.StockValue)
		pl := total.Sub(models.InitialBalance)
		e := models.LeaderboardEntry{
			ID:                models.NewID(),
			UserID:            s.UserID,
			Username:          s.Username,
			TotalAssets:       total,
			CashBalance:       s.CashBalance,
			StockValue:        s.StockValue,
			IsVisible:         s.Visible,
			ProfitLoss:        pl,
			ProfitLossPercent: pl.Mul(hundred).DivRound(models.InitialBalance, 8),
			LastUpdated:       at,
		}
		if s.Visible {
			visible = append(visible, e)
		} else {
			hidden = append(hidden, e)
		}
	}

	sort.Slice(visible, func(i, j int) bool {
		a, b := visible[i], visible[j]
		if c := a.TotalAssets.Cmp(b.TotalAssets); c != 0 {
			return c > 0
		}
		if c := a.CashBalance.Cmp(b.CashBalance); c != 0 {
			return c > 0
		}
		return a.UserID < b.UserID
	})
	for i := range visible {
		visible[i].Rank = i + 1
	}

	sort.Slice(hidden, func(i, j int) bool { return hidden[i].UserID < hidden[j].UserID })
	return append(visible, hidden...)
}
