package models

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Stock is a tradable instrument in the registry
type Stock struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Symbol        string          `json:"symbol"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Volume        int64           `json:"volume"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SetPrice moves the current price to previous and recomputes the change fields.
func (s *Stock) SetPrice(price decimal.Decimal, now time.Time) {
	s.PreviousPrice = s.CurrentPrice
	s.CurrentPrice = price
	s.Change = s.CurrentPrice.Sub(s.PreviousPrice)
	if s.PreviousPrice.IsZero() {
		s.ChangePercent = decimal.Zero
	} else {
		s.ChangePercent = s.Change.Mul(hundred).DivRound(s.PreviousPrice, 8)
	}
	s.UpdatedAt = now
}

// IncreaseVolume adds traded quantity; volume never goes down through trading.
func (s *Stock) IncreaseVolume(qty int64, now time.Time) {
	if qty <= 0 {
		return
	}
	s.Volume += qty
	s.UpdatedAt = now
}

// News is an article shown in the game
type News struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	Content     string     `json:"content"`
	Category    string     `json:"category"`
	IsPublished bool       `json:"is_published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Publish marks the article visible
func (n *News) Publish(now time.Time) {
	n.IsPublished = true
	n.PublishedAt = &now
	n.UpdatedAt = now
}

// Unpublish hides the article and clears its publish time
func (n *News) Unpublish(now time.Time) {
	n.IsPublished = false
	n.PublishedAt = nil
	n.UpdatedAt = now
}
