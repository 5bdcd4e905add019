// Package portfolio answers read-only questions about a player's positions,
// trade history and cash, plus traded-volume statistics per stock.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/stockgame/tradingsim/internal/apperr"
	"github.com/stockgame/tradingsim/internal/models"
	"github.com/stockgame/tradingsim/internal/store"
)

var hundred = decimal.NewFromInt(100)

// Position is a holding valued at the current registry price. A holding
// whose stock was deleted is valued at zero and has empty stock fields.
type Position struct {
	models.Holding
	StockName         string          `json:"stock_name"`
	StockSymbol       string          `json:"stock_symbol"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	MarketValue       decimal.Decimal `json:"market_value"`
	ProfitLoss        decimal.Decimal `json:"profit_loss"`
	ProfitLossPercent decimal.Decimal `json:"profit_loss_percent"`
}

// Trade is a transaction with the stock it refers to.
type Trade struct {
	models.Transaction
	StockName   string `json:"stock_name"`
	StockSymbol string `json:"stock_symbol"`
}

type Balance struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

type VolumeStats struct {
	StockID      string `json:"stock_id"`
	StockName    string `json:"stock_name"`
	StockSymbol  string `json:"stock_symbol"`
	TotalVolume  int64  `json:"total_volume"`
	BuyQuantity  int64  `json:"buy_quantity"`
	SellQuantity int64  `json:"sell_quantity"`
}

type Service struct {
	repo store.Repo
}

func NewService(repo store.Repo) *Service {
	return &Service{repo: repo}
}

// Holdings lists the user's positions, most recently updated first.
func (s *Service) Holdings(ctx context.Context, userID string) ([]Position, error) {
	holdings, err := s.repo.ListHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	stocks, err := s.stockIndex(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, value(h, stocks[h.StockID]))
	}
	return out, nil
}

// Holding returns the user's position in one stock, or nil if there is none.
func (s *Service) Holding(ctx context.Context, userID, stockID string) (*Position, error) {
	h, err := s.repo.GetHolding(ctx, userID, stockID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get holding: %w", err)
	}
	var stock *models.Stock
	stock, err = s.repo.GetStock(ctx, stockID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get stock: %w", err)
	}
	p := value(*h, stock)
	return &p, nil
}

func value(h models.Holding, stock *models.Stock) Position {
	p := Position{
		Holding:           h,
		CurrentPrice:      decimal.Zero,
		MarketValue:       decimal.Zero,
		ProfitLossPercent: decimal.Zero,
	}
	if stock != nil {
		p.StockName = stock.Name
		p.StockSymbol = stock.Symbol
		p.CurrentPrice = stock.CurrentPrice
		p.MarketValue = stock.CurrentPrice.Mul(decimal.NewFromInt(h.Quantity))
	}
	cost := h.AveragePrice.Mul(decimal.NewFromInt(h.Quantity))
	p.ProfitLoss = p.MarketValue.Sub(cost)
	if !cost.IsZero() {
		p.ProfitLossPercent = p.ProfitLoss.Mul(hundred).DivRound(cost, 4)
	}
	return p
}

// Transactions lists the user's trades, newest first.
func (s *Service) Transactions(ctx context.Context, userID string) ([]Trade, error) {
	txs, err := s.repo.ListTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	stocks, err := s.stockIndex(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Trade, 0, len(txs))
	for _, t := range txs {
		tr := Trade{Transaction: t}
		if st := stocks[t.StockID]; st != nil {
			tr.StockName = st.Name
			tr.StockSymbol = st.Symbol
		}
		out = append(out, tr)
	}
	return out, nil
}

func (s *Service) Balance(ctx context.Context, userID string) (*Balance, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &Balance{UserID: u.ID, Balance: u.Balance}, nil
}

func (s *Service) VolumeStats(ctx context.Context, stockID string) (*VolumeStats, error) {
	stock, err := s.repo.GetStock(ctx, stockID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ErrStockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return s.volumeOf(ctx, stock)
}

// AllVolumeStats covers every listed stock, highest total volume first.
func (s *Service) AllVolumeStats(ctx context.Context) ([]VolumeStats, error) {
	stocks, err := s.repo.ListStocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	out := make([]VolumeStats, 0, len(stocks))
	for i := range stocks {
		vs, err := s.volumeOf(ctx, &stocks[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *vs)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalVolume > out[j].TotalVolume })
	return out, nil
}

func (s *Service) volumeOf(ctx context.Context, stock *models.Stock) (*VolumeStats, error) {
	buys, err := s.repo.SumTradedQuantity(ctx, stock.ID, models.TransactionBuy)
	if err != nil {
		return nil, fmt.Errorf("sum buys: %w", err)
	}
	sells, err := s.repo.SumTradedQuantity(ctx, stock.ID, models.TransactionSell)
	if err != nil {
		return nil, fmt.Errorf("sum sells: %w", err)
	}
	return &VolumeStats{
		StockID:      stock.ID,
		StockName:    stock.Name,
		StockSymbol:  stock.Symbol,
		TotalVolume:  stock.Volume,
		BuyQuantity:  buys,
		SellQuantity: sells,
	}, nil
}

func (s *Service) stockIndex(ctx context.Context) (map[string]*models.Stock, error) {
	stocks, err := s.repo.ListStocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	idx := make(map[string]*models.Stock, len(stocks))
	for i := range stocks {
		idx[stocks[i].ID] = &stocks[i]
	}
	return idx, nil
}
