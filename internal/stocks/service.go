// Package stocks manages the instrument registry: admin CRUD, price updates
// and the random-walk price simulation.
package stocks

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockgame/tradingsim/internal/apperr"
	"github.com/stockgame/tradingsim/internal/events"
	"github.com/stockgame/tradingsim/internal/metrics"
	"github.com/stockgame/tradingsim/internal/models"
	"github.com/stockgame/tradingsim/internal/store"
	"go.uber.org/zap"
)

var symbolPattern = regexp.MustCompile(`^\d{6}$`)

// minPrice is the floor for simulated prices.
var minPrice = decimal.NewFromInt(1)

// Tick is one stock's price in a prices.updated event.
type Tick struct {
	StockID       string          `json:"stock_id"`
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
}

func tickOf(s *models.Stock) Tick {
	return Tick{
		StockID:       s.ID,
		Symbol:        s.Symbol,
		Price:         s.CurrentPrice,
		PreviousPrice: s.PreviousPrice,
		Change:        s.Change,
		ChangePercent: s.ChangePercent,
	}
}

type CreateInput struct {
	Name         string
	Symbol       string
	CurrentPrice decimal.Decimal
	Volume       int64
}

// UpdateInput changes only the non-nil fields.
type UpdateInput struct {
	Name         *string
	Symbol       *string
	CurrentPrice *decimal.Decimal
	Volume       *int64
}

type Options struct {
	// MaxChange bounds one simulation step as a fraction of the price.
	MaxChange float64
	Rand      *rand.Rand
	Events    events.Publisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

type Service struct {
	store     store.Store
	maxChange float64
	events    events.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewService(st store.Store, opts Options) *Service {
	s := &Service{
		store:     st,
		maxChange: opts.MaxChange,
		events:    opts.Events,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		rng:       opts.Rand,
		now:       time.Now,
	}
	if s.maxChange <= 0 {
		s.maxChange = 0.05
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if s.events == nil {
		s.events = events.Noop
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

func (s *Service) List(ctx context.Context) ([]models.Stock, error) {
	stocks, err := s.store.ListStocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	return stocks, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Stock, error) {
	stock, err := s.store.GetStock(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return stock, nil
}

func validateSymbol(symbol string) error {
	if !symbolPattern.MatchString(symbol) {
		return apperr.Newf(apperr.KindInvalid, "symbol %q is invalid: it must be 6 digits", symbol)
	}
	return nil
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return apperr.New(apperr.KindInvalid, "price must not be negative")
	}
	if !price.Equal(price.Round(4)) {
		return apperr.New(apperr.KindInvalid, "price supports at most 4 decimal places")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Stock, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperr.New(apperr.KindInvalid, "name is required")
	}
	if err := validateSymbol(in.Symbol); err != nil {
		return nil, err
	}
	if err := validatePrice(in.CurrentPrice); err != nil {
		return nil, err
	}
	if in.Volume < 0 {
		return nil, apperr.New(apperr.KindInvalid, "volume must not be negative")
	}

	now := s.now().UTC()
	stock := &models.Stock{
		ID:            models.NewID(),
		Name:          in.Name,
		Symbol:        in.Symbol,
		CurrentPrice:  in.CurrentPrice,
		PreviousPrice: in.CurrentPrice,
		Change:        decimal.Zero,
		ChangePercent: decimal.Zero,
		Volume:        in.Volume,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateStock(ctx, stock); err != nil {
		return nil, mapDuplicate(err, in.Symbol)
	}
	s.log.Info("stock created", zap.String("stock_id", stock.ID), zap.String("symbol", stock.Symbol))
	return stock, nil
}

// Update applies a partial change. A price change shifts the current price
// to previous and recomputes the change fields.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*models.Stock, error) {
	if in.Symbol != nil {
		if err := validateSymbol(*in.Symbol); err != nil {
			return nil, err
		}
	}
	if in.CurrentPrice != nil {
		if err := validatePrice(*in.CurrentPrice); err != nil {
			return nil, err
		}
	}
	if in.Volume != nil && *in.Volume < 0 {
		return nil, apperr.New(apperr.KindInvalid, "volume must not be negative")
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, apperr.New(apperr.KindInvalid, "name must not be empty")
	}

	stock, err := s.mutate(ctx, id, func(st *models.Stock, now time.Time) {
		if in.CurrentPrice != nil {
			st.SetPrice(*in.CurrentPrice, now)
		}
		if in.Volume != nil {
			st.Volume = *in.Volume
		}
		if in.Name != nil {
			st.Name = strings.TrimSpace(*in.Name)
		}
		if in.Symbol != nil {
			st.Symbol = *in.Symbol
		}
		st.UpdatedAt = now
	})
	if err != nil {
		return nil, err
	}
	if in.CurrentPrice != nil {
		s.publishTicks(ctx, []Tick{tickOf(stock)})
	}
	return stock, nil
}

func (s *Service) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) (*models.Stock, error) {
	return s.Update(ctx, id, UpdateInput{CurrentPrice: &price})
}

func (s *Service) SetVolume(ctx context.Context, id string, volume int64) (*models.Stock, error) {
	return s.Update(ctx, id, UpdateInput{Volume: &volume})
}

// Delete removes the stock. Holdings and transactions that reference it are
// kept; the leaderboard values such holdings at zero.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteStock(ctx, id); err != nil {
		return mapNotFound(err)
	}
	s.log.Info("stock deleted", zap.String("stock_id", id))
	return nil
}

func (s *Service) mutate(ctx context.Context, id string, apply func(*models.Stock, time.Time)) (*models.Stock, error) {
	var out *models.Stock
	err := s.store.WithTx(ctx, func(r store.Repo) error {
		stock, err := r.LockStock(ctx, id)
		if err != nil {
			return mapNotFound(err)
		}
		apply(stock, s.now().UTC())
		if err := r.UpdateStock(ctx, stock); err != nil {
			return mapDuplicate(err, stock.Symbol)
		}
		out = stock
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Simulate moves every stock by a uniform random fraction in
// [-MaxChange, +MaxChange], rounded to a whole unit and never below 1.
func (s *Service) Simulate(ctx context.Context) ([]models.Stock, error) {
	listed, err := s.store.ListStocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}

	updated := make([]models.Stock, 0, len(listed))
	err = s.store.WithTx(ctx, func(r store.Repo) error {
		updated = updated[:0]
		for _, l := range listed {
			stock, err := r.LockStock(ctx, l.ID)
			if errors.Is(err, store.ErrNotFound) {
				continue // deleted meanwhile
			}
			if err != nil {
				return fmt.Errorf("lock stock %s: %w", l.ID, err)
			}
			stock.SetPrice(s.nextPrice(stock.CurrentPrice), s.now().UTC())
			if err := r.UpdateStock(ctx, stock); err != nil {
				return fmt.Errorf("update stock %s: %w", stock.ID, err)
			}
			updated = append(updated, *stock)
		}
		return nil
	})
	if err != nil {
		s.log.Error("price simulation failed", zap.Error(err))
		return nil, err
	}

	s.metrics.IncSimulation()
	s.log.Info("prices simulated", zap.Int("stocks", len(updated)))

	ticks := make([]Tick, 0, len(updated))
	for i := range updated {
		ticks = append(ticks, tickOf(&updated[i]))
	}
	s.publishTicks(ctx, ticks)
	return updated, nil
}

func (s *Service) nextPrice(current decimal.Decimal) decimal.Decimal {
	s.rngMu.Lock()
	f := (s.rng.Float64()*2 - 1) * s.maxChange
	s.rngMu.Unlock()

	next := current.Mul(decimal.NewFromFloat(1 + f)).Round(0)
	if next.LessThan(minPrice) {
		return minPrice
	}
	return next
}

func (s *Service) publishTicks(ctx context.Context, ticks []Tick) {
	if len(ticks) == 0 {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.events.Publish(pubCtx, events.New(events.TypePricesUpdated, "", ticks)); err != nil {
		s.log.Warn("publish price ticks", zap.Error(err))
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.ErrStockNotFound
	}
	return err
}

func mapDuplicate(err error, symbol string) error {
	if errors.Is(err, store.ErrDuplicate) {
		return apperr.Newf(apperr.KindConflict, "symbol %s is already in use", symbol)
	}
	return mapNotFound(err)
}
