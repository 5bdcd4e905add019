// Package trade executes buy and sell orders against a user's cash balance
// and holdings. Every order runs in one store transaction that locks the
// user's row first; a failed step rolls the whole order back.
package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockgame/tradingsim/internal/apperr"
	"github.com/stockgame/tradingsim/internal/events"
	"github.com/stockgame/tradingsim/internal/metrics"
	"github.com/stockgame/tradingsim/internal/models"
	"github.com/stockgame/tradingsim/internal/store"
	"go.uber.org/zap"
)

// averagePricePlaces matches the precision of the stored cost basis.
const averagePricePlaces = 8

// Order is a request to trade Quantity shares of StockID at Price.
type Order struct {
	StockID  string
	Quantity int64
	Price    decimal.Decimal
}

func (o Order) validate() error {
	if o.StockID == "" {
		return apperr.New(apperr.KindInvalid, "stock id is required")
	}
	if o.Quantity <= 0 {
		return apperr.New(apperr.KindInvalid, "quantity must be positive")
	}
	if !o.Price.IsPositive() {
		return apperr.New(apperr.KindInvalid, "price must be positive")
	}
	if !o.Price.Equal(o.Price.Round(4)) {
		return apperr.New(apperr.KindInvalid, "price supports at most 4 decimal places")
	}
	return nil
}

// Result is the state after a committed trade. Holding is nil when a sell
// closed the position.
type Result struct {
	Holding     *models.Holding    `json:"holding"`
	Transaction models.Transaction `json:"transaction"`
	Balance     decimal.Decimal    `json:"balance"`
}

// Executed is the payload of a trade.executed event.
type Executed struct {
	TransactionID string                 `json:"transaction_id"`
	UserID        string                 `json:"user_id"`
	StockID       string                 `json:"stock_id"`
	Side          models.TransactionType `json:"side"`
	Quantity      int64                  `json:"quantity"`
	Price         decimal.Decimal        `json:"price"`
	TotalAmount   decimal.Decimal        `json:"total_amount"`
}

type Options struct {
	// PriceTolerance is the allowed relative distance between the order
	// price and the current stock price. Negative disables the check.
	PriceTolerance float64
	Events         events.Publisher
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
}

type Engine struct {
	store     store.Store
	locks     *userLocks
	tolerance decimal.Decimal
	checkPx   bool
	events    events.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

func NewEngine(st store.Store, opts Options) *Engine {
	e := &Engine{
		store:     st,
		locks:     newUserLocks(),
		tolerance: decimal.NewFromFloat(opts.PriceTolerance),
		checkPx:   opts.PriceTolerance >= 0,
		events:    opts.Events,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		now:       time.Now,
	}
	if e.events == nil {
		e.events = events.Noop
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// Buy debits price*quantity from the user and adds the shares to the
// holding, re-averaging its cost basis.
func (e *Engine) Buy(ctx context.Context, userID string, o Order) (*Result, error) {
	return e.execute(ctx, models.TransactionBuy, userID, o)
}

// Sell credits price*quantity to the user and removes the shares from the
// holding. The cost basis of what remains is unchanged.
func (e *Engine) Sell(ctx context.Context, userID string, o Order) (*Result, error) {
	return e.execute(ctx, models.TransactionSell, userID, o)
}

func (e *Engine) execute(ctx context.Context, side models.TransactionType, userID string, o Order) (res *Result, err error) {
	start := time.Now()
	defer func() {
		e.metrics.ObserveTrade(string(side), outcome(err), time.Since(start))
	}()

	if err := o.validate(); err != nil {
		return nil, err
	}

	res, err = e.run(ctx, side, userID, o)
	if err != nil {
		fields := []zap.Field{
			zap.String("side", string(side)),
			zap.String("user_id", userID),
			zap.String("stock_id", o.StockID),
			zap.Int64("quantity", o.Quantity),
			zap.Error(err),
		}
		if apperr.KindOf(err) == apperr.KindInternal {
			e.log.Error("trade failed", fields...)
		} else {
			e.log.Info("trade rejected", fields...)
		}
		return nil, err
	}

	tx := res.Transaction
	e.log.Info("trade executed",
		zap.String("transaction_id", tx.ID),
		zap.String("side", string(side)),
		zap.String("user_id", userID),
		zap.String("stock_id", tx.StockID),
		zap.Int64("quantity", tx.Quantity),
		zap.String("total_amount", tx.TotalAmount.String()),
	)
	e.publish(ctx, tx)
	return res, nil
}

// run holds the user's lock for the duration of the store transaction only.
func (e *Engine) run(ctx context.Context, side models.TransactionType, userID string, o Order) (res *Result, err error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	err = e.store.WithTx(ctx, func(r store.Repo) error {
		var txErr error
		if side == models.TransactionBuy {
			res, txErr = e.buy(ctx, r, userID, o)
		} else {
			res, txErr = e.sell(ctx, r, userID, o)
		}
		return txErr
	})
	return res, err
}

func (e *Engine) buy(ctx context.Context, r store.Repo, userID string, o Order) (*Result, error) {
	user, err := r.LockUser(ctx, userID)
	if err != nil {
		return nil, notFound(err, apperr.ErrUserNotFound, "lock user")
	}
	stock, err := r.GetStock(ctx, o.StockID)
	if err != nil {
		return nil, notFound(err, apperr.ErrStockNotFound, "load stock")
	}
	if err := e.checkPrice(stock, o.Price); err != nil {
		return nil, err
	}

	totalCost := o.Price.Mul(decimal.NewFromInt(o.Quantity))
	if user.Balance.LessThan(totalCost) {
		return nil, apperr.ErrInsufficientFunds
	}

	now := e.now().UTC()
	holding, err := r.GetHolding(ctx, userID, o.StockID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		holding = &models.Holding{
			ID:           models.NewID(),
			UserID:       userID,
			StockID:      o.StockID,
			Quantity:     o.Quantity,
			AveragePrice: o.Price,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	case err != nil:
		return nil, fmt.Errorf("load holding: %w", err)
	default:
		newQty := holding.Quantity + o.Quantity
		cost := holding.AveragePrice.Mul(decimal.NewFromInt(holding.Quantity)).Add(totalCost)
		holding.AveragePrice = cost.DivRound(decimal.NewFromInt(newQty), averagePricePlaces)
		holding.Quantity = newQty
		holding.UpdatedAt = now
	}
	if err := r.SaveHolding(ctx, holding); err != nil {
		return nil, fmt.Errorf("save holding: %w", err)
	}

	balance := user.Balance.Sub(totalCost)
	if err := r.UpdateUserBalance(ctx, userID, balance); err != nil {
		return nil, fmt.Errorf("debit balance: %w", err)
	}

	tx, err := e.record(ctx, r, userID, models.TransactionBuy, o, totalCost, now)
	if err != nil {
		return nil, err
	}
	return &Result{Holding: holding, Transaction: *tx, Balance: balance}, nil
}

func (e *Engine) sell(ctx context.Context, r store.Repo, userID string, o Order) (*Result, error) {
	user, err := r.LockUser(ctx, userID)
	if err != nil {
		return nil, notFound(err, apperr.ErrUserNotFound, "lock user")
	}
	stock, err := r.GetStock(ctx, o.StockID)
	if err != nil {
		return nil, notFound(err, apperr.ErrStockNotFound, "load stock")
	}
	holding, err := r.GetHolding(ctx, userID, o.StockID)
	if err != nil {
		return nil, notFound(err, apperr.ErrNoHolding, "load holding")
	}
	if err := e.checkPrice(stock, o.Price); err != nil {
		return nil, err
	}
	if o.Quantity > holding.Quantity {
		return nil, apperr.ErrInsufficientQuantity
	}

	now := e.now().UTC()
	proceeds := o.Price.Mul(decimal.NewFromInt(o.Quantity))

	if o.Quantity == holding.Quantity {
		if err := r.DeleteHolding(ctx, userID, o.StockID); err != nil {
			return nil, fmt.Errorf("delete holding: %w", err)
		}
		holding = nil
	} else {
		holding.Quantity -= o.Quantity
		holding.UpdatedAt = now
		if err := r.SaveHolding(ctx, holding); err != nil {
			return nil, fmt.Errorf("save holding: %w", err)
		}
	}

	balance := user.Balance.Add(proceeds)
	if err := r.UpdateUserBalance(ctx, userID, balance); err != nil {
		return nil, fmt.Errorf("credit balance: %w", err)
	}

	tx, err := e.record(ctx, r, userID, models.TransactionSell, o, proceeds, now)
	if err != nil {
		return nil, err
	}
	return &Result{Holding: holding, Transaction: *tx, Balance: balance}, nil
}

// record appends the transaction and counts the shares as traded volume.
func (e *Engine) record(ctx context.Context, r store.Repo, userID string, side models.TransactionType, o Order, total decimal.Decimal, now time.Time) (*models.Transaction, error) {
	tx := &models.Transaction{
		ID:          models.NewID(),
		UserID:      userID,
		StockID:     o.StockID,
		Type:        side,
		Quantity:    o.Quantity,
		Price:       o.Price,
		TotalAmount: total,
		CreatedAt:   now,
	}
	if err := r.InsertTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	if err := r.AddStockVolume(ctx, o.StockID, o.Quantity, now); err != nil {
		return nil, notFound(err, apperr.ErrStockNotFound, "update volume")
	}
	return tx, nil
}

func (e *Engine) checkPrice(stock *models.Stock, price decimal.Decimal) error {
	if !e.checkPx {
		return nil
	}
	limit := stock.CurrentPrice.Mul(e.tolerance)
	if price.Sub(stock.CurrentPrice).Abs().GreaterThan(limit) {
		return apperr.Newf(apperr.KindPriceMismatch,
			"price %s is too far from the current price %s", price, stock.CurrentPrice)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, tx models.Transaction) {
	ev := events.New(events.TypeTradeExecuted, tx.UserID, Executed{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		StockID:       tx.StockID,
		Side:          tx.Type,
		Quantity:      tx.Quantity,
		Price:         tx.Price,
		TotalAmount:   tx.TotalAmount,
	})
	// the trade is committed; the request context may already be gone
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.events.Publish(pubCtx, ev); err != nil {
		e.log.Warn("publish trade event", zap.String("transaction_id", tx.ID), zap.Error(err))
	}
}

// notFound maps store.ErrNotFound to the domain error and wraps anything else.
func notFound(err error, domain *apperr.Error, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain
	}
	return fmt.Errorf("%s: %w", op, err)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}
