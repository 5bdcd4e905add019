// Package store defines the persistence contract shared by the Postgres and
// in-memory backends.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockgame/tradingsim/internal/models"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is returned when a unique constraint would be violated.
var ErrDuplicate = errors.New("store: duplicate key")

type UserRepo interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	// LockUser reads the user and holds its row lock until the enclosing
	// transaction ends.
	LockUser(ctx context.Context, id string) (*models.User, error)
	GetUserByProvider(ctx context.Context, provider, providerID string) (*models.User, error)
	// FindUserByEmailOrNickname matches email case-insensitively, then
	// nickname exactly; empty arguments are ignored.
	FindUserByEmailOrNickname(ctx context.Context, email, nickname string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	// UpdateUser writes the profile fields and role; balance and visibility
	// have their own methods.
	UpdateUser(ctx context.Context, u *models.User) error
	// DeleteUser removes the user with their holdings, trades, sessions and
	// leaderboard row.
	DeleteUser(ctx context.Context, id string) error
	UpdateUserBalance(ctx context.Context, id string, balance decimal.Decimal) error
	TouchUserLogin(ctx context.Context, id string, at time.Time) error
	SetUserLeaderboardVisible(ctx context.Context, id string, visible bool) error
}

type StockRepo interface {
	GetStock(ctx context.Context, id string) (*models.Stock, error)
	// LockStock is GetStock holding the row lock until the transaction ends.
	LockStock(ctx context.Context, id string) (*models.Stock, error)
	GetStockBySymbol(ctx context.Context, symbol string) (*models.Stock, error)
	ListStocks(ctx context.Context) ([]models.Stock, error)
	CreateStock(ctx context.Context, s *models.Stock) error
	UpdateStock(ctx context.Context, s *models.Stock) error
	DeleteStock(ctx context.Context, id string) error
	// AddStockVolume atomically increments traded volume.
	AddStockVolume(ctx context.Context, id string, qty int64, at time.Time) error
}

type HoldingRepo interface {
	GetHolding(ctx context.Context, userID, stockID string) (*models.Holding, error)
	ListHoldings(ctx context.Context, userID string) ([]models.Holding, error)
	ListAllHoldings(ctx context.Context) ([]models.Holding, error)
	// SaveHolding inserts or updates the (user, stock) position.
	SaveHolding(ctx context.Context, h *models.Holding) error
	DeleteHolding(ctx context.Context, userID, stockID string) error
}

type TransactionRepo interface {
	InsertTransaction(ctx context.Context, t *models.Transaction) error
	ListTransactions(ctx context.Context, userID string) ([]models.Transaction, error)
	SumTradedQuantity(ctx context.Context, stockID string, typ models.TransactionType) (int64, error)
}

type LeaderboardRepo interface {
	// ReplaceLeaderboard deletes every row and inserts entries.
	ReplaceLeaderboard(ctx context.Context, entries []models.LeaderboardEntry) error
	ListLeaderboard(ctx context.Context) ([]models.LeaderboardEntry, error)
	SetLeaderboardEntryVisible(ctx context.Context, userID string, visible bool) error
}

type NewsRepo interface {
	GetNews(ctx context.Context, id string) (*models.News, error)
	ListNews(ctx context.Context) ([]models.News, error)
	CreateNews(ctx context.Context, n *models.News) error
	UpdateNews(ctx context.Context, n *models.News) error
	DeleteNews(ctx context.Context, id string) error
}

type SessionRepo interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSessionByHash(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) error
}

// Repo is the full set of data operations.
type Repo interface {
	UserRepo
	StockRepo
	HoldingRepo
	TransactionRepo
	LeaderboardRepo
	NewsRepo
	SessionRepo
}

// Store is a Repo that can also run work atomically.
type Store interface {
	Repo
	// WithTx runs fn in a read-committed transaction. A non-nil error from fn
	// rolls everything back and is returned unchanged.
	WithTx(ctx context.Context, fn func(Repo) error) error
	// WithSnapshotTx is WithTx under repeatable-read isolation: every read in
	// fn sees the same snapshot.
	WithSnapshotTx(ctx context.Context, fn func(Repo) error) error
	Close() error
}
