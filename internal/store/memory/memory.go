// Package memory is an in-process store used for local runs and tests.
// All transactions are serialized by one mutex and work on a copy of the
// data that replaces the live copy only on success.
package memory

import (
	"context"
	"sync"

	"github.com/stockgame/tradingsim/internal/models"
	"github.com/stockgame/tradingsim/internal/store"
)

type holdingKey struct {
	userID  string
	stockID string
}

type state struct {
	users        map[string]models.User
	stocks       map[string]models.Stock
	holdings     map[holdingKey]models.Holding
	transactions []models.Transaction
	leaderboard  []models.LeaderboardEntry
	news         map[string]models.News
	sessions     map[string]models.Session
}

func newState() *state {
	return &state{
		users:    make(map[string]models.User),
		stocks:   make(map[string]models.Stock),
		holdings: make(map[holdingKey]models.Holding),
		news:     make(map[string]models.News),
		sessions: make(map[string]models.Session),
	}
}

func (s *state) clone() *state {
	c := &state{
		users:        make(map[string]models.User, len(s.users)),
		stocks:       make(map[string]models.Stock, len(s.stocks)),
		holdings:     make(map[holdingKey]models.Holding, len(s.holdings)),
		transactions: append([]models.Transaction(nil), s.transactions...),
		leaderboard:  append([]models.LeaderboardEntry(nil), s.leaderboard...),
		news:         make(map[string]models.News, len(s.news)),
		sessions:     make(map[string]models.Session, len(s.sessions)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.stocks {
		c.stocks[k] = v
	}
	for k, v := range s.holdings {
		c.holdings[k] = v
	}
	for k, v := range s.news {
		c.news[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	return c
}

// Store implements store.Store in memory.
type Store struct {
	view
	mu sync.Mutex
	st *state
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	s := &Store{st: newState()}
	s.view = view{s: s}
	return s
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Repo) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.st.clone()
	if err := fn(&view{s: s, tx: draft}); err != nil {
		return err
	}
	s.st = draft
	return nil
}

// WithSnapshotTx is WithTx: transactions here are already fully serialized.
func (s *Store) WithSnapshotTx(ctx context.Context, fn func(store.Repo) error) error {
	return s.WithTx(ctx, fn)
}

func (s *Store) Close() error { return nil }

// view runs repo operations either against the live state (taking the
// lock per call) or against a transaction draft (lock already held).
type view struct {
	s  *Store
	tx *state
}

func (v *view) acquire() (*state, func()) {
	if v.tx != nil {
		return v.tx, func() {}
	}
	v.s.mu.Lock()
	return v.s.st, v.s.mu.Unlock
}
