package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockgame/tradingsim/internal/models"
	"github.com/stockgame/tradingsim/internal/store"
)

// users

func (v *view) GetUser(_ context.Context, id string) (*models.User, error) {
	st, release := v.acquire()
	defer release()
	u, ok := st.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (v *view) LockUser(ctx context.Context, id string) (*models.User, error) {
	return v.GetUser(ctx, id)
}

func (v *view) GetUserByProvider(_ context.Context, provider, providerID string) (*models.User, error) {
	st, release := v.acquire()
	defer release()
	for _, u := range st.users {
		if u.Provider == provider && u.ProviderID == providerID {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) FindUserByEmailOrNickname(_ context.Context, email, nickname string) (*models.User, error) {
	st, release := v.acquire()
	defer release()
	var match *models.User
	for _, u := range st.users {
		hit := (email != "" && strings.EqualFold(u.Email, email)) ||
			(nickname != "" && u.Nickname == nickname)
		if !hit {
			continue
		}
		if match == nil || u.CreatedAt.Before(match.CreatedAt) ||
			(u.CreatedAt.Equal(match.CreatedAt) && u.ID < match.ID) {
			match = &u
		}
	}
	if match == nil {
		return nil, store.ErrNotFound
	}
	return match, nil
}

func (v *view) ListUsers(_ context.Context) ([]models.User, error) {
	st, release := v.acquire()
	defer release()
	out := make([]models.User, 0, len(st.users))
	for _, u := range st.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) CreateUser(_ context.Context, u *models.User) error {
	st, release := v.acquire()
	defer release()
	if _, ok := st.users[u.ID]; ok {
		return store.ErrDuplicate
	}
	for _, existing := range st.users {
		if existing.Provider == u.Provider && existing.ProviderID == u.ProviderID {
			return store.ErrDuplicate
		}
	}
	st.users[u.ID] = *u
	return nil
}

func (v *view) UpdateUser(_ context.Context, u *models.User) error {
	st, release := v.acquire()
	defer release()
	cur, ok := st.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.Name = u.Name
	cur.Nickname = u.Nickname
	cur.Email = u.Email
	cur.Role = u.Role
	cur.UpdatedAt = u.UpdatedAt
	st.users[u.ID] = cur
	return nil
}

func (v *view) DeleteUser(_ context.Context, id string) error {
	st, release := v.acquire()
	defer release()
	if _, ok := st.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(st.users, id)
	for k := range st.holdings {
		if k.userID == id {
			delete(st.holdings, k)
		}
	}
	for sid, s := range st.sessions {
		if s.UserID == id {
			delete(st.sessions, sid)
		}
	}
	txs := st.transactions[:0]
	for _, t := range st.transactions {
		if t.UserID != id {
			txs = append(txs, t)
		}
	}
	st.transactions = txs
	board := st.leaderboard[:0]
	for _, e := range st.leaderboard {
		if e.UserID != id {
			board = append(board, e)
		}
	}
	st.leaderboard = board
	return nil
}

func (v *view) UpdateUserBalance(_ context.Context, id string, balance decimal.Decimal) error {
	st, release := v.acquire()
	defer release()
	u, ok := st.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Balance = balance
	u.UpdatedAt = time.Now()
	st.users[id] = u
	return nil
}

func (v *view) TouchUserLogin(_ context.Context, id string, at time.Time) error {
	st, release := v.acquire()
	defer release()
	u, ok := st.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LastLoginAt = &at
	u.UpdatedAt = at
	st.users[id] = u
	return nil
}

func (v *view) SetUserLeaderboardVisible(_ context.Context, id string, visible bool) error {
	st, release := v.acquire()
	defer release()
	u, ok := st.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.IsLeaderboardVisible = visible
	st.users[id] = u
	return nil
}

// stocks

func (v *view) GetStock(_ context.Context, id string) (*models.Stock, error) {
	st, release := v.acquire()
	defer release()
	s, ok := st.stocks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (v *view) LockStock(ctx context.Context, id string) (*models.Stock, error) {
	return v.GetStock(ctx, id)
}

func (v *view) GetStockBySymbol(_ context.Context, symbol string) (*models.Stock, error) {
	st, release := v.acquire()
	defer release()
	for _, s := range st.stocks {
		if s.Symbol == symbol {
			return &s, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) ListStocks(_ context.Context) ([]models.Stock, error) {
	st, release := v.acquire()
	defer release()
	out := make([]models.Stock, 0, len(st.stocks))
	for _, s := range st.stocks {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (v *view) CreateStock(_ context.Context, s *models.Stock) error {
	st, release := v.acquire()
	defer release()
	if _, ok := st.stocks[s.ID]; ok {
		return store.ErrDuplicate
	}
	for _, existing := range st.stocks {
		if existing.Symbol == s.Symbol {
			return store.ErrDuplicate
		}
	}
	st.stocks[s.ID] = *s
	return nil
}

func (v *view) UpdateStock(_ context.Context, s *models.Stock) error {
	st, release := v.acquire()
	defer release()
	if _, ok := st.stocks[s.ID]; !ok {
		return store.ErrNotFound
	}
	for _, existing := range st.stocks {
		if existing.ID != s.ID && existing.Symbol == s.Symbol {
			return store.ErrDuplicate
		}
	}
	st.stocks[s.ID] = *s
	return nil
}

func (v *view) DeleteStock(_ context.Context, id string) error {
	st, release := v.acquire()
	defer release()
	if _, ok := st.stocks[id]; !ok {
		return store.ErrNotFound
	}
	delete(st.stocks, id)
	return nil
}

func (v *view) AddStockVolume(_ context.Context, id string, qty int64, at time.Time) error {
	st, release := v.acquire()
	defer release()
	s, ok := st.stocks[id]
	if !ok {
		return store.ErrNotFound
	}
	s.IncreaseVolume(qty, at)
	st.stocks[id] = s
	return nil
}

// holdings

func (v *view) GetHolding(_ context.Context, userID, stockID string) (*models.Holding, error) {
	st, release := v.acquire()
	defer release()
	h, ok := st.holdings[holdingKey{userID, stockID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &h, nil
}

func (v *view) ListHoldings(_ context.Context, userID string) ([]models.Holding, error) {
	st, release := v.acquire()
	defer release()
	out := make([]models.Holding, 0)
	for k, h := range st.holdings {
		if k.userID == userID {
			out = append(out, h)
		}
	}
	sortHoldings(out)
	return out, nil
}

func (v *view) ListAllHoldings(_ context.Context) ([]models.Holding, error) {
	st, release := v.acquire()
	defer release()
	out := make([]models.Holding, 0, len(st.holdings))
	for _, h := range st.holdings {
		out = append(out, h)
	}
	sortHoldings(out)
	return out, nil
}

func sortHoldings(hs []models.Holding) {
	sort.Slice(hs, func(i, j int) bool {
		if !hs[i].UpdatedAt.Equal(hs[j].UpdatedAt) {
			return hs[i].UpdatedAt.After(hs[j].UpdatedAt)
		}
		return hs[i].ID < hs[j].ID
	})
}

func (v *view) SaveHolding(_ context.Context, h *models.Holding) error {
	st, release := v.acquire()
	defer release()
	st.holdings[holdingKey{h.UserID, h.StockID}] = *h
	return nil
}

func (v *view) DeleteHolding(_ context.Context, userID, stockID string) error {
	st, release := v.acquire()
	defer release()
	key := holdingKey{userID, stockID}
	if _, ok := st.holdings[key]; !ok {
		return store.ErrNotFound
	}
	delete(st.holdings, key)
	return nil
}

// transactions

func (v *view) InsertTransaction(_ context.Context, t *models.Transaction) error {
	st, release := v.acquire()
	defer release()
	st.transactions = append(st.transactions, *t)
	return nil
}

func (v *view) ListTransactions(_ context.Context, userID string) ([]models.Transaction, error) {
	st, release := v.acquire()
	defer release()
	out := make([]models.Transaction, 0)
	for _, t := range st.transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	// newest first; equal timestamps keep the later insert first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (v *view) SumTradedQuantity(_ context.Context, stockID string, typ models.TransactionType) (int64, error) {
	st, release := v.acquire()
	defer release()
	var total int64
	for _, t := range st.transactions {
		if t.StockID == stockID && t.Type == typ {
			total += t.Quantity
		}
	}
	return total, nil
}

// leaderboard

func (v *view) ReplaceLeaderboard(_ context.Context, entries []models.LeaderboardEntry) error {
	st, release := v.acquire()
	defer release()
	st.leaderboard = append([]models.LeaderboardEntry(nil), entries...)
	return nil
}

func (v *view) ListLeaderboard(_ context.Context) ([]models.LeaderboardEntry, error) {
	st, release := v.acquire()
	defer release()
	out := append([]models.LeaderboardEntry(nil), st.leaderboard...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Rank, out[j].Rank
		if (ri == 0) != (rj == 0) {
			return rj == 0
		}
		if ri != rj {
			return ri < rj
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

func (v *view) SetLeaderboardEntryVisible(_ context.Context, userID string, visible bool) error {
	st, release := v.acquire()
	defer release()
	for i := range st.leaderboard {
		if st.leaderboard[i].UserID == userID {
			st.leaderboard[i].IsVisible = visible
		}
	}
	return nil
}

// news

func (v *view) GetNews(_ context.Context, id string) (*models.News, error) {
	st, release := v.acquire()
	defer release()
	n, ok := st.news[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &n, nil
}

func (v *view) ListNews(_ context.Context) ([]models.News, error) {
	st, release := v.acquire()
	defer release()
	out := make([]models.News, 0, len(st.news))
	for _, n := range st.news {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) CreateNews(_ context.Context, n *models.News) error {
	st, release := v.acquire()
	defer release()
	if _, ok := st.news[n.ID]; ok {
		return store.ErrDuplicate
	}
	st.news[n.ID] = *n
	return nil
}

func (v *view) UpdateNews(_ context.Context, n *models.News) error {
	st, release := v.acquire()
	defer release()
	if _, ok := st.news[n.ID]; !ok {
		return store.ErrNotFound
	}
	st.news[n.ID] = *n
	return nil
}

func (v *view) DeleteNews(_ context.Context, id string) error {
	st, release := v.acquire()
	defer release()
	if _, ok := st.news[id]; !ok {
		return store.ErrNotFound
	}
	delete(st.news, id)
	return nil
}

// sessions

func (v *view) CreateSession(_ context.Context, s *models.Session) error {
	st, release := v.acquire()
	defer release()
	st.sessions[s.ID] = *s
	return nil
}

func (v *view) GetSessionByHash(_ context.Context, tokenHash string) (*models.Session, error) {
	st, release := v.acquire()
	defer release()
	for _, s := range st.sessions {
		if s.TokenHash == tokenHash {
			return &s, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) DeleteSession(_ context.Context, id string) error {
	st, release := v.acquire()
	defer release()
	delete(st.sessions, id)
	return nil
}

func (v *view) DeleteUserSessions(_ context.Context, userID string) error {
	st, release := v.acquire()
	defer release()
	for id, s := range st.sessions {
		if s.UserID == userID {
			delete(st.sessions, id)
		}
	}
	return nil
}
