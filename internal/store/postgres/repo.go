package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockgame/tradingsim/internal/models"
	"github.com/stockgame/tradingsim/internal/store"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// users

const userColumns = `id, name, nickname, email, provider, provider_id, role, balance,
	is_leaderboard_visible, last_login_at, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u         models.User
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Name, &u.Nickname, &u.Email, &u.Provider, &u.ProviderID, &u.Role,
		&u.Balance, &u.IsLeaderboardVisible, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	return &u, nil
}

func (r *repo) GetUser(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *repo) LockUser(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
}

func (r *repo) GetUserByProvider(ctx context.Context, provider, providerID string) (*models.User, error) {
	return scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = $1 AND provider_id = $2`, provider, providerID))
}

func (r *repo) FindUserByEmailOrNickname(ctx context.Context, email, nickname string) (*models.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE ($1 <> '' AND LOWER(email) = LOWER($1)) OR ($2 <> '' AND nickname = $2)
		ORDER BY created_at, id
		LIMIT 1`, email, nickname))
}

func (r *repo) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *repo) CreateUser(ctx context.Context, u *models.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, name, nickname, email, provider, provider_id, role, balance,
			is_leaderboard_visible, last_login_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		u.ID, u.Name, u.Nickname, u.Email, u.Provider, u.ProviderID, u.Role, u.Balance,
		u.IsLeaderboardVisible, nullTime(u.LastLoginAt), u.CreatedAt, u.UpdatedAt)
	return mapErr(err)
}

func (r *repo) UpdateUser(ctx context.Context, u *models.User) error {
	return expectOne(r.q.ExecContext(ctx, `
		UPDATE users SET name = $1, nickname = $2, email = $3, role = $4, updated_at = $5
		WHERE id = $6`,
		u.Name, u.Nickname, u.Email, u.Role, u.UpdatedAt, u.ID))
}

// DeleteUser relies on ON DELETE CASCADE for holdings, transactions and
// sessions; leaderboard rows carry no foreign key.
func (r *repo) DeleteUser(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM leaderboard_entries WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("delete leaderboard entry: %w", mapErr(err))
	}
	return expectOne(r.q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id))
}

func (r *repo) UpdateUserBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	return expectOne(r.q.ExecContext(ctx,
		`UPDATE users SET balance = $1, updated_at = NOW() WHERE id = $2`, balance, id))
}

func (r *repo) TouchUserLogin(ctx context.Context, id string, at time.Time) error {
	return expectOne(r.q.ExecContext(ctx,
		`UPDATE users SET last_login_at = $1, updated_at = $1 WHERE id = $2`, at, id))
}

func (r *repo) SetUserLeaderboardVisible(ctx context.Context, id string, visible bool) error {
	return expectOne(r.q.ExecContext(ctx,
		`UPDATE users SET is_leaderboard_visible = $1 WHERE id = $2`, visible, id))
}

// stocks

const stockColumns = `id, name, symbol, current_price, previous_price, change, change_percent,
	volume, created_at, updated_at`

func scanStock(row rowScanner) (*models.Stock, error) {
	var s models.Stock
	err := row.Scan(&s.ID, &s.Name, &s.Symbol, &s.CurrentPrice, &s.PreviousPrice, &s.Change,
		&s.ChangePercent, &s.Volume, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r *repo) GetStock(ctx context.Context, id string) (*models.Stock, error) {
	return scanStock(r.q.QueryRowContext(ctx, `SELECT `+stockColumns+` FROM stocks WHERE id = $1`, id))
}

func (r *repo) LockStock(ctx context.Context, id string) (*models.Stock, error) {
	return scanStock(r.q.QueryRowContext(ctx, `SELECT `+stockColumns+` FROM stocks WHERE id = $1 FOR UPDATE`, id))
}

func (r *repo) GetStockBySymbol(ctx context.Context, symbol string) (*models.Stock, error) {
	return scanStock(r.q.QueryRowContext(ctx, `SELECT `+stockColumns+` FROM stocks WHERE symbol = $1`, symbol))
}

func (r *repo) ListStocks(ctx context.Context) ([]models.Stock, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+stockColumns+` FROM stocks ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	defer rows.Close()

	stocks := make([]models.Stock, 0)
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		stocks = append(stocks, *s)
	}
	return stocks, rows.Err()
}

func (r *repo) CreateStock(ctx context.Context, s *models.Stock) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO stocks (id, name, symbol, current_price, previous_price, change, change_percent,
			volume, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.Name, s.Symbol, s.CurrentPrice, s.PreviousPrice, s.Change, s.ChangePercent,
		s.Volume, s.CreatedAt, s.UpdatedAt)
	return mapErr(err)
}

func (r *repo) UpdateStock(ctx context.Context, s *models.Stock) error {
	return expectOne(r.q.ExecContext(ctx, `
		UPDATE stocks SET name = $1, symbol = $2, current_price = $3, previous_price = $4,
			change = $5, change_percent = $6, volume = $7, updated_at = $8
		WHERE id = $9`,
		s.Name, s.Symbol, s.CurrentPrice, s.PreviousPrice, s.Change, s.ChangePercent,
		s.Volume, s.UpdatedAt, s.ID))
}

func (r *repo) DeleteStock(ctx context.Context, id string) error {
	return expectOne(r.q.ExecContext(ctx, `DELETE FROM stocks WHERE id = $1`, id))
}

func (r *repo) AddStockVolume(ctx context.Context, id string, qty int64, at time.Time) error {
	if qty <= 0 {
		return nil
	}
	return expectOne(r.q.ExecContext(ctx,
		`UPDATE stocks SET volume = volume + $1, updated_at = $2 WHERE id = $3`, qty, at, id))
}

// holdings

const holdingColumns = `id, user_id, stock_id, quantity, average_price, created_at, updated_at`

func scanHolding(row rowScanner) (*models.Holding, error) {
	var h models.Holding
	err := row.Scan(&h.ID, &h.UserID, &h.StockID, &h.Quantity, &h.AveragePrice, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &h, nil
}

func (r *repo) GetHolding(ctx context.Context, userID, stockID string) (*models.Holding, error) {
	return scanHolding(r.q.QueryRowContext(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE user_id = $1 AND stock_id = $2`, userID, stockID))
}

func (r *repo) ListHoldings(ctx context.Context, userID string) ([]models.Holding, error) {
	return r.queryHoldings(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE user_id = $1 ORDER BY updated_at DESC, id`, userID)
}

func (r *repo) ListAllHoldings(ctx context.Context) ([]models.Holding, error) {
	return r.queryHoldings(ctx, `SELECT `+holdingColumns+` FROM holdings ORDER BY updated_at DESC, id`)
}

func (r *repo) queryHoldings(ctx context.Context, query string, args ...any) ([]models.Holding, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	defer rows.Close()

	holdings := make([]models.Holding, 0)
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, *h)
	}
	return holdings, rows.Err()
}

func (r *repo) SaveHolding(ctx context.Context, h *models.Holding) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO holdings (id, user_id, stock_id, quantity, average_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, stock_id)
		DO UPDATE SET quantity = EXCLUDED.quantity,
			average_price = EXCLUDED.average_price,
			updated_at = EXCLUDED.updated_at`,
		h.ID, h.UserID, h.StockID, h.Quantity, h.AveragePrice, h.CreatedAt, h.UpdatedAt)
	return mapErr(err)
}

func (r *repo) DeleteHolding(ctx context.Context, userID, stockID string) error {
	return expectOne(r.q.ExecContext(ctx,
		`DELETE FROM holdings WHERE user_id = $1 AND stock_id = $2`, userID, stockID))
}

// transactions

func (r *repo) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, stock_id, type, quantity, price, total_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.UserID, t.StockID, t.Type, t.Quantity, t.Price, t.TotalAmount, t.CreatedAt)
	return mapErr(err)
}

func (r *repo) ListTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, stock_id, type, quantity, price, total_amount, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]models.Transaction, 0)
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.StockID, &t.Type, &t.Quantity, &t.Price,
			&t.TotalAmount, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *repo) SumTradedQuantity(ctx context.Context, stockID string, typ models.TransactionType) (int64, error) {
	var total int64
	err := r.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM transactions WHERE stock_id = $1 AND type = $2`,
		stockID, typ).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum traded quantity: %w", err)
	}
	return total, nil
}

// leaderboard

func (r *repo) ReplaceLeaderboard(ctx context.Context, entries []models.LeaderboardEntry) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM leaderboard_entries`); err != nil {
		return fmt.Errorf("clear leaderboard: %w", err)
	}
	for _, e := range entries {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO leaderboard_entries (id, user_id, username, total_assets, cash_balance,
				stock_value, rank, is_visible, profit_loss, profit_loss_percent, last_updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			e.ID, e.UserID, e.Username, e.TotalAssets, e.CashBalance, e.StockValue, e.Rank,
			e.IsVisible, e.ProfitLoss, e.ProfitLossPercent, e.LastUpdated)
		if err != nil {
			return fmt.Errorf("insert leaderboard entry: %w", mapErr(err))
		}
	}
	return nil
}

func (r *repo) ListLeaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, username, total_assets, cash_balance, stock_value, rank, is_visible,
			profit_loss, profit_loss_percent, last_updated
		FROM leaderboard_entries
		ORDER BY (rank = 0), rank, username`)
	if err != nil {
		return nil, fmt.Errorf("list leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]models.LeaderboardEntry, 0)
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Username, &e.TotalAssets, &e.CashBalance,
			&e.StockValue, &e.Rank, &e.IsVisible, &e.ProfitLoss, &e.ProfitLossPercent,
			&e.LastUpdated); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repo) SetLeaderboardEntryVisible(ctx context.Context, userID string, visible bool) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE leaderboard_entries SET is_visible = $1 WHERE user_id = $2`, visible, userID)
	return mapErr(err)
}

// news

const newsColumns = `id, title, summary, content, category, is_published, published_at, created_at, updated_at`

func scanNews(row rowScanner) (*models.News, error) {
	var (
		n           models.News
		publishedAt sql.NullTime
	)
	err := row.Scan(&n.ID, &n.Title, &n.Summary, &n.Content, &n.Category, &n.IsPublished,
		&publishedAt, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if publishedAt.Valid {
		n.PublishedAt = &publishedAt.Time
	}
	return &n, nil
}

func (r *repo) GetNews(ctx context.Context, id string) (*models.News, error) {
	return scanNews(r.q.QueryRowContext(ctx, `SELECT `+newsColumns+` FROM news WHERE id = $1`, id))
}

func (r *repo) ListNews(ctx context.Context) ([]models.News, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+newsColumns+` FROM news ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}
	defer rows.Close()

	items := make([]models.News, 0)
	for rows.Next() {
		n, err := scanNews(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *n)
	}
	return items, rows.Err()
}

func (r *repo) CreateNews(ctx context.Context, n *models.News) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO news (id, title, summary, content, category, is_published, published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.Title, n.Summary, n.Content, n.Category, n.IsPublished, nullTime(n.PublishedAt),
		n.CreatedAt, n.UpdatedAt)
	return mapErr(err)
}

func (r *repo) UpdateNews(ctx context.Context, n *models.News) error {
	return expectOne(r.q.ExecContext(ctx, `
		UPDATE news SET title = $1, summary = $2, content = $3, category = $4, is_published = $5,
			published_at = $6, updated_at = $7
		WHERE id = $8`,
		n.Title, n.Summary, n.Content, n.Category, n.IsPublished, nullTime(n.PublishedAt), n.UpdatedAt, n.ID))
}

func (r *repo) DeleteNews(ctx context.Context, id string) error {
	return expectOne(r.q.ExecContext(ctx, `DELETE FROM news WHERE id = $1`, id))
}

// sessions

func (r *repo) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO user_sessions (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.UserID, s.TokenHash, s.ExpiresAt, s.CreatedAt)
	return mapErr(err)
}

func (r *repo) GetSessionByHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	var s models.Session
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM user_sessions WHERE token_hash = $1`, tokenHash).
		Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r *repo) DeleteSession(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM user_sessions WHERE id = $1`, id)
	return mapErr(err)
}

func (r *repo) DeleteUserSessions(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, userID)
	return mapErr(err)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ store.Repo = (*repo)(nil)
