package leaderboard

import (
	"context"
	"errors"
	"fmt"
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

const DefaultPublicLimit = 100

// Archive keeps past ranking cycles.
type Archive interface {
	Save(ctx context.Context, snap models.LeaderboardSnapshot) error
	Recent(ctx context.Context, limit int) ([]models.LeaderboardSnapshot, error)
}

// Recomputed is the payload of a leaderboard.recomputed event.
type Recomputed struct {
	Ranked int       `json:"ranked"`
	Total  int       `json:"total"`
	At     time.Time `json:"at"`
}

type Options struct {
	PublicLimit int
	Archive     Archive
	Events      events.Publisher
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Ranker recomputes and serves the leaderboard. Cycles never overlap.
type Ranker struct {
	store       store.Store
	archive     Archive
	events      events.Publisher
	metrics     *metrics.Metrics
	log         *zap.Logger
	publicLimit int
	now         func() time.Time

	mu sync.Mutex
}

func NewRanker(st store.Store, opts Options) *Ranker {
	r := &Ranker{
		store:       st,
		archive:     opts.Archive,
		events:      opts.Events,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		publicLimit: opts.PublicLimit,
		now:         time.Now,
	}
	if r.publicLimit <= 0 {
		r.publicLimit = DefaultPublicLimit
	}
	if r.events == nil {
		r.events = events.Noop
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// Recompute values every user, ranks them and replaces the stored
// leaderboard in one transaction. On failure the previous rows stay.
func (r *Ranker) Recompute(ctx context.Context) ([]models.LeaderboardEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recompute(ctx)
}

func (r *Ranker) recompute(ctx context.Context) ([]models.LeaderboardEntry, error) {
	start := time.Now()
	at := r.now().UTC()

	var entries []models.LeaderboardEntry
	err := r.store.WithSnapshotTx(ctx, func(repo store.Repo) error {
		standings, err := loadStandings(ctx, repo)
		if err != nil {
			return err
		}
		entries = Rank(standings, at)
		if err := repo.ReplaceLeaderboard(ctx, entries); err != nil {
			return fmt.Errorf("replace leaderboard: %w", err)
		}
		return nil
	})

	ranked := countRanked(entries)
	r.metrics.ObserveRecompute(err, ranked, time.Since(start))
	if err != nil {
		r.log.Error("leaderboard recompute failed", zap.Error(err))
		return nil, err
	}

	r.log.Info("leaderboard recomputed",
		zap.Int("entries", len(entries)),
		zap.Int("ranked", ranked),
		zap.Duration("took", time.Since(start)),
	)
	r.afterCycle(ctx, at, entries, ranked)
	return entries, nil
}

func loadStandings(ctx context.Context, repo store.Repo) ([]Standing, error) {
	users, err := repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	stocks, err := repo.ListStocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	holdings, err := repo.ListAllHoldings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(stocks))
	for _, s := range stocks {
		prices[s.ID] = s.CurrentPrice
	}
	byUser := make(map[string][]models.Holding)
	for _, h := range holdings {
		byUser[h.UserID] = append(byUser[h.UserID], h)
	}

	standings := make([]Standing, 0, len(users))
	for _, u := range users {
		name := u.Nickname
		if name == "" {
			name = u.Name
		}
		standings = append(standings, Standing{
			UserID:      u.ID,
			Username:    name,
			CashBalance: u.Balance,
			StockValue:  StockValue(byUser[u.ID], prices),
			Visible:     u.IsLeaderboardVisible,
		})
	}
	return standings, nil
}

// afterCycle archives the snapshot and announces it. Neither step can fail
// the cycle.
func (r *Ranker) afterCycle(ctx context.Context, at time.Time, entries []models.LeaderboardEntry, ranked int) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if r.archive != nil {
		snap := models.LeaderboardSnapshot{TakenAt: at, Entries: entries}
		if err := r.archive.Save(bg, snap); err != nil {
			r.log.Warn("archive leaderboard snapshot", zap.Error(err))
		}
	}

	ev := events.New(events.TypeLeaderboardRecomputed, "", Recomputed{Ranked: ranked, Total: len(entries), At: at})
	if err := r.events.Publish(bg, ev); err != nil {
		r.log.Warn("publish leaderboard event", zap.Error(err))
	}
}

// Public returns visible ranked entries in rank order, capped at the public limit.
func (r *Ranker) Public(ctx context.Context) ([]models.LeaderboardEntry, error) {
	all, err := r.store.ListLeaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("list leaderboard: %w", err)
	}
	out := make([]models.LeaderboardEntry, 0, min(len(all), r.publicLimit))
	for _, e := range all {
		if !e.IsVisible || e.Rank <= 0 {
			continue
		}
		out = append(out, e)
		if len(out) == r.publicLimit {
			break
		}
	}
	return out, nil
}

// Admin returns every entry, ranked first, hidden last.
func (r *Ranker) Admin(ctx context.Context) ([]models.LeaderboardEntry, error) {
	all, err := r.store.ListLeaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("list leaderboard: %w", err)
	}
	return all, nil
}

func (r *Ranker) Stats(ctx context.Context) (*models.LeaderboardStats, error) {
	all, err := r.store.ListLeaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("list leaderboard: %w", err)
	}

	stats := &models.LeaderboardStats{
		TotalParticipants: len(all),
		AverageAssets:     decimal.Zero,
		TopAssets:         decimal.Zero,
	}
	sum := decimal.Zero
	for _, e := range all {
		if e.LastUpdated.After(stats.LastUpdated) {
			stats.LastUpdated = e.LastUpdated
		}
		if !e.IsVisible {
			continue
		}
		stats.VisibleParticipants++
		sum = sum.Add(e.TotalAssets)
		if stats.VisibleParticipants == 1 || e.TotalAssets.GreaterThan(stats.TopAssets) {
			stats.TopAssets = e.TotalAssets
		}
	}
	if stats.VisibleParticipants > 0 {
		stats.AverageAssets = sum.DivRound(decimal.NewFromInt(int64(stats.VisibleParticipants)), 4)
	}
	if stats.LastUpdated.IsZero() {
		stats.LastUpdated = r.now().UTC()
	}
	return stats, nil
}

// ToggleVisibility sets the user's opt-out flag and re-ranks immediately.
func (r *Ranker) ToggleVisibility(ctx context.Context, userID string, visible bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.store.WithTx(ctx, func(repo store.Repo) error {
		if err := repo.SetUserLeaderboardVisible(ctx, userID, visible); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.ErrUserNotFound
			}
			return fmt.Errorf("set user visibility: %w", err)
		}
		return repo.SetLeaderboardEntryVisible(ctx, userID, visible)
	})
	if err != nil {
		return err
	}

	r.log.Info("leaderboard visibility changed", zap.String("user_id", userID), zap.Bool("visible", visible))
	_, err = r.recompute(ctx)
	return err
}

// History returns up to limit archived cycles, newest first.
func (r *Ranker) History(ctx context.Context, limit int) ([]models.LeaderboardSnapshot, error) {
	if r.archive == nil {
		return []models.LeaderboardSnapshot{}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	snaps, err := r.archive.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard history: %w", err)
	}
	return snaps, nil
}

func countRanked(entries []models.LeaderboardEntry) int {
	n := 0
	for _, e := range entries {
		if e.Rank > 0 {
			n++
		}
	}
	return n
}
