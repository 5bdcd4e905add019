// Package news manages in-game articles.
package news

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stockgame/tradingsim/internal/apperr"
	"github.com/stockgame/tradingsim/internal/models"
	"github.com/stockgame/tradingsim/internal/store"
	"go.uber.org/zap"
)

type CreateInput struct {
	Title       string
	Summary     string
	Content     string
	Category    string
	IsPublished bool
}

// UpdateInput changes only the non-nil fields.
type UpdateInput struct {
	Title    *string
	Summary  *string
	Content  *string
	Category *string
}

type Service struct {
	repo store.Repo
	log  *zap.Logger
	now  func() time.Time
}

func NewService(repo store.Repo, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log, now: time.Now}
}

// All returns every article, published or not, newest update first.
func (s *Service) All(ctx context.Context) ([]models.News, error) {
	list, err := s.repo.ListNews(ctx)
	if err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}
	return list, nil
}

func (s *Service) Published(ctx context.Context) ([]models.News, error) {
	return s.filter(ctx, func(n models.News) bool { return n.IsPublished })
}

// ByCategory returns published articles of one category. Matching ignores case.
func (s *Service) ByCategory(ctx context.Context, category string) ([]models.News, error) {
	return s.filter(ctx, func(n models.News) bool {
		return n.IsPublished && strings.EqualFold(n.Category, category)
	})
}

func (s *Service) filter(ctx context.Context, keep func(models.News) bool) ([]models.News, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.News, 0, len(all))
	for _, n := range all {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.News, error) {
	n, err := s.repo.GetNews(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return n, nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.News, error) {
	n := &models.News{
		ID:       models.NewID(),
		Title:    strings.TrimSpace(in.Title),
		Summary:  in.Summary,
		Content:  in.Content,
		Category: strings.TrimSpace(in.Category),
	}
	if err := validate(n); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now
	if in.IsPublished {
		n.Publish(now)
	}
	if err := s.repo.CreateNews(ctx, n); err != nil {
		return nil, fmt.Errorf("create news: %w", err)
	}
	s.log.Info("news created", zap.String("news_id", n.ID), zap.Bool("published", n.IsPublished))
	return n, nil
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*models.News, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		n.Title = strings.TrimSpace(*in.Title)
	}
	if in.Summary != nil {
		n.Summary = *in.Summary
	}
	if in.Content != nil {
		n.Content = *in.Content
	}
	if in.Category != nil {
		n.Category = strings.TrimSpace(*in.Category)
	}
	if err := validate(n); err != nil {
		return nil, err
	}
	n.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateNews(ctx, n); err != nil {
		return nil, mapErr(err)
	}
	return n, nil
}

// SetPublished publishes or unpublishes the article. Publishing stamps
// PublishedAt; unpublishing clears it.
func (s *Service) SetPublished(ctx context.Context, id string, published bool) (*models.News, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if published {
		n.Publish(now)
	} else {
		n.Unpublish(now)
	}
	if err := s.repo.UpdateNews(ctx, n); err != nil {
		return nil, mapErr(err)
	}
	s.log.Info("news visibility changed", zap.String("news_id", id), zap.Bool("published", published))
	return n, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteNews(ctx, id); err != nil {
		return mapErr(err)
	}
	return nil
}

func validate(n *models.News) error {
	switch {
	case n.Title == "":
		return apperr.New(apperr.KindInvalid, "title is required")
	case strings.TrimSpace(n.Content) == "":
		return apperr.New(apperr.KindInvalid, "content is required")
	case n.Category == "":
		return apperr.New(apperr.KindInvalid, "category is required")
	}
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.ErrNewsNotFound
	}
	return err
}
