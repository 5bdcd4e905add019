// Package seed loads the starting stock catalog and news from YAML.
package seed

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/stockgame/tradingsim/internal/news"
	"github.com/stockgame/tradingsim/internal/stocks"
	"github.com/stockgame/tradingsim/internal/store"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Stock struct {
	Name   string `yaml:"name"`
	Symbol string `yaml:"symbol"`
	Price  string `yaml:"price"`
	Volume int64  `yaml:"volume"`
}

type Article struct {
	Title     string `yaml:"title"`
	Summary   string `yaml:"summary"`
	Content   string `yaml:"content"`
	Category  string `yaml:"category"`
	Published bool   `yaml:"published"`
}

type Catalog struct {
	Stocks []Stock   `yaml:"stocks"`
	News   []Article `yaml:"news"`
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &c, nil
}

// Apply creates the catalog's stocks when the registry is empty and its
// articles when there is no news. Existing data is never touched.
func Apply(ctx context.Context, c *Catalog, repo store.Repo, stockSvc *stocks.Service, newsSvc *news.Service, log *zap.Logger) error {
	existing, err := repo.ListStocks(ctx)
	if err != nil {
		return fmt.Errorf("list stocks: %w", err)
	}
	if len(existing) == 0 {
		for _, s := range c.Stocks {
			price, err := decimal.NewFromString(s.Price)
			if err != nil {
				return fmt.Errorf("seed stock %s: bad price %q: %w", s.Symbol, s.Price, err)
			}
			if _, err := stockSvc.Create(ctx, stocks.CreateInput{
				Name: s.Name, Symbol: s.Symbol, CurrentPrice: price, Volume: s.Volume,
			}); err != nil {
				return fmt.Errorf("seed stock %s: %w", s.Symbol, err)
			}
		}
		log.Info("seeded stocks", zap.Int("count", len(c.Stocks)))
	}

	articles, err := repo.ListNews(ctx)
	if err != nil {
		return fmt.Errorf("list news: %w", err)
	}
	if len(articles) == 0 {
		for _, a := range c.News {
			if _, err := newsSvc.Create(ctx, news.CreateInput{
				Title: a.Title, Summary: a.Summary, Content: a.Content, Category: a.Category, IsPublished: a.Published,
			}); err != nil {
				return fmt.Errorf("seed news %q: %w", a.Title, err)
			}
		}
		log.Info("seeded news", zap.Int("count", len(c.News)))
	}
	return nil
}
