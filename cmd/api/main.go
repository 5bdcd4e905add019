package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/stockgame/tradingsim/internal/api"
	"github.com/stockgame/tradingsim/internal/api/handler"
	"github.com/stockgame/tradingsim/internal/archive"
	"github.com/stockgame/tradingsim/internal/auth"
	"github.com/stockgame/tradingsim/internal/config"
	"github.com/stockgame/tradingsim/internal/db"
	"github.com/stockgame/tradingsim/internal/events"
	"github.com/stockgame/tradingsim/internal/jobs"
	"github.com/stockgame/tradingsim/internal/leaderboard"
	"github.com/stockgame/tradingsim/internal/logger"
	"github.com/stockgame/tradingsim/internal/metrics"
	"github.com/stockgame/tradingsim/internal/news"
	"github.com/stockgame/tradingsim/internal/portfolio"
	"github.com/stockgame/tradingsim/internal/realtime"
	"github.com/stockgame/tradingsim/internal/seed"
	"github.com/stockgame/tradingsim/internal/stocks"
	"github.com/stockgame/tradingsim/internal/store"
	"github.com/stockgame/tradingsim/internal/store/memory"
	pgstore "github.com/stockgame/tradingsim/internal/store/postgres"
	"github.com/stockgame/tradingsim/internal/trade"
	"github.com/stockgame/tradingsim/internal/users"
	"go.uber.org/zap"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults or environment variables")
	}

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config/config.yml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			zl.Warn("store close", zap.Error(err))
		}
	}()

	m := metrics.New()
	hub := realtime.NewHub(zl)
	defer hub.Close()

	publishers := events.Multi{hub}
	if cfg.Kafka.Enabled {
		if err := events.EnsureTopic(cfg.Kafka, zl); err != nil {
			return fmt.Errorf("ensure kafka topic: %w", err)
		}
		kp := events.NewKafkaPublisher(cfg.Kafka, zl)
		defer func() {
			if err := kp.Close(); err != nil {
				zl.Warn("kafka writer close", zap.Error(err))
			}
		}()
		publishers = append(publishers, kp)
	}

	var lbArchive leaderboard.Archive
	if cfg.Mongo.Enabled {
		client, err := archive.Connect(ctx, cfg.Mongo, zl)
		if err != nil {
			return err
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(dctx); err != nil {
				zl.Warn("mongo disconnect", zap.Error(err))
			}
		}()
		coll, err := archive.GetCollection(ctx, client, cfg.Mongo)
		if err != nil {
			return err
		}
		lbArchive = archive.New(coll)
	}

	engine := trade.NewEngine(st, trade.Options{
		PriceTolerance: cfg.Trade.PriceTolerance,
		Events:         publishers,
		Metrics:        m,
		Logger:         zl.Named("trade"),
	})
	stockSvc := stocks.NewService(st, stocks.Options{
		MaxChange: cfg.Simulation.MaxChange,
		Events:    publishers,
		Metrics:   m,
		Logger:    zl.Named("stocks"),
	})
	newsSvc := news.NewService(st, zl.Named("news"))
	ranker := leaderboard.NewRanker(st, leaderboard.Options{
		PublicLimit: cfg.Leaderboard.PublicLimit,
		Archive:     lbArchive,
		Events:      publishers,
		Metrics:     m,
		Logger:      zl.Named("leaderboard"),
	})
	authSvc := auth.NewService(st, cfg.Auth, zl.Named("auth"))

	if err := seedCatalog(ctx, cfg, st, stockSvc, newsSvc, zl); err != nil {
		return err
	}

	scheduled := []jobs.Job{{
		Name:       "leaderboard",
		Interval:   cfg.Leaderboard.Interval,
		RunAtStart: true,
		Run: func(ctx context.Context) error {
			_, err := ranker.Recompute(ctx)
			return err
		},
	}}
	if cfg.Simulation.Enabled {
		scheduled = append(scheduled, jobs.Job{
			Name:     "price-simulation",
			Interval: cfg.Simulation.Interval,
			Run: func(ctx context.Context) error {
				_, err := stockSvc.Simulate(ctx)
				return err
			},
		})
	}
	scheduler := jobs.NewScheduler(zl.Named("jobs"), scheduled...)
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.Server.Mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Options{
		Services: handler.Services{
			Trades:      engine,
			Stocks:      stockSvc,
			Portfolios:  portfolio.NewService(st),
			News:        newsSvc,
			Leaderboard: ranker,
			Users:       users.NewService(st, zl.Named("users")),
			Auth:        authSvc,
		},
		Verifier:       authSvc,
		RequestTimeout: cfg.Server.RequestTimeout,
		DevLogin:       cfg.Auth.DevLogin,
		Websocket:      hub.Handle,
		Metrics:        m,
		Logger:         zl.Named("http"),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		zl.Info("server starting", zap.String("addr", srv.Addr), zap.String("store", cfg.Database.Driver))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

func openStore(ctx context.Context, cfg *config.Config, zl *zap.Logger) (store.Store, error) {
	if cfg.Database.Driver == "memory" {
		zl.Warn("using in-memory store; data is lost on exit")
		return memory.New(), nil
	}
	conn, err := db.Open(ctx, cfg.Database, zl)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		if cerr := conn.Close(); cerr != nil {
			zl.Warn("database close", zap.Error(cerr))
		}
		return nil, err
	}
	return pgstore.New(conn), nil
}

func seedCatalog(ctx context.Context, cfg *config.Config, st store.Store, stockSvc *stocks.Service, newsSvc *news.Service, zl *zap.Logger) error {
	if cfg.Seed.Path == "" {
		return nil
	}
	catalog, err := seed.Load(cfg.Seed.Path)
	if errors.Is(err, os.ErrNotExist) {
		zl.Info("no seed file", zap.String("path", cfg.Seed.Path))
		return nil
	}
	if err != nil {
		return err
	}
	return seed.Apply(ctx, catalog, st, stockSvc, newsSvc, zl)
}
