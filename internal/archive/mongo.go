// Package archive stores past leaderboard cycles in MongoDB.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockgame/tradingsim/internal/config"
	"github.com/stockgame/tradingsim/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Connect opens a client and pings it.
func Connect(ctx context.Context, cfg config.MongoConfig, log *zap.Logger) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	log.Info("connected to mongodb", zap.String("database", cfg.Database))
	return client, nil
}

// GetCollection returns the snapshot collection, creating its taken_at index.
func GetCollection(ctx context.Context, client *mongo.Client, cfg config.MongoConfig) (*mongo.Collection, error) {
	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "taken_at", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("create snapshot index: %w", err)
	}
	return coll, nil
}

// collection is the part of *mongo.Collection the archive uses.
type collection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

type Archive struct {
	coll collection
}

func New(coll collection) *Archive {
	return &Archive{coll: coll}
}

type entryDoc struct {
	UserID            string               `bson:"user_id"`
	Username          string               `bson:"username"`
	Rank              int                  `bson:"rank"`
	CashBalance       primitive.Decimal128 `bson:"cash_balance"`
	StockValue        primitive.Decimal128 `bson:"stock_value"`
	TotalAssets       primitive.Decimal128 `bson:"total_assets"`
	ProfitLoss        primitive.Decimal128 `bson:"profit_loss"`
	ProfitLossPercent primitive.Decimal128 `bson:"profit_loss_percent"`
	IsVisible         bool                 `bson:"is_visible"`
}

type snapshotDoc struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	TakenAt time.Time          `bson:"taken_at"`
	Entries []entryDoc         `bson:"entries"`
}

func (a *Archive) Save(ctx context.Context, snap models.LeaderboardSnapshot) error {
	doc, err := toDoc(snap)
	if err != nil {
		return err
	}
	if _, err := a.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Recent returns up to limit snapshots, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]models.LeaderboardSnapshot, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "taken_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := a.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find snapshots: %w", err)
	}
	defer cur.Close(ctx)

	var docs []snapshotDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode snapshots: %w", err)
	}
	out := make([]models.LeaderboardSnapshot, 0, len(docs))
	for _, d := range docs {
		snap, err := fromDoc(d)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// decimals converts between decimal.Decimal and BSON Decimal128, keeping the
// first failure.
type decimals struct{ err error }

func (c *decimals) to(v decimal.Decimal) primitive.Decimal128 {
	if c.err != nil {
		return primitive.Decimal128{}
	}
	d, err := primitive.ParseDecimal128(v.String())
	c.err = err
	return d
}

func (c *decimals) from(v primitive.Decimal128) decimal.Decimal {
	if c.err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v.String())
	c.err = err
	return d
}

func toDoc(snap models.LeaderboardSnapshot) (snapshotDoc, error) {
	var c decimals
	doc := snapshotDoc{TakenAt: snap.TakenAt.UTC(), Entries: make([]entryDoc, 0, len(snap.Entries))}
	for _, e := range snap.Entries {
		doc.Entries = append(doc.Entries, entryDoc{
			UserID:            e.UserID,
			Username:          e.Username,
			Rank:              e.Rank,
			CashBalance:       c.to(e.CashBalance),
			StockValue:        c.to(e.StockValue),
			TotalAssets:       c.to(e.TotalAssets),
			ProfitLoss:        c.to(e.ProfitLoss),
			ProfitLossPercent: c.to(e.ProfitLossPercent),
			IsVisible:         e.IsVisible,
		})
		if c.err != nil {
			return snapshotDoc{}, fmt.Errorf("encode entry for %s: %w", e.UserID, c.err)
		}
	}
	return doc, nil
}

func fromDoc(doc snapshotDoc) (models.LeaderboardSnapshot, error) {
	var c decimals
	at := doc.TakenAt.UTC()
	snap := models.LeaderboardSnapshot{TakenAt: at, Entries: make([]models.LeaderboardEntry, 0, len(doc.Entries))}
	for _, ed := range doc.Entries {
		snap.Entries = append(snap.Entries, models.LeaderboardEntry{
			UserID:            ed.UserID,
			Username:          ed.Username,
			Rank:              ed.Rank,
			CashBalance:       c.from(ed.CashBalance),
			StockValue:        c.from(ed.StockValue),
			TotalAssets:       c.from(ed.TotalAssets),
			ProfitLoss:        c.from(ed.ProfitLoss),
			ProfitLossPercent: c.from(ed.ProfitLossPercent),
			IsVisible:         ed.IsVisible,
			LastUpdated:       at,
		})
		if c.err != nil {
			return models.LeaderboardSnapshot{}, fmt.Errorf("decode entry for %s: %w", ed.UserID, c.err)
		}
	}
	return snap, nil
}
