package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockgame/tradingsim/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// fakeCollection keeps inserted documents in memory, newest last.
type fakeCollection struct {
	docs      []interface{}
	lastLimit int64
	err       error
}

func (f *fakeCollection) InsertOne(_ context.Context, doc interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.docs = append(f.docs, doc)
	return &mongo.InsertOneResult{}, nil
}

func (f *fakeCollection) Find(_ context.Context, _ interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	if f.err != nil {
		return nil, f.err
	}
	limit := int64(len(f.docs))
	if len(opts) > 0 && opts[0].Limit != nil && *opts[0].Limit < limit {
		limit = *opts[0].Limit
	}
	f.lastLimit = limit
	out := make([]interface{}, 0, limit)
	for i := len(f.docs) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		out = append(out, f.docs[i])
	}
	return mongo.NewCursorFromDocuments(out, nil, nil)
}

func snapshot(at time.Time, total string) models.LeaderboardSnapshot {
	return models.LeaderboardSnapshot{
		TakenAt: at,
		Entries: []models.LeaderboardEntry{{
			UserID:            "u1",
			Username:          "alice",
			Rank:              1,
			CashBalance:       decimal.RequireFromString("9500000.5"),
			StockValue:        decimal.RequireFromString("600000"),
			TotalAssets:       decimal.RequireFromString(total),
			ProfitLoss:        decimal.RequireFromString("100000.5"),
			ProfitLossPercent: decimal.RequireFromString("1.000005"),
			IsVisible:         true,
		}},
	}
}

func TestDocRoundTripKeepsDecimals(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := snapshot(at, "10100000.5")

	doc, err := toDoc(in)
	require.NoError(t, err)
	out, err := fromDoc(doc)
	require.NoError(t, err)

	require.Len(t, out.Entries, 1)
	e := out.Entries[0]
	assert.True(t, e.TotalAssets.Equal(in.Entries[0].TotalAssets), "total %s", e.TotalAssets)
	assert.True(t, e.ProfitLossPercent.Equal(in.Entries[0].ProfitLossPercent), "pl%% %s", e.ProfitLossPercent)
	assert.Equal(t, at, out.TakenAt)
	assert.Equal(t, at, e.LastUpdated)
}

func TestSaveAndRecent(t *testing.T) {
	coll := &fakeCollection{}
	a := New(coll)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, total := range []string{"1", "2", "3"} {
		require.NoError(t, a.Save(ctx, snapshot(base.Add(time.Duration(i)*time.Minute), total)))
	}

	got, err := a.Recent(ctx, 2)

	require.NoError(t, err)
	assert.Equal(t, int64(2), coll.lastLimit)
	require.Len(t, got, 2)
	assert.True(t, got[0].Entries[0].TotalAssets.Equal(decimal.NewFromInt(3)))
	assert.True(t, got[1].TakenAt.Before(got[0].TakenAt))
}

func TestSave_Error(t *testing.T) {
	a := New(&fakeCollection{err: errors.New("no primary")})

	err := a.Save(context.Background(), snapshot(time.Now(), "1"))

	assert.ErrorContains(t, err, "no primary")
}
