package trade

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stockgame/tradingsim/internal/apperr"
	"github.com/stockgame/tradingsim/internal/db"
	"github.com/stockgame/tradingsim/internal/store/postgres"
)

func TestLive_BuyStock_Success(t *testing.T) {
	// Setup
	database := db.SetupTestDB(t)
	st := postgres.New(database)
	engine := NewEngine(st, Options{PriceTolerance: 0.05})

	userID := db.CreateTestUser(t, database, "testuser", decimal.NewFromInt(10000))
	stockID := db.CreateTestStock(t, database, "900001", decimal.NewFromInt(150))

	// Execute trade
	res, err := engine.Buy(context.Background(), userID, Order{StockID: stockID, Quantity: 10, Price: decimal.NewFromInt(150)})

	// Assertions
	if err != nil {
		t.Fatalf("Expected trade to succeed, got error: %v", err)
	}
	if !res.Transaction.TotalAmount.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("Expected total amount 1500, got %s", res.Transaction.TotalAmount)
	}

	// Verify balance was deducted
	var balance decimal.Decimal
	if err := database.QueryRow("SELECT balance FROM users WHERE id = $1", userID).Scan(&balance); err != nil {
		t.Fatalf("Failed to query balance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(8500)) {
		t.Errorf("Expected balance 8500, got %s", balance)
	}

	// Verify holding was created
	var quantity int64
	err = database.QueryRow(
		"SELECT quantity FROM holdings WHERE user_id = $1 AND stock_id = $2",
		userID, stockID,
	).Scan(&quantity)
	if err != nil {
		t.Fatalf("Failed to query holding: %v", err)
	}
	if quantity != 10 {
		t.Errorf("Expected quantity 10, got %d", quantity)
	}
}

func TestLive_BuyStock_InsufficientFunds(t *testing.T) {
	database := db.SetupTestDB(t)
	engine := NewEngine(postgres.New(database), Options{PriceTolerance: 0.05})

	userID := db.CreateTestUser(t, database, "pooruser", decimal.NewFromInt(100))
	stockID := db.CreateTestStock(t, database, "900002", decimal.NewFromInt(150))

	_, err := engine.Buy(context.Background(), userID, Order{StockID: stockID, Quantity: 10, Price: decimal.NewFromInt(150)})
	if apperr.KindOf(err) != apperr.KindInsufficientFunds {
		t.Fatalf("Expected insufficient funds, got: %v", err)
	}

	var balance decimal.Decimal
	database.QueryRow("SELECT balance FROM users WHERE id = $1", userID).Scan(&balance)
	if !balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected balance unchanged at 100, got %s", balance)
	}
}

func TestLive_ConcurrentTrades(t *testing.T) {
	database := db.SetupTestDB(t)
	engine := NewEngine(postgres.New(database), Options{PriceTolerance: 0.05})

	userID := db.CreateTestUser(t, database, "concurrent", decimal.NewFromInt(100000))
	stockID := db.CreateTestStock(t, database, "900003", decimal.NewFromInt(100))

	// 10 concurrent buys of 10 shares at 100 = 10,000 total
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Buy(context.Background(), userID, Order{StockID: stockID, Quantity: 10, Price: decimal.NewFromInt(100)}); err != nil {
				t.Errorf("buy failed: %v", err)
			}
		}()
	}
	wg.Wait()

	var balance decimal.Decimal
	database.QueryRow("SELECT balance FROM users WHERE id = $1", userID).Scan(&balance)
	if !balance.Equal(decimal.NewFromInt(90000)) {
		t.Errorf("Expected balance 90000, got %s", balance)
	}

	var quantity int64
	database.QueryRow("SELECT quantity FROM holdings WHERE user_id = $1 AND stock_id = $2", userID, stockID).Scan(&quantity)
	if quantity != 100 {
		t.Errorf("Expected quantity 100, got %d", quantity)
	}
}
