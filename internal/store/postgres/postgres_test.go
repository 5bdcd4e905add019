package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stockgame/tradingsim/internal/models"
	"github.com/stockgame/tradingsim/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestGetStock_NotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM stocks WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetStock(context.Background(), "missing")

	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStock_MalformedID(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM stocks WHERE id = $1")).
		WithArgs("nope").
		WillReturnError(&pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "nope"`})

	_, err := s.GetStock(context.Background(), "nope")

	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteNews_MalformedID(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM news")).
		WithArgs("nope").
		WillReturnError(&pq.Error{Code: "22P02"})

	err := s.DeleteNews(context.Background(), "nope")

	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateStock_DuplicateSymbol(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stocks")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := s.CreateStock(context.Background(), &models.Stock{ID: "s1", Symbol: "005930"})

	assert.ErrorIs(t, err, store.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUserBalance_NoRows(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET balance")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateUserBalance(context.Background(), "ghost", decimal.NewFromInt(5))

	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTx_CommitAndRollback(t *testing.T) {
	t.Run("commit", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WithArgs("u1").
			WillReturnRows(userRows().AddRow(userRow("u1")...))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET balance")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := s.WithTx(context.Background(), func(r store.Repo) error {
			u, err := r.LockUser(context.Background(), "u1")
			if err != nil {
				return err
			}
			return r.UpdateUserBalance(context.Background(), u.ID, u.Balance.Sub(decimal.NewFromInt(1)))
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback", func(t *testing.T) {
		s, mock := newMock(t)
		boom := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := s.WithTx(context.Background(), func(store.Repo) error { return boom })

		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListTransactions_Scan(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "user_id", "stock_id", "type", "quantity", "price", "total_amount", "created_at"}).
		AddRow("t2", "u1", "s1", "SELL", int64(3), "1200.0000", "3600.0000", now).
		AddRow("t1", "u1", "s1", "BUY", int64(10), "1000.0000", "10000.0000", now.Add(-time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta("FROM transactions")).WithArgs("u1").WillReturnRows(rows)

	txs, err := s.ListTransactions(context.Background(), "u1")

	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, models.TransactionSell, txs[0].Type)
	assert.True(t, txs[0].TotalAmount.Equal(decimal.NewFromInt(3600)))
	assert.Equal(t, int64(10), txs[1].Quantity)
}

func TestSaveHolding_Upsert(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id, stock_id)")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.SaveHolding(context.Background(), &models.Holding{ID: "h1", UserID: "u1", StockID: "s1", Quantity: 5})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "nickname", "email", "provider", "provider_id", "role",
		"balance", "is_leaderboard_visible", "last_login_at", "created_at", "updated_at"})
}

func userRow(id string) []driver.Value {
	now := time.Now()
	return []driver.Value{id, "", "trader", "", "dev", id, "USER", "10000000.0000", true, nil, now, now}
}

func TestUpdateUser_WritesProfileAndRole(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET name = $1, nickname = $2, email = $3, role = $4")).
		WithArgs("Kim", "kim", "kim@example.com", "ADMIN", now, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateUser(context.Background(), &models.User{
		ID: "u1", Name: "Kim", Nickname: "kim", Email: "kim@example.com", Role: models.RoleAdmin, UpdatedAt: now,
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUser(t *testing.T) {
	t.Run("deletes leaderboard row then user", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM leaderboard_entries WHERE user_id = $1")).
			WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1")).
			WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, s.DeleteUser(context.Background(), "u1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed id is not found", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM leaderboard_entries")).
			WithArgs("nope").
			WillReturnError(&pq.Error{Code: "22P02"})

		assert.ErrorIs(t, s.DeleteUser(context.Background(), "nope"), store.ErrNotFound)
	})
}

func TestFindUserByEmailOrNickname(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("LOWER(email) = LOWER($1)")).
		WithArgs("kim@example.com", "").
		WillReturnRows(userRows().AddRow(userRow("u1")...))

	u, err := s.FindUserByEmailOrNickname(context.Background(), "kim@example.com", "")

	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
