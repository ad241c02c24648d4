package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/scrapmart/internal/model"
	"github.com/iurnickita/scrapmart/internal/secret"
)

func newMockStore(t *testing.T) (*pgStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(arrayConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	box, err := secret.NewBox("")
	require.NoError(t, err)
	return newPgStore(db, box), mock
}

// arrayConverter пропускает []string для условий "= ANY($1)"
type arrayConverter struct{}

func (arrayConverter) ConvertValue(v any) (driver.Value, error) {
	if list, ok := v.([]string); ok {
		return list, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

var pgOrderColumns = []string{"number", "user_id", "customer_name", "phone", "address", "landmark", "ward", "pickup_date",
	"pickup_slot", "total_amount", "payment_method", "payment_details", "status", "created_at", "updated_at"}

func pgOrderRow(number string, status model.OrderStatus) *sqlmock.Rows {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(pgOrderColumns).AddRow(number, "u1", "Asha", "9876543210", "12 MG Road", "", int64(7),
		time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), "09:00-11:00", "660.00", "cash", nil, string(status), at, at)
}

func pgItemRows(number string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"order_number", "material_id", "material_name", "unit", "quantity", "unit_price", "line_total"}).
		AddRow(number, "iron", "Iron", "kg", "22.000", "30.00", "660.00")
}

func TestPgOrderPost(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	order := testOrder("1000009", "u1", model.OrderStatusPending, 22)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs("1000009", 0, "iron", "Iron", "kg", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, store.OrderPost(ctx, order))

	// ошибка на позиции откатывает весь заказ
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()
	require.Error(t, store.OrderPost(ctx, order))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()
	require.ErrorIs(t, store.OrderPost(ctx, order), ErrAlreadyExists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgOrderTransition(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	at := time.Now()

	mock.ExpectQuery("UPDATE orders SET status = \\$1, updated_at = \\$2 WHERE number = \\$3 AND status = \\$4 RETURNING").
		WithArgs("confirmed", at, "1000009", "pending").
		WillReturnRows(pgOrderRow("1000009", model.OrderStatusConfirmed))
	mock.ExpectQuery("FROM order_items").
		WillReturnRows(pgItemRows("1000009"))
	order, err := store.OrderTransition(ctx, "1000009", model.OrderStatusPending, model.OrderStatusConfirmed, at)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusConfirmed, order.Status)
	require.Len(t, order.Items, 1)
	require.True(t, order.Items[0].Quantity.Equal(decimal.NewFromInt(22)))

	// переход зафиксирован, сбой при чтении позиций не делает его ошибкой
	mock.ExpectQuery("UPDATE orders").
		WithArgs("picked", at, "1000009", "confirmed").
		WillReturnRows(pgOrderRow("1000009", model.OrderStatusPicked))
	mock.ExpectQuery("FROM order_items").
		WillReturnError(&pgconn.PgError{Code: "08006"})
	order, err = store.OrderTransition(ctx, "1000009", model.OrderStatusConfirmed, model.OrderStatusPicked, at)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPicked, order.Status)

	// статус уже изменён: возвращается текущий заказ
	mock.ExpectQuery("UPDATE orders").
		WithArgs("confirmed", at, "1000009", "pending").
		WillReturnRows(sqlmock.NewRows(pgOrderColumns))
	mock.ExpectQuery("SELECT (.+) FROM orders WHERE number = \\$1").
		WithArgs("1000009").
		WillReturnRows(pgOrderRow("1000009", model.OrderStatusCancelled))
	mock.ExpectQuery("FROM order_items").
		WillReturnRows(pgItemRows("1000009"))
	order, err = store.OrderTransition(ctx, "1000009", model.OrderStatusPending, model.OrderStatusConfirmed, at)
	require.ErrorIs(t, err, ErrStatusConflict)
	require.Equal(t, model.OrderStatusCancelled, order.Status)

	mock.ExpectQuery("UPDATE orders").
		WillReturnRows(sqlmock.NewRows(pgOrderColumns))
	mock.ExpectQuery("SELECT (.+) FROM orders WHERE number = \\$1").
		WithArgs("1000017").
		WillReturnRows(sqlmock.NewRows(pgOrderColumns))
	_, err = store.OrderTransition(ctx, "1000017", model.OrderStatusPending, model.OrderStatusConfirmed, at)
	require.ErrorIs(t, err, ErrNoRows)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgReferralCompleteOnce(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE referrals").
		WithArgs("completed", sqlmock.AnyArg(), sqlmock.AnyArg(), "r1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	applied, err := store.ReferralComplete(ctx, "r1", decimal.NewFromInt(21), time.Now())
	require.NoError(t, err)
	require.True(t, applied)

	// повторная доставка: статус уже не pending
	mock.ExpectExec("UPDATE referrals").
		WithArgs("completed", sqlmock.AnyArg(), sqlmock.AnyArg(), "r1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	applied, err = store.ReferralComplete(ctx, "r1", decimal.NewFromInt(21), time.Now())
	require.NoError(t, err)
	require.False(t, applied)

	mock.ExpectExec("UPDATE referrals").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	_, err = store.ReferralComplete(ctx, "missing", decimal.NewFromInt(21), time.Now())
	require.ErrorIs(t, err, ErrNoRows)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgReferralPostDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO referrals").
		WithArgs("r1", nil, "u2", "HARSH21", "pending", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.ReferralPost(context.Background(), model.Referral{
		ID: "r1", ReferredUserID: "u2", Code: "HARSH21",
		Status: model.ReferralStatusPending, CreatedAt: time.Now(),
	})
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgTransientErrors(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("FROM order_items").
		WillReturnError(&pgconn.PgError{Code: "08006"})
	_, err := store.OrderCompletedQuantity(ctx, "u1", model.UnitKg, time.Time{})
	require.ErrorIs(t, err, ErrTransient)

	mock.ExpectExec("UPDATE referrals").
		WillReturnError(&pgconn.PgError{Code: "57P01"})
	_, err = store.ReferralComplete(ctx, "r1", decimal.NewFromInt(21), time.Now())
	require.ErrorIs(t, err, ErrTransient)

	mock.ExpectQuery("nextval").
		WillReturnError(errors.New("syntax"))
	_, err = store.OrderNextSeq(ctx)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrTransient))
}

func TestPgCompletedQuantity(t *testing.T) {
	store, mock := newMockStore(t)

	since := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SUM\\(i.quantity\\)(.+)o.created_at >= \\$4").
		WithArgs("u1", "completed", model.UnitKg, since).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("20.500"))
	sum, err := store.OrderCompletedQuantity(context.Background(), "u1", model.UnitKg, since)
	require.NoError(t, err)
	require.True(t, sum.Equal(decimal.RequireFromString("20.5")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgReferralCodeDeactivate(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE referral_codes SET active = false").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.ReferralCodeDeactivate(ctx, "u1"))

	mock.ExpectExec("UPDATE referral_codes SET active = false").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, store.ReferralCodeDeactivate(ctx, "ghost"), ErrNoRows)

	require.NoError(t, mock.ExpectationsWereMet())
}
