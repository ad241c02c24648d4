package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/scrapmart/internal/model"
	"github.com/iurnickita/scrapmart/internal/store/config"
)

func testOrder(number, customer string, status model.OrderStatus, kg int64) model.Order {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return model.Order{
		Number:       number,
		UserID:       customer,
		CustomerName: "Asha",
		Phone:        "9876543210",
		Address:      "12 MG Road",
		Ward:         7,
		PickupDate:   "2026-03-15",
		PickupSlot:   "09:00-11:00",
		Items: []model.OrderLineItem{{
			MaterialID: "iron", MaterialName: "Iron", Unit: model.UnitKg,
			Quantity: decimal.NewFromInt(kg), UnitPrice: decimal.NewFromInt(30),
			LineTotal: decimal.NewFromInt(30 * kg),
		}},
		TotalAmount:   decimal.NewFromInt(30 * kg),
		PaymentMethod: model.PaymentMethodCash,
		Status:        status,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

func TestNewStoreWithoutDSN(t *testing.T) {
	s, err := NewStore(config.Config{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestStorePurchaseOrder(t *testing.T) {
	const (
		customer = "100001"
		number   = "1000009"
	)
	ctx := context.Background()
	store := NewMemStore()

	// Создание заказа
	order := testOrder(number, customer, model.OrderStatusPending, 12)
	require.NoError(t, store.OrderPost(ctx, order))
	require.ErrorIs(t, store.OrderPost(ctx, order), ErrAlreadyExists)

	// Чтение заказа
	dbOrder, err := store.OrderGet(ctx, number)
	require.NoError(t, err)
	require.Equal(t, order, dbOrder)

	dbOrders, err := store.OrderGetByCustomer(ctx, customer)
	require.NoError(t, err)
	require.Len(t, dbOrders, 1)

	// Изменение копии не влияет на хранилище
	dbOrder.Items[0].Quantity = decimal.NewFromInt(1000)
	again, err := store.OrderGet(ctx, number)
	require.NoError(t, err)
	require.True(t, again.Items[0].Quantity.Equal(decimal.NewFromInt(12)))

	// Обновление статуса
	at := order.CreatedAt.Add(time.Hour)
	updated, err := store.OrderTransition(ctx, number, model.OrderStatusPending, model.OrderStatusConfirmed, at)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusConfirmed, updated.Status)
	require.Equal(t, at, updated.UpdatedAt)

	// Повтор с устаревшим исходным статусом
	current, err := store.OrderTransition(ctx, number, model.OrderStatusPending, model.OrderStatusCancelled, at)
	require.ErrorIs(t, err, ErrStatusConflict)
	require.Equal(t, model.OrderStatusConfirmed, current.Status)

	_, err = store.OrderTransition(ctx, "404", model.OrderStatusPending, model.OrderStatusConfirmed, at)
	require.ErrorIs(t, err, ErrNoRows)
}

func TestStoreConcurrentTransition(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	require.NoError(t, store.OrderPost(ctx, testOrder("1", "c", model.OrderStatusPending, 5)))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.OrderTransition(ctx, "1", model.OrderStatusPending, model.OrderStatusConfirmed, time.Now())
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, succeeded)
}

func TestStoreCompletedQuantity(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.OrderPost(ctx, testOrder("1", "c", model.OrderStatusCompleted, 8)))
	require.NoError(t, store.OrderPost(ctx, testOrder("2", "c", model.OrderStatusCompleted, 7)))
	require.NoError(t, store.OrderPost(ctx, testOrder("3", "c", model.OrderStatusCancelled, 50)))
	require.NoError(t, store.OrderPost(ctx, testOrder("4", "other", model.OrderStatusCompleted, 50)))

	since := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	sum, err := store.OrderCompletedQuantity(ctx, "c", model.UnitKg, since)
	require.NoError(t, err)
	require.True(t, sum.Equal(decimal.NewFromInt(15)), sum.String())

	sum, err = store.OrderCompletedQuantity(ctx, "c", "piece", since)
	require.NoError(t, err)
	require.True(t, sum.IsZero())

	// заказы, созданные раньше since, не учитываются
	earlier := testOrder("5", "c", model.OrderStatusCompleted, 40)
	earlier.CreatedAt = since.Add(-time.Hour)
	require.NoError(t, store.OrderPost(ctx, earlier))
	sum, err = store.OrderCompletedQuantity(ctx, "c", model.UnitKg, since)
	require.NoError(t, err)
	require.True(t, sum.Equal(decimal.NewFromInt(15)), sum.String())
}

func TestStoreReferralCodes(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	at := time.Now()

	require.NoError(t, store.ReferralCodePost(ctx, model.ReferralCode{Code: "ASHA1234", UserID: "u1", Active: true, CreatedAt: at}))
	// код занят
	require.ErrorIs(t, store.ReferralCodePost(ctx, model.ReferralCode{Code: "ASHA1234", UserID: "u2", Active: true}), ErrAlreadyExists)
	// у пользователя уже есть код
	require.ErrorIs(t, store.ReferralCodePost(ctx, model.ReferralCode{Code: "OTHER123", UserID: "u1", Active: true}), ErrAlreadyExists)

	rc, err := store.ReferralCodeGetByUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "ASHA1234", rc.Code)

	require.NoError(t, store.ReferralCodeDeactivate(ctx, "u1"))
	rc, err = store.ReferralCodeGet(ctx, "ASHA1234")
	require.NoError(t, err)
	require.False(t, rc.Active)

	require.ErrorIs(t, store.ReferralCodeDeactivate(ctx, "nobody"), ErrNoRows)
	_, err = store.ReferralCodeGet(ctx, "NOPE")
	require.ErrorIs(t, err, ErrNoRows)
}

func TestStoreReferralComplete(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	referrer := "u1"

	referral := model.Referral{ID: "r1", ReferrerUserID: &referrer, ReferredUserID: "u2", Code: "ASHA1234",
		Status: model.ReferralStatusPending, CreatedAt: time.Now()}
	require.NoError(t, store.ReferralPost(ctx, referral))
	referral.ID = "r2"
	require.ErrorIs(t, store.ReferralPost(ctx, referral), ErrAlreadyExists)

	reward := decimal.NewFromInt(21)
	applied, err := store.ReferralComplete(ctx, "r1", reward, time.Now())
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = store.ReferralComplete(ctx, "r1", decimal.NewFromInt(99), time.Now())
	require.NoError(t, err)
	require.False(t, applied)

	stored, err := store.ReferralGetByReferred(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, model.ReferralStatusCompleted, stored.Status)
	require.True(t, stored.RewardAmount.Equal(reward))

	byReferrer, err := store.ReferralGetByReferrer(ctx, referrer)
	require.NoError(t, err)
	require.Len(t, byReferrer, 1)

	_, err = store.ReferralComplete(ctx, "missing", reward, time.Now())
	require.ErrorIs(t, err, ErrNoRows)
}
