package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/scrapmart/internal/model"
	"github.com/iurnickita/scrapmart/internal/secret"
	"github.com/iurnickita/scrapmart/internal/store/config"
)

type Store interface {
	MaterialGetActive(ctx context.Context) ([]model.Material, error)
	MaterialPut(ctx context.Context, material model.Material) error

	OrderNextSeq(ctx context.Context) (int64, error)
	OrderPost(ctx context.Context, order model.Order) error
	OrderGet(ctx context.Context, number string) (model.Order, error)
	OrderGetByCustomer(ctx context.Context, userID string) ([]model.Order, error)
	OrderTransition(ctx context.Context, number string, from, to model.OrderStatus, at time.Time) (model.Order, error)
	OrderCompletedQuantity(ctx context.Context, userID string, unit string, since time.Time) (decimal.Decimal, error)

	ReferralCodePost(ctx context.Context, code model.ReferralCode) error
	ReferralCodeGet(ctx context.Context, code string) (model.ReferralCode, error)
	ReferralCodeGetByUser(ctx context.Context, userID string) (model.ReferralCode, error)
	ReferralCodeDeactivate(ctx context.Context, userID string) error

	ReferralPost(ctx context.Context, referral model.Referral) error
	ReferralGetByReferred(ctx context.Context, userID string) (model.Referral, error)
	ReferralGetByReferrer(ctx context.Context, userID string) ([]model.Referral, error)
	ReferralComplete(ctx context.Context, id string, reward decimal.Decimal, at time.Time) (bool, error)

	Close() error
}

var (
	ErrNoRows         = errors.New("no rows")
	ErrAlreadyExists  = errors.New("already exists")
	ErrStatusConflict = errors.New("status changed concurrently")
	ErrTransient      = errors.New("store temporarily unavailable")
)

// NewStore - PostgreSQL при заданном DSN, иначе хранение в памяти
func NewStore(cfg config.Config) (Store, error) {
	if cfg.DBDsn == "" {
		return NewMemStore(), nil
	}
	box, err := secret.NewBox(cfg.PaymentKey)
	if err != nil {
		return nil, err
	}
	return NewPostgresStore(cfg.DBDsn, box)
}
