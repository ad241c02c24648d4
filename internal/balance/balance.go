package balance

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/scrapmart/internal/model"
	"github.com/iurnickita/scrapmart/internal/store"
)

// Balance - реферальные начисления пригласившего
type Balance interface {
	Summary(ctx context.Context, userID string) (model.ReferralSummary, error)
	History(ctx context.Context, userID string) ([]model.Referral, error)
}

type balance struct {
	store store.Store
}

func NewBalance(store store.Store) Balance {
	balance := balance{store: store}
	return &balance
}

func (balance *balance) History(ctx context.Context, userID string) ([]model.Referral, error) {
	return balance.store.ReferralGetByReferrer(ctx, userID)
}

// Summary считает только рефералы с пригласившим; House-рефералы никому не начисляются
func (balance *balance) Summary(ctx context.Context, userID string) (model.ReferralSummary, error) {
	summary := model.ReferralSummary{TotalEarnings: decimal.Zero}

	rc, err := balance.store.ReferralCodeGetByUser(ctx, userID)
	switch {
	case err == nil:
		if rc.Active {
			summary.Code = rc.Code
		}
	case errors.Is(err, store.ErrNoRows):
	default:
		return model.ReferralSummary{}, err
	}

	referrals, err := balance.store.ReferralGetByReferrer(ctx, userID)
	if err != nil {
		return model.ReferralSummary{}, err
	}
	for _, r := range referrals {
		switch r.Status {
		case model.ReferralStatusPending:
			summary.Pending++
		case model.ReferralStatusCompleted:
			summary.Successful++
			if r.RewardAmount != nil {
				summary.TotalEarnings = summary.TotalEarnings.Add(*r.RewardAmount)
			}
		}
	}
	return summary, nil
}
