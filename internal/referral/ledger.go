package referral

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/scrapmart/internal/metrics"
	"github.com/iurnickita/scrapmart/internal/model"
	"github.com/iurnickita/scrapmart/internal/store"
)

// Policy - условия начисления награды.
// Квалификация накопительная: учитываются завершённые заказы приглашённого, созданные после записи реферала.
type Policy struct {
	Reward    decimal.Decimal
	Threshold decimal.Decimal
	Unit      string
}

func DefaultPolicy() Policy {
	return Policy{
		Reward:    decimal.NewFromInt(21),
		Threshold: decimal.NewFromInt(20),
		Unit:      model.UnitKg,
	}
}

type Outcome string

const (
	OutcomeCredited          Outcome = "credited"
	OutcomeAlreadyCompleted  Outcome = "already_completed"
	OutcomeNoReferral        Outcome = "no_referral"
	OutcomeBelowThreshold    Outcome = "below_threshold"
	OutcomeOrderNotCompleted Outcome = "order_not_completed"
)

type Ledger struct {
	store  store.Store
	policy Policy
	now    func() time.Time
	zaplog *zap.Logger
}

func NewLedger(store store.Store, policy Policy, zaplog *zap.Logger) *Ledger {
	return &Ledger{
		store:  store,
		policy: policy,
		now:    time.Now,
		zaplog: zaplog,
	}
}

// WithClock задаёт источник времени для записи и начисления
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) Policy() Policy {
	return l.policy
}

// Record создаёт ожидающий реферал при регистрации приглашённого
func (l *Ledger) Record(ctx context.Context, resolution model.Resolution, referredUserID string, code string) (model.Referral, error) {
	if referredUserID == "" {
		return model.Referral{}, ErrNoUser
	}

	referral := model.Referral{
		ID:             uuid.NewString(),
		ReferredUserID: referredUserID,
		Code:           Normalize(code),
		Status:         model.ReferralStatusPending,
		CreatedAt:      l.now(),
	}
	switch resolution.Kind {
	case model.ResolutionOwner:
		if resolution.OwnerUserID == "" {
			return model.Referral{}, ErrInvalidCode
		}
		if resolution.OwnerUserID == referredUserID {
			return model.Referral{}, ErrSelfReferral
		}
		referrer := resolution.OwnerUserID
		referral.ReferrerUserID = &referrer
	case model.ResolutionHouse:
		// реферал без пригласившего
	default:
		return model.Referral{}, ErrInvalidCode
	}
	if referral.Code == "" {
		referral.Code = resolution.Code
	}

	// реферал относится к первому заказу: у приглашённого ещё не должно быть заказов
	orders, err := l.store.OrderGetByCustomer(ctx, referredUserID)
	if err != nil && !errors.Is(err, store.ErrNoRows) {
		return model.Referral{}, err
	}
	if len(orders) > 0 {
		return model.Referral{}, ErrExistingCustomer
	}

	err = l.store.ReferralPost(ctx, referral)
	if errors.Is(err, store.ErrAlreadyExists) {
		return model.Referral{}, ErrDuplicateReferral
	}
	if err != nil {
		return model.Referral{}, err
	}

	metrics.ReferralsRecorded.WithLabelValues(string(resolution.Kind)).Inc()
	l.zaplog.Info("referral recorded",
		zap.String("referral", referral.ID),
		zap.String("referred", referredUserID),
		zap.String("kind", string(resolution.Kind)))
	return referral, nil
}

// EvaluateCompletion вызывается после перехода заказа в completed.
// Повторный вызов безопасен: начисление выполняет compare-and-set по статусу pending.
func (l *Ledger) EvaluateCompletion(ctx context.Context, order model.Order) (Outcome, error) {
	if order.Status != model.OrderStatusCompleted {
		return OutcomeOrderNotCompleted, nil
	}

	referral, err := l.store.ReferralGetByReferred(ctx, order.UserID)
	if errors.Is(err, store.ErrNoRows) {
		return OutcomeNoReferral, nil
	}
	if err != nil {
		return "", err
	}
	if referral.Status != model.ReferralStatusPending {
		return OutcomeAlreadyCompleted, nil
	}

	sold, err := l.store.OrderCompletedQuantity(ctx, order.UserID, l.policy.Unit, referral.CreatedAt)
	if err != nil {
		return "", err
	}
	if sold.LessThan(l.policy.Threshold) {
		l.zaplog.Debug("referral below threshold",
			zap.String("referral", referral.ID),
			zap.String("sold", sold.String()))
		return OutcomeBelowThreshold, nil
	}

	applied, err := l.store.ReferralComplete(ctx, referral.ID, l.policy.Reward, l.now())
	if err != nil {
		return "", err
	}
	if !applied {
		return OutcomeAlreadyCompleted, nil
	}

	metrics.RewardsCredited.Inc()
	l.zaplog.Info("referral reward credited",
		zap.String("referral", referral.ID),
		zap.String("order", order.Number),
		zap.String("reward", l.policy.Reward.String()))
	return OutcomeCredited, nil
}
