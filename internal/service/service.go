package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/theplant/luhn"
	"go.uber.org/zap"

	"github.com/iurnickita/scrapmart/internal/balance"
	"github.com/iurnickita/scrapmart/internal/catalog"
	"github.com/iurnickita/scrapmart/internal/metrics"
	"github.com/iurnickita/scrapmart/internal/model"
	"github.com/iurnickita/scrapmart/internal/orderstate"
	"github.com/iurnickita/scrapmart/internal/pricing"
	"github.com/iurnickita/scrapmart/internal/referral"
	"github.com/iurnickita/scrapmart/internal/service/config"
	"github.com/iurnickita/scrapmart/internal/store"
	"github.com/iurnickita/scrapmart/internal/trigger"
	"github.com/iurnickita/scrapmart/internal/trigger/alert"
	triggerConfig "github.com/iurnickita/scrapmart/internal/trigger/config"
	"github.com/iurnickita/scrapmart/internal/validator"
)

type Service interface {
	Materials(ctx context.Context) ([]model.Material, error)

	CreateOrder(ctx context.Context, req model.OrderRequest) (model.Order, error)
	GetOrder(ctx context.Context, caller model.Caller, number string) (model.Order, error)
	ListOrders(ctx context.Context, userID string) ([]model.Order, error)
	TransitionOrder(ctx context.Context, caller model.Caller, number string, to model.OrderStatus) (model.Order, error)
	ReevaluateReferral(ctx context.Context, caller model.Caller, number string) (referral.Outcome, error)

	IssueReferralCode(ctx context.Context, userID string) (model.ReferralCode, error)
	ValidateReferralCode(ctx context.Context, code string) (model.Resolution, error)
	RecordReferral(ctx context.Context, userID string, code string) (model.Referral, error)
	ReferralSummary(ctx context.Context, userID string) (model.ReferralSummary, error)
	ReferralHistory(ctx context.Context, userID string) ([]model.Referral, error)
	ReferralShareURL(ctx context.Context, userID string) (string, error)
	DeactivateReferralCode(ctx context.Context, caller model.Caller, code string) error

	Close(ctx context.Context) error
}

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
)

// число попыток перехода при конкурентном изменении статуса
const transitionAttempts = 3

type service struct {
	cfg      config.Config
	store    store.Store
	catalog  catalog.Gateway
	registry *referral.Registry
	ledger   *referral.Ledger
	balance  balance.Balance
	trigger  *trigger.Trigger
	location *time.Location
	now      func() time.Time
	zaplog   *zap.Logger
}

func NewService(cfg config.Config, triggerCfg triggerConfig.Config, store store.Store, catalog catalog.Gateway, sink alert.Sink, zaplog *zap.Logger) (Service, error) {
	location := time.UTC
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
		}
		location = loc
	}

	if cfg.ReferralReward.IsNegative() {
		return nil, fmt.Errorf("referral reward %s is negative", cfg.ReferralReward)
	}
	if cfg.ReferralThreshold.IsNegative() {
		return nil, fmt.Errorf("referral threshold %s is negative", cfg.ReferralThreshold)
	}
	policy := referral.DefaultPolicy()
	policy.Reward = cfg.ReferralReward
	policy.Threshold = cfg.ReferralThreshold

	service := service{
		cfg:      cfg,
		store:    store,
		catalog:  catalog,
		registry: referral.NewRegistry(store, cfg.HouseCode),
		balance:  balance.NewBalance(store),
		location: location,
		now:      time.Now,
		zaplog:   zaplog,
	}
	// реферал и заказы датируются одними часами
	service.ledger = referral.NewLedger(store, policy, zaplog).WithClock(func() time.Time { return service.now() })
	service.trigger = trigger.NewTrigger(triggerCfg, service.ledger, sink, zaplog)

	return &service, nil
}

func (service *service) Materials(ctx context.Context) ([]model.Material, error) {
	return service.catalog.ActiveMaterials(ctx)
}

func (service *service) CreateOrder(ctx context.Context, req model.OrderRequest) (model.Order, error) {
	if req.UserID == "" {
		return model.Order{}, ErrInsufficientData
	}

	materials, err := service.catalog.ActiveMaterials(ctx)
	if err != nil {
		return model.Order{}, fmt.Errorf("catalog: %w", err)
	}

	now := service.now().In(service.location)
	draft, err := validator.Validate(req, materials, now)
	if err != nil {
		return model.Order{}, err
	}
	// цены фиксируются один раз при создании
	items, total := pricing.Price(draft.Lines)

	number, err := service.nextOrderNumber(ctx)
	if err != nil {
		return model.Order{}, err
	}

	order := model.Order{
		Number:         number,
		UserID:         req.UserID,
		CustomerName:   draft.Request.CustomerName,
		Phone:          draft.Request.Phone,
		Address:        draft.Request.Address,
		Landmark:       draft.Request.Landmark,
		Ward:           draft.Request.Ward,
		PickupDate:     draft.Request.PickupDate,
		PickupSlot:     draft.PickupSlot,
		Items:          items,
		TotalAmount:    total,
		PaymentMethod:  draft.PaymentMethod,
		PaymentDetails: draft.Request.PaymentDetails,
		Status:         orderstate.Initial,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := service.store.OrderPost(ctx, order); err != nil {
		return model.Order{}, err
	}

	metrics.OrdersCreated.Inc()
	service.zaplog.Info("order created",
		zap.String("order", order.Number),
		zap.String("user", order.UserID),
		zap.String("total", order.TotalAmount.String()))
	return order, nil
}

// Номер заказа: значение последовательности и контрольная цифра по алгоритму Луна
func (service *service) nextOrderNumber(ctx context.Context) (string, error) {
	seq, err := service.store.OrderNextSeq(ctx)
	if err != nil {
		return "", err
	}
	for digit := int64(0); digit < 10; digit++ {
		candidate := seq*10 + digit
		if luhn.Valid(int(candidate)) {
			return strconv.FormatInt(candidate, 10), nil
		}
	}
	return "", fmt.Errorf("no check digit for %d", seq)
}

// ValidOrderNumber - проверка формата номера без обращения к хранилищу
func ValidOrderNumber(number string) bool {
	if number == "" || len(number) > 18 {
		return false
	}
	n, err := strconv.Atoi(number)
	if err != nil || n <= 0 {
		return false
	}
	return luhn.Valid(n)
}

func (service *service) GetOrder(ctx context.Context, caller model.Caller, number string) (model.Order, error) {
	if caller.UserID == "" {
		return model.Order{}, ErrInsufficientData
	}
	order, err := service.store.OrderGet(ctx, number)
	if errors.Is(err, store.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	// чужой заказ для клиента не существует
	if !caller.Admin() && order.UserID != caller.UserID {
		return model.Order{}, ErrNotFound
	}
	return order, nil
}

func (service *service) ListOrders(ctx context.Context, userID string) ([]model.Order, error) {
	if userID == "" {
		return nil, ErrInsufficientData
	}
	return service.store.OrderGetByCustomer(ctx, userID)
}

// TransitionOrder меняет статус через таблицу переходов и compare-and-set в хранилище.
// Администратор выполняет любые допустимые переходы, владелец заказа может только отменить его.
func (service *service) TransitionOrder(ctx context.Context, caller model.Caller, number string, to model.OrderStatus) (model.Order, error) {
	order, err := service.GetOrder(ctx, caller, number)
	if err != nil {
		return model.Order{}, err
	}
	if !caller.Admin() && to != model.OrderStatusCancelled {
		return model.Order{}, ErrForbidden
	}

	for attempt := 1; ; attempt++ {
		from := order.Status
		if err := orderstate.Transition(from, to); err != nil {
			return model.Order{}, err
		}

		updated, err := service.store.OrderTransition(ctx, number, from, to, service.now())
		if errors.Is(err, store.ErrStatusConflict) && attempt < transitionAttempts {
			// статус изменился параллельно: проверяем переход заново от текущего
			order = updated
			continue
		}
		if errors.Is(err, store.ErrStatusConflict) {
			return model.Order{}, &orderstate.InvalidTransitionError{From: updated.Status, To: to}
		}
		if errors.Is(err, store.ErrNoRows) {
			return model.Order{}, ErrNotFound
		}
		if err != nil {
			return model.Order{}, err
		}

		metrics.OrderTransitions.WithLabelValues(string(from), string(to)).Inc()
		service.zaplog.Info("order status changed",
			zap.String("order", number),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("by", caller.UserID))

		if updated.Status == model.OrderStatusCompleted {
			service.onOrderCompleted(updated)
		}
		return updated, nil
	}
}

// onOrderCompleted передаёт событие завершения в реферальный учёт асинхронно
func (service *service) onOrderCompleted(order model.Order) {
	service.trigger.Notify(order)
}

// ReevaluateReferral - ручной повтор начисления после оповещения об ошибке
func (service *service) ReevaluateReferral(ctx context.Context, caller model.Caller, number string) (referral.Outcome, error) {
	if !caller.Admin() {
		return "", ErrForbidden
	}
	order, err := service.GetOrder(ctx, caller, number)
	if err != nil {
		return "", err
	}
	return service.trigger.Deliver(ctx, order)
}

func (service *service) IssueReferralCode(ctx context.Context, userID string) (model.ReferralCode, error) {
	if userID == "" {
		return model.ReferralCode{}, ErrInsufficientData
	}
	return service.registry.Issue(ctx, userID)
}

func (service *service) ValidateReferralCode(ctx context.Context, code string) (model.Resolution, error) {
	return service.registry.Validate(ctx, code)
}

// RecordReferral - хук регистрации: код проверяется и реферал сохраняется в статусе pending
func (service *service) RecordReferral(ctx context.Context, userID string, code string) (model.Referral, error) {
	if userID == "" {
		return model.Referral{}, ErrInsufficientData
	}
	resolution, err := service.registry.Validate(ctx, code)
	if err != nil {
		return model.Referral{}, err
	}
	return service.ledger.Record(ctx, resolution, userID, code)
}

func (service *service) ReferralSummary(ctx context.Context, userID string) (model.ReferralSummary, error) {
	if userID == "" {
		return model.ReferralSummary{}, ErrInsufficientData
	}
	summary, err := service.balance.Summary(ctx, userID)
	if err != nil {
		return model.ReferralSummary{}, err
	}
	policy := service.ledger.Policy()
	summary.RewardAmount = policy.Reward
	summary.Threshold = policy.Threshold
	return summary, nil
}

// ReferralHistory - приглашённые пользователем, в порядке регистрации
func (service *service) ReferralHistory(ctx context.Context, userID string) ([]model.Referral, error) {
	if userID == "" {
		return nil, ErrInsufficientData
	}
	return service.balance.History(ctx, userID)
}

// DeactivateReferralCode отключает код пользователя. Кодовое слово House не отключается.
func (service *service) DeactivateReferralCode(ctx context.Context, caller model.Caller, code string) error {
	if !caller.Admin() {
		return ErrForbidden
	}
	resolution, err := service.registry.Validate(ctx, code)
	if err != nil {
		return err
	}
	switch resolution.Kind {
	case model.ResolutionOwner:
	case model.ResolutionHouse:
		return ErrForbidden
	default:
		return ErrNotFound
	}

	err = service.registry.Deactivate(ctx, resolution.OwnerUserID)
	if errors.Is(err, store.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	service.zaplog.Info("referral code deactivated",
		zap.String("code", resolution.Code),
		zap.String("by", caller.UserID))
	return nil
}

// ReferralShareURL - ссылка на регистрацию с кодом пользователя
func (service *service) ReferralShareURL(ctx context.Context, userID string) (string, error) {
	rc, err := service.IssueReferralCode(ctx, userID)
	if err != nil {
		return "", err
	}
	if !rc.Active {
		return "", ErrNotFound
	}
	link, err := url.Parse(service.cfg.PublicURL)
	if err != nil {
		return "", fmt.Errorf("public url: %w", err)
	}
	query := link.Query()
	query.Set("ref", rc.Code)
	link.RawQuery = query.Encode()
	return link.String(), nil
}

// Close дожидается фоновых начислений
func (service *service) Close(ctx context.Context) error {
	return service.trigger.Stop(ctx)
}
