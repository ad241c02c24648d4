package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/scrapmart/internal/model"
)

// memStore - хранилище в памяти для запуска без базы и для тестов.
// Ограничения уникальности те же, что у таблиц PostgreSQL.
type memStore struct {
	mu sync.Mutex

	seq       int64
	materials map[string]model.Material
	orders    map[string]model.Order
	codes     map[string]model.ReferralCode // по коду
	userCodes map[string]string             // user_id -> код
	referrals map[string]model.Referral     // по id
	referred  map[string]string             // referred_user_id -> id
}

const orderSeqStart = 100000

func NewMemStore() Store {
	return &memStore{
		seq:       orderSeqStart - 1,
		materials: make(map[string]model.Material),
		orders:    make(map[string]model.Order),
		codes:     make(map[string]model.ReferralCode),
		userCodes: make(map[string]string),
		referrals: make(map[string]model.Referral),
		referred:  make(map[string]string),
	}
}

func (s *memStore) MaterialGetActive(_ context.Context) ([]model.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var materials []model.Material
	for _, m := range s.materials {
		if m.Active {
			materials = append(materials, m)
		}
	}
	sort.Slice(materials, func(i, j int) bool {
		if materials[i].Category != materials[j].Category {
			return materials[i].Category < materials[j].Category
		}
		return materials[i].Name < materials[j].Name
	})
	return materials, nil
}

func (s *memStore) MaterialPut(_ context.Context, material model.Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.materials[material.ID] = material
	return nil
}

func (s *memStore) OrderNextSeq(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	return s.seq, nil
}

func (s *memStore) OrderPost(_ context.Context, order model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.Number]; ok {
		return ErrAlreadyExists
	}
	s.orders[order.Number] = cloneOrder(order)
	return nil
}

func (s *memStore) OrderGet(_ context.Context, number string) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[number]
	if !ok {
		return model.Order{}, ErrNoRows
	}
	return cloneOrder(order), nil
}

func (s *memStore) OrderGetByCustomer(_ context.Context, userID string) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []model.Order
	for _, order := range s.orders {
		if order.UserID == userID {
			orders = append(orders, cloneOrder(order))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt) ||
			orders[i].CreatedAt.Equal(orders[j].CreatedAt) && orders[i].Number > orders[j].Number
	})
	return orders, nil
}

func (s *memStore) OrderTransition(_ context.Context, number string, from, to model.OrderStatus, at time.Time) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[number]
	if !ok {
		return model.Order{}, ErrNoRows
	}
	if order.Status != from {
		return cloneOrder(order), ErrStatusConflict
	}
	order.Status = to
	order.UpdatedAt = at
	s.orders[number] = order
	return cloneOrder(order), nil
}

func (s *memStore) OrderCompletedQuantity(_ context.Context, userID string, unit string, since time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := decimal.Zero
	for _, order := range s.orders {
		if order.UserID == userID && order.Status == model.OrderStatusCompleted && !order.CreatedAt.Before(since) {
			sum = sum.Add(order.Quantity(unit))
		}
	}
	return sum, nil
}

func (s *memStore) ReferralCodePost(_ context.Context, code model.ReferralCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[code.Code]; ok {
		return ErrAlreadyExists
	}
	if _, ok := s.userCodes[code.UserID]; ok {
		return ErrAlreadyExists
	}
	s.codes[code.Code] = code
	s.userCodes[code.UserID] = code.Code
	return nil
}

func (s *memStore) ReferralCodeGet(_ context.Context, code string) (model.ReferralCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rc, ok := s.codes[code]
	if !ok {
		return model.ReferralCode{}, ErrNoRows
	}
	return rc, nil
}

func (s *memStore) ReferralCodeGetByUser(_ context.Context, userID string) (model.ReferralCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.userCodes[userID]
	if !ok {
		return model.ReferralCode{}, ErrNoRows
	}
	return s.codes[code], nil
}

func (s *memStore) ReferralCodeDeactivate(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.userCodes[userID]
	if !ok {
		return ErrNoRows
	}
	rc := s.codes[code]
	rc.Active = false
	s.codes[code] = rc
	return nil
}

func (s *memStore) ReferralPost(_ context.Context, referral model.Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.referred[referral.ReferredUserID]; ok {
		return ErrAlreadyExists
	}
	if _, ok := s.referrals[referral.ID]; ok {
		return ErrAlreadyExists
	}
	s.referrals[referral.ID] = referral
	s.referred[referral.ReferredUserID] = referral.ID
	return nil
}

func (s *memStore) ReferralGetByReferred(_ context.Context, userID string) (model.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.referred[userID]
	if !ok {
		return model.Referral{}, ErrNoRows
	}
	return s.referrals[id], nil
}

func (s *memStore) ReferralGetByReferrer(_ context.Context, userID string) ([]model.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var referrals []model.Referral
	for _, referral := range s.referrals {
		if referral.ReferrerUserID != nil && *referral.ReferrerUserID == userID {
			referrals = append(referrals, referral)
		}
	}
	sort.Slice(referrals, func(i, j int) bool {
		return referrals[i].CreatedAt.Before(referrals[j].CreatedAt)
	})
	return referrals, nil
}

// ReferralComplete переводит pending -> completed только если статус всё ещё pending
func (s *memStore) ReferralComplete(_ context.Context, id string, reward decimal.Decimal, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	referral, ok := s.referrals[id]
	if !ok {
		return false, ErrNoRows
	}
	if referral.Status != model.ReferralStatusPending {
		return false, nil
	}
	referral.Status = model.ReferralStatusCompleted
	referral.RewardAmount = &reward
	referral.CompletedAt = &at
	s.referrals[id] = referral
	return true, nil
}

func (s *memStore) Close() error {
	return nil
}

func cloneOrder(order model.Order) model.Order {
	order.Items = append([]model.OrderLineItem(nil), order.Items...)
	return order
}
