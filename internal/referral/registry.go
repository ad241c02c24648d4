package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iurnickita/scrapmart/internal/model"
	"github.com/iurnickita/scrapmart/internal/store"
)

var (
	ErrInvalidCode       = errors.New("invalid referral code")
	ErrDuplicateReferral = errors.New("user has already been referred")
	ErrSelfReferral      = errors.New("self referral is not allowed")
	ErrExistingCustomer  = errors.New("referral applies to new customers only")
	ErrNoUser            = errors.New("user id is required")
)

const (
	DefaultHouseCode = "HARSH21"

	codeLength   = 8
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	issueRetries = 5
)

// Normalize приводит код к виду, в котором он хранится
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type Registry struct {
	store     store.Store
	houseCode string
	now       func() time.Time
	generate  func() string
}

func NewRegistry(store store.Store, houseCode string) *Registry {
	if houseCode == "" {
		houseCode = DefaultHouseCode
	}
	return &Registry{
		store:     store,
		houseCode: Normalize(houseCode),
		now:       time.Now,
		generate:  generateCode,
	}
}

// Issue выдаёт пользователю код. Повторный вызов возвращает уже выданный код.
func (r *Registry) Issue(ctx context.Context, userID string) (model.ReferralCode, error) {
	if userID == "" {
		return model.ReferralCode{}, ErrNoUser
	}
	existing, err := r.store.ReferralCodeGetByUser(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNoRows) {
		return model.ReferralCode{}, err
	}

	for attempt := 0; attempt < issueRetries; attempt++ {
		code := Normalize(r.generate())
		if code == r.houseCode {
			continue
		}
		rc := model.ReferralCode{
			Code:      code,
			UserID:    userID,
			Active:    true,
			CreatedAt: r.now(),
		}
		err = r.store.ReferralCodePost(ctx, rc)
		if err == nil {
			return rc, nil
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return model.ReferralCode{}, err
		}
		// Конфликт: либо код занят, либо параллельный вызов уже выдал код этому пользователю
		existing, getErr := r.store.ReferralCodeGetByUser(ctx, userID)
		if getErr == nil {
			return existing, nil
		}
		if !errors.Is(getErr, store.ErrNoRows) {
			return model.ReferralCode{}, getErr
		}
	}
	return model.ReferralCode{}, fmt.Errorf("could not allocate a unique referral code for %s", userID)
}

// Validate определяет владельца кода. Кодовое слово House не требует обращения к хранилищу.
func (r *Registry) Validate(ctx context.Context, code string) (model.Resolution, error) {
	normalized := Normalize(code)
	if normalized == "" {
		return model.Resolution{Kind: model.ResolutionInvalid}, nil
	}
	if normalized == r.houseCode {
		return model.Resolution{Kind: model.ResolutionHouse, Code: normalized}, nil
	}

	rc, err := r.store.ReferralCodeGet(ctx, normalized)
	if errors.Is(err, store.ErrNoRows) {
		return model.Resolution{Kind: model.ResolutionInvalid, Code: normalized}, nil
	}
	if err != nil {
		return model.Resolution{}, err
	}
	if !rc.Active {
		return model.Resolution{Kind: model.ResolutionInvalid, Code: normalized}, nil
	}
	return model.Resolution{Kind: model.ResolutionOwner, Code: normalized, OwnerUserID: rc.UserID}, nil
}

// Deactivate - мягкое отключение кода, сам код повторно не выдаётся
func (r *Registry) Deactivate(ctx context.Context, userID string) error {
	return r.store.ReferralCodeDeactivate(ctx, userID)
}

func generateCode() string {
	id := uuid.New()
	buf := make([]byte, codeLength)
	for i := range buf {
		buf[i] = codeAlphabet[int(id[i])%len(codeAlphabet)]
	}
	return string(buf)
}
