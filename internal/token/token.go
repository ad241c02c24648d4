// Package token выпускает и разбирает JWT с идентификатором пользователя.
// Токены выдаёт внешний сервис аутентификации с тем же секретом.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/iurnickita/scrapmart/internal/model"
	"github.com/iurnickita/scrapmart/internal/token/config"
)

const (
	RoleCustomer = model.RoleCustomer
	RoleAdmin    = model.RoleAdmin
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	jwt.RegisteredClaims
	UserCode string `json:"user_code"`
	Role     string `json:"role"`
}

func BuildJWTString(cfg config.Config, userCode string, role string) (string, error) {
	if role == "" {
		role = RoleCustomer
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			Subject:   userCode,
		},
		UserCode: userCode,
		Role:     role,
	})

	tokenString, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

func GetClaims(cfg config.Config, tokenString string) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserCode == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// GetUserCode - идентификатор пользователя из токена
func GetUserCode(cfg config.Config, tokenString string) (string, error) {
	claims, err := GetClaims(cfg, tokenString)
	if err != nil {
		return "", err
	}
	return claims.UserCode, nil
}
