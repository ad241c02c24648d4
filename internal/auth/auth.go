package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/iurnickita/scrapmart/internal/token"
	"github.com/iurnickita/scrapmart/internal/token/config"
)

type Auth interface {
	Middleware(h http.HandlerFunc) http.HandlerFunc
	Public(h http.HandlerFunc) http.HandlerFunc
}

const (
	HeaderUserCodeKey = "X-Scrapmart-User"
	HeaderRoleKey     = "X-Scrapmart-Role"
	cookieUserToken   = "scrapmartUserToken"
)

var errNoToken = errors.New("no token")

type auth struct {
	cfg config.Config
}

func NewAuth(cfg config.Config) Auth {
	return &auth{cfg: cfg}
}

func (a *auth) Middleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// получение id пользователя
		claims, err := a.getClaims(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		// записываем, перетирая присланные клиентом заголовки
		r.Header.Set(HeaderUserCodeKey, claims.UserCode)
		r.Header.Set(HeaderRoleKey, claims.Role)

		// передаём управление хендлеру
		h.ServeHTTP(w, r)
	}
}

// Public - маршрут без аутентификации; заголовки идентичности клиенту не доверяются
func (a *auth) Public(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(HeaderUserCodeKey)
		r.Header.Del(HeaderRoleKey)
		h.ServeHTTP(w, r)
	}
}

func (a *auth) getClaims(r *http.Request) (token.Claims, error) {
	// заголовок Authorization, затем куки пользователя
	var tokenString string
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		tokenString = strings.TrimSpace(bearer)
	} else if tokenCookie, err := r.Cookie(cookieUserToken); err == nil {
		tokenString = tokenCookie.Value
	}
	if tokenString == "" {
		return token.Claims{}, errNoToken
	}
	return token.GetClaims(a.cfg, tokenString)
}
