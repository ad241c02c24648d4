package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/iurnickita/scrapmart/internal/auth"
	"github.com/iurnickita/scrapmart/internal/gzip"
	"github.com/iurnickita/scrapmart/internal/handler/config"
	"github.com/iurnickita/scrapmart/internal/logger"
	"github.com/iurnickita/scrapmart/internal/model"
	"github.com/iurnickita/scrapmart/internal/orderstate"
	"github.com/iurnickita/scrapmart/internal/referral"
	"github.com/iurnickita/scrapmart/internal/service"
	"github.com/iurnickita/scrapmart/internal/store"
	"github.com/iurnickita/scrapmart/internal/validator"
)

// Serve обслуживает HTTP API до отмены ctx, затем корректно останавливает сервер
func Serve(ctx context.Context, cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) error {
	h := newHandler(cfg, auth, service, zaplog)
	router := h.newRouter()

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		zaplog.Info("http server started", zap.String("addr", cfg.ServerAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

type handler struct {
	cfg     config.Config
	auth    auth.Auth
	service service.Service
	zaplog  *zap.Logger
}

func newHandler(cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) *handler {
	return &handler{
		cfg:     cfg,
		auth:    auth,
		service: service,
		zaplog:  zaplog,
	}
}

func (h *handler) newRouter() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/materials", h.public(h.GetMaterials))
	mux.HandleFunc("POST /api/orders", h.private(h.PostOrder))
	mux.HandleFunc("GET /api/orders", h.private(h.GetOrders))
	mux.HandleFunc("GET /api/orders/{number}", h.private(h.GetOrder))
	mux.HandleFunc("POST /api/orders/{number}/status", h.private(h.PostOrderStatus))
	mux.HandleFunc("POST /api/orders/{number}/referral", h.private(h.PostOrderReferral))
	mux.HandleFunc("POST /api/referrals/code", h.private(h.PostReferralCode))
	mux.HandleFunc("GET /api/referrals/code/{code}", h.public(h.GetReferralCode))
	mux.HandleFunc("DELETE /api/referrals/code/{code}", h.private(h.DeleteReferralCode))
	mux.HandleFunc("POST /api/referrals", h.private(h.PostReferral))
	mux.HandleFunc("GET /api/referrals", h.private(h.GetReferrals))
	mux.HandleFunc("GET /api/referrals/summary", h.private(h.GetReferralSummary))
	mux.HandleFunc("GET /api/referrals/share.png", h.private(h.GetReferralShare))
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func (h *handler) private(f http.HandlerFunc) http.HandlerFunc {
	return gzip.GzipMiddleware(logger.RequestLogMdlw(h.auth.Middleware(f), h.zaplog))
}

func (h *handler) public(f http.HandlerFunc) http.HandlerFunc {
	return gzip.GzipMiddleware(logger.RequestLogMdlw(h.auth.Public(f), h.zaplog))
}

func caller(r *http.Request) model.Caller {
	return model.Caller{
		UserID: r.Header.Get(auth.HeaderUserCodeKey),
		Role:   r.Header.Get(auth.HeaderRoleKey),
	}
}

func (h *handler) GetMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := h.service.Materials(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, materials)
}

func (h *handler) PostOrder(w http.ResponseWriter, r *http.Request) {
	var req model.OrderRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	req.UserID = caller(r).UserID

	order, err := h.service.CreateOrder(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, order)
}

func (h *handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), caller(r).UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	// номер с неверной контрольной цифрой не может существовать
	if !service.ValidOrderNumber(number) {
		http.Error(w, service.ErrNotFound.Error(), http.StatusNotFound)
		return
	}

	order, err := h.service.GetOrder(r.Context(), caller(r), number)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

type PostOrderStatusJSONRequest struct {
	Status string `json:"status"`
}

func (h *handler) PostOrderStatus(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	if !service.ValidOrderNumber(number) {
		http.Error(w, service.ErrNotFound.Error(), http.StatusNotFound)
		return
	}

	var req PostOrderStatusJSONRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	status, ok := model.ParseOrderStatus(req.Status)
	if !ok {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}

	order, err := h.service.TransitionOrder(r.Context(), caller(r), number, status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

type PostOrderReferralJSONResponse struct {
	Order   string `json:"order"`
	Outcome string `json:"outcome"`
}

func (h *handler) PostOrderReferral(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	if !service.ValidOrderNumber(number) {
		http.Error(w, service.ErrNotFound.Error(), http.StatusNotFound)
		return
	}

	outcome, err := h.service.ReevaluateReferral(r.Context(), caller(r), number)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, PostOrderReferralJSONResponse{Order: number, Outcome: string(outcome)})
}

func (h *handler) PostReferralCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.service.IssueReferralCode(r.Context(), caller(r).UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, code)
}

type GetReferralCodeJSONResponse struct {
	Code  string `json:"code"`
	Kind  string `json:"kind"`
	Valid bool   `json:"valid"`
}

// GetReferralCode - публичная проверка кода; владелец кода не раскрывается
func (h *handler) GetReferralCode(w http.ResponseWriter, r *http.Request) {
	resolution, err := h.service.ValidateReferralCode(r.Context(), r.PathValue("code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, GetReferralCodeJSONResponse{
		Code:  resolution.Code,
		Kind:  string(resolution.Kind),
		Valid: resolution.Kind != model.ResolutionInvalid,
	})
}

// DeleteReferralCode - отключение кода администратором
func (h *handler) DeleteReferralCode(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeactivateReferralCode(r.Context(), caller(r), r.PathValue("code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type PostReferralJSONRequest struct {
	Code string `json:"code"`
}

func (h *handler) PostReferral(w http.ResponseWriter, r *http.Request) {
	var req PostReferralJSONRequest
	if !h.readJSON(w, r, &req) {
		return
	}

	recorded, err := h.service.RecordReferral(r.Context(), caller(r).UserID, req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, recorded)
}

func (h *handler) GetReferralSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.ReferralSummary(r.Context(), caller(r).UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// приглашённый пользователь в ответе не раскрывается
type GetReferralsJSONResponse struct {
	Code         string               `json:"code"`
	Status       model.ReferralStatus `json:"status"`
	RewardAmount *decimal.Decimal     `json:"reward_amount,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
}

func (h *handler) GetReferrals(w http.ResponseWriter, r *http.Request) {
	referrals, err := h.service.ReferralHistory(r.Context(), caller(r).UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(referrals) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	resp := make([]GetReferralsJSONResponse, 0, len(referrals))
	for _, item := range referrals {
		resp = append(resp, GetReferralsJSONResponse{
			Code:         item.Code,
			Status:       item.Status,
			RewardAmount: item.RewardAmount,
			CreatedAt:    item.CreatedAt,
			CompletedAt:  item.CompletedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handler) GetReferralShare(w http.ResponseWriter, r *http.Request) {
	link, err := h.service.ReferralShareURL(r.Context(), caller(r).UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	png, err := qrcode.Encode(link, qrcode.Medium, h.cfg.QRSize)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Share-Url", link)
	w.Write(png)
}

func (h *handler) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err = json.Unmarshal(buf.Bytes(), v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(responseJSON)
}

// ответ на недопустимый переход: куда можно перейти из текущего статуса
type TransitionErrorJSONResponse struct {
	Error    string              `json:"error"`
	From     model.OrderStatus   `json:"from"`
	To       model.OrderStatus   `json:"to"`
	Allowed  []model.OrderStatus `json:"allowed"`
	Terminal bool                `json:"terminal"`
}

// writeError переводит ошибки домена в коды HTTP
func (h *handler) writeError(w http.ResponseWriter, err error) {
	var (
		verr *validator.ValidationError
		terr *orderstate.InvalidTransitionError
	)
	switch {
	case errors.As(err, &verr):
		h.writeJSON(w, http.StatusUnprocessableEntity, verr)
	case errors.As(err, &terr):
		h.writeJSON(w, http.StatusConflict, TransitionErrorJSONResponse{
			Error:    terr.Error(),
			From:     terr.From,
			To:       terr.To,
			Allowed:  orderstate.Allowed(terr.From),
			Terminal: orderstate.IsTerminal(terr.From),
		})
	case errors.Is(err, orderstate.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, referral.ErrDuplicateReferral):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, referral.ErrSelfReferral), errors.Is(err, referral.ErrInvalidCode),
		errors.Is(err, referral.ErrExistingCustomer):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, service.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrInsufficientData), errors.Is(err, referral.ErrNoUser):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrTransient):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.zaplog.Error("request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
