package storefront_api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/craftline/storefront/internal/integrations/shopapi"
	"github.com/craftline/storefront/internal/services/cart"
	"github.com/craftline/storefront/internal/services/checkout"
	"github.com/craftline/storefront/internal/services/orders"
	"github.com/craftline/storefront/internal/services/session"
	"github.com/craftline/storefront/internal/storage/pgcheckout"
)

const sidCookie = "sf_sid"

// StorefrontAPI — REST-поверхность гейтвея для браузерного клиента.
type StorefrontAPI struct {
	sessions *session.Manager
	carts    *cart.Service
	checkout *checkout.Service
	orders   *orders.Service
}

func New(sessions *session.Manager, carts *cart.Service, co *checkout.Service, ord *orders.Service) *StorefrontAPI {
	return &StorefrontAPI{sessions: sessions, carts: carts, checkout: co, orders: ord}
}

func (a *StorefrontAPI) Routes(r chi.Router) {
	r.Post("/auth/login", a.handleLogin)
	r.Post("/auth/logout", a.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(a.requireSession)

		r.Get("/auth/me", a.handleMe)

		r.Get("/cart", a.handleGetCart)
		r.Post("/cart/refresh", a.handleRefreshCart)
		r.Put("/cart/items/{productID}", a.handleUpdateCartItem)
		r.Delete("/cart/items/{productID}", a.handleRemoveCartItem)

		r.Get("/checkout/pending", a.handlePendingCheckout)
		r.Post("/checkout", a.handleBeginCheckout)
		r.Get("/checkout/return", a.handleCheckoutReturn)

		r.Get("/orders/{orderID}", a.handleGetOrder)
		r.Post("/orders/{orderID}/refresh", a.handleRefreshOrder)
	})
}

type ctxKey int

const sessionKey ctxKey = 0

func (a *StorefrontAPI) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := a.sessions.Current(r.Context(), sidFromRequest(r))
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				respondError(w, http.StatusUnauthorized, "not logged in")
				return
			}
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, s)))
	})
}

func sessionFromCtx(ctx context.Context) session.Session {
	s, _ := ctx.Value(sessionKey).(session.Session)
	return s
}

func sidFromRequest(r *http.Request) string {
	if c, err := r.Cookie(sidCookie); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *StorefrontAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	sid, user, err := a.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sidCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]any{"sid": sid, "user": user})
}

func (a *StorefrontAPI) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Logout(r.Context(), sidFromRequest(r)); err != nil {
		respondServiceError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: sidCookie, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func (a *StorefrontAPI) handleMe(w http.ResponseWriter, r *http.Request) {
	s := sessionFromCtx(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{"user": s.User})
}

func (a *StorefrontAPI) handleGetCart(w http.ResponseWriter, r *http.Request) {
	s := sessionFromCtx(r.Context())
	v, err := a.carts.Get(r.Context(), s.User.ID, s.Token)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	a.respondCart(w, s, v)
}

func (a *StorefrontAPI) handleRefreshCart(w http.ResponseWriter, r *http.Request) {
	s := sessionFromCtx(r.Context())
	v, err := a.carts.Refresh(r.Context(), s.User.ID, s.Token)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	a.respondCart(w, s, v)
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (a *StorefrontAPI) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	s := sessionFromCtx(r.Context())
	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	v, err := a.carts.UpdateQuantity(r.Context(), s.User.ID, s.Token, chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	a.respondCart(w, s, v)
}

func (a *StorefrontAPI) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	s := sessionFromCtx(r.Context())
	v, err := a.carts.Remove(r.Context(), s.User.ID, s.Token, chi.URLParam(r, "productID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	a.respondCart(w, s, v)
}

type cartResponse struct {
	cart.View
	// Строки, по которым мутация ещё в полёте: UI блокирует их поэлементно.
	Updating []string `json:"updating"`
}

func (a *StorefrontAPI) respondCart(w http.ResponseWriter, s session.Session, v cart.View) {
	respondJSON(w, http.StatusOK, cartResponse{View: v, Updating: a.carts.UpdatingProducts(s.User.ID)})
}

func (a *StorefrontAPI) handlePendingCheckout(w http.ResponseWriter, r *http.Request) {
	s := sessionFromCtx(r.Context())
	h, err := a.checkout.Pending(r.Context(), s.User.ID)
	if err != nil {
		if errors.Is(err, pgcheckout.ErrNoHandoff) {
			respondError(w, http.StatusNotFound, "no pending checkout")
			return
		}
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"shippingAddress": h.ShippingAddress,
		"pincode":         h.Pincode,
	})
}

type beginCheckoutRequest struct {
	ShippingAddress string `json:"shippingAddress"`
	Pincode         string `json:"pincode"`
}

func (a *StorefrontAPI) handleBeginCheckout(w http.ResponseWriter, r *http.Request) {
	s := sessionFromCtx(r.Context())
	var req beginCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	url, err := a.checkout.Begin(r.Context(), s.User, s.Token, req.ShippingAddress, req.Pincode)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"url": url})
}

func (a *StorefrontAPI) handleCheckoutReturn(w http.ResponseWriter, r *http.Request) {
	s := sessionFromCtx(r.Context())
	q := r.URL.Query()
	canceled := q.Get("canceled") == "true"
	out, err := a.checkout.CompleteReturn(r.Context(), s.User.ID, s.Token, q.Get("session_id"), canceled)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	body := map[string]any{"state": out.State}
	if out.OrderID != "" {
		body["orderId"] = out.OrderID
	}
	if out.Order != nil {
		body["order"] = out.Order
	}
	if out.Message != "" {
		body["message"] = out.Message
	}
	respondJSON(w, http.StatusOK, body)
}

func (a *StorefrontAPI) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	s := sessionFromCtx(r.Context())
	v, err := a.orders.ViewOrder(r.Context(), s.Token, chi.URLParam(r, "orderID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (a *StorefrontAPI) handleRefreshOrder(w http.ResponseWriter, r *http.Request) {
	if err := a.orders.RefreshOrder(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func respondJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, errorResponse{Error: msg})
}

// respondServiceError переводит ошибки сервисов в HTTP-ответ.
// Текст ошибки бэкенда уходит клиенту дословно.
func respondServiceError(w http.ResponseWriter, err error) {
	var apiErr *shopapi.APIError
	switch {
	case errors.As(err, &apiErr):
		code := apiErr.StatusCode
		if code < 400 || code > 599 {
			code = http.StatusBadGateway
		}
		respondError(w, code, apiErr.Message)
	case errors.Is(err, shopapi.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, session.ErrNoSession):
		respondError(w, http.StatusUnauthorized, "not logged in")
	default:
		respondError(w, http.StatusBadRequest, err.Error())
	}
}
