package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/boibabu/api/internal/platform/auth"
	"github.com/boibabu/api/internal/platform/httpx"
	"github.com/boibabu/api/internal/services"
)

type updateStatusRequest struct {
	Status         string `json:"status"`
	Note           string `json:"note"`
	TrackingNumber string `json:"tracking_number"`
}

type correctShippingRequest struct {
	ShippingCost *int64 `json:"shipping_cost"`
	Note         string `json:"note"`
}

type overrideCommissionRequest struct {
	Rate *float64 `json:"rate"`
}

type markPaidRequest struct {
	Notes string `json:"notes"`
}

type refundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type commissionSettingRequest struct {
	Rate *float64 `json:"rate"`
}

type commissionSettingResponse struct {
	Rate      float64 `json:"rate"`
	UpdatedBy string  `json:"updated_by,omitempty"`
	UpdatedAt string  `json:"updated_at,omitempty"`
}

// AdminHandlers exposes order operations, platform settings and statements to administrators.
type AdminHandlers struct {
	authn      *auth.Authenticator
	orders     services.OrderService
	settings   services.SettingsService
	statements services.StatementService
}

// AdminDeps bundles the services behind the admin routes.
type AdminDeps struct {
	Authenticator *auth.Authenticator
	Orders        services.OrderService
	Settings      services.SettingsService
	Statements    services.StatementService
}

// NewAdminHandlers constructs AdminHandlers.
func NewAdminHandlers(deps AdminDeps) *AdminHandlers {
	return &AdminHandlers{
		authn:      deps.Authenticator,
		orders:     deps.Orders,
		settings:   deps.Settings,
		statements: deps.Statements,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Patch("/orders/{orderID}/status", h.updateStatus)
	r.Patch("/orders/{orderID}/shipping", h.correctShipping)
	r.Patch("/orders/{orderID}/seller-payments/{sellerID}/commission", h.overrideCommission)
	r.Post("/orders/{orderID}/seller-payments/{sellerID}:mark-paid", h.markSellerPaid)
	r.Post("/orders/{orderID}/refunds", h.refund)
	r.Post("/orders/{orderID}:cancel", h.cancelOrder)
	r.Get("/settings/commission", h.getCommission)
	r.Put("/settings/commission", h.updateCommission)
	r.Post("/sellers/{sellerID}/statements", h.exportStatement)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	filter, ok := orderListFilter(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter.UserID = strings.TrimSpace(query.Get("user_id"))
	filter.SellerID = strings.TrimSpace(query.Get("seller_id"))

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(page))
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(identity *auth.Identity, orderID string) (services.Order, bool, error) {
		var req updateStatusRequest
		if !decodeJSONBody(w, r, &req, false) {
			return services.Order{}, false, nil
		}
		status, ok := parseOrderStatus(req.Status)
		if !ok {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
			return services.Order{}, false, nil
		}
		order, err := h.orders.UpdateStatus(r.Context(), services.UpdateOrderStatusCommand{
			OrderID:        orderID,
			Status:         status,
			ActorID:        identity.UID,
			Note:           req.Note,
			TrackingNumber: req.TrackingNumber,
		})
		return order, true, err
	})
}

func (h *AdminHandlers) correctShipping(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(identity *auth.Identity, orderID string) (services.Order, bool, error) {
		var req correctShippingRequest
		if !decodeJSONBody(w, r, &req, false) {
			return services.Order{}, false, nil
		}
		if req.ShippingCost == nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "shipping_cost is required", http.StatusBadRequest))
			return services.Order{}, false, nil
		}
		order, err := h.orders.CorrectShipping(r.Context(), services.CorrectShippingCommand{
			OrderID:      orderID,
			ShippingCost: *req.ShippingCost,
			ActorID:      identity.UID,
			Note:         req.Note,
		})
		return order, true, err
	})
}

func (h *AdminHandlers) overrideCommission(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(identity *auth.Identity, orderID string) (services.Order, bool, error) {
		sellerID, ok := pathParam(w, r, chi.URLParam(r, "sellerID"), "seller id")
		if !ok {
			return services.Order{}, false, nil
		}
		var req overrideCommissionRequest
		if !decodeJSONBody(w, r, &req, false) {
			return services.Order{}, false, nil
		}
		if req.Rate == nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "rate is required", http.StatusBadRequest))
			return services.Order{}, false, nil
		}
		order, err := h.orders.OverrideCommission(r.Context(), services.OverrideCommissionCommand{
			OrderID:  orderID,
			SellerID: sellerID,
			Rate:     *req.Rate,
			ActorID:  identity.UID,
		})
		return order, true, err
	})
}

func (h *AdminHandlers) markSellerPaid(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(identity *auth.Identity, orderID string) (services.Order, bool, error) {
		sellerID, ok := pathParam(w, r, chi.URLParam(r, "sellerID"), "seller id")
		if !ok {
			return services.Order{}, false, nil
		}
		var req markPaidRequest
		if !decodeJSONBody(w, r, &req, true) {
			return services.Order{}, false, nil
		}
		order, err := h.orders.MarkSellerPaid(r.Context(), services.MarkSellerPaidCommand{
			OrderID:  orderID,
			SellerID: sellerID,
			ActorID:  identity.UID,
			Notes:    req.Notes,
		})
		return order, true, err
	})
}

func (h *AdminHandlers) refund(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(identity *auth.Identity, orderID string) (services.Order, bool, error) {
		var req refundRequest
		if !decodeJSONBody(w, r, &req, false) {
			return services.Order{}, false, nil
		}
		order, err := h.orders.ProcessRefund(r.Context(), services.ProcessRefundCommand{
			OrderID:        orderID,
			Amount:         req.Amount,
			Reason:         req.Reason,
			ActorID:        identity.UID,
			IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyHeader)),
		})
		return order, true, err
	})
}

func (h *AdminHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(identity *auth.Identity, orderID string) (services.Order, bool, error) {
		var req cancelOrderRequest
		if !decodeJSONBody(w, r, &req, true) {
			return services.Order{}, false, nil
		}
		order, err := h.orders.CancelOrder(r.Context(), services.CancelOrderCommand{
			OrderID: orderID,
			Reason:  req.Reason,
			ActorID: identity.UID,
		})
		return order, true, err
	})
}

// mutate resolves the caller and order id, runs fn and writes the resulting order. fn returns
// handled=false when it has already written a response.
func (h *AdminHandlers) mutate(w http.ResponseWriter, r *http.Request, fn func(identity *auth.Identity, orderID string) (services.Order, bool, error)) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}
	order, handled, err := fn(identity, orderID)
	if !handled {
		return
	}
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) getCommission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	settings, err := h.settings.GetPlatformSettings(ctx)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCommissionSetting(settings))
}

func (h *AdminHandlers) updateCommission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req commissionSettingRequest
	if !decodeJSONBody(w, r, &req, false) {
		return
	}
	if req.Rate == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "rate is required", http.StatusBadRequest))
		return
	}
	settings, err := h.settings.UpdateCommissionRate(ctx, services.UpdateCommissionRateCommand{
		Rate:    *req.Rate,
		ActorID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCommissionSetting(settings))
}

func (h *AdminHandlers) exportStatement(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(r.Context(), w)
	if !ok {
		return
	}
	sellerID, ok := pathParam(w, r, chi.URLParam(r, "sellerID"), "seller id")
	if !ok {
		return
	}
	writeStatementExport(w, r, h.statements, identity, sellerID)
}

func buildCommissionSetting(settings services.PlatformSettings) commissionSettingResponse {
	return commissionSettingResponse{
		Rate:      settings.CommissionRate,
		UpdatedBy: settings.UpdatedBy,
		UpdatedAt: formatTime(settings.UpdatedAt),
	}
}
