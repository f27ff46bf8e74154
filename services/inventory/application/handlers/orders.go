package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/farmstand/pkg/errhttp"
	"github.com/ghuser/farmstand/pkg/httpx"
	pkgvalidator "github.com/ghuser/farmstand/pkg/validator"
	appsvcs "github.com/ghuser/farmstand/services/inventory/application/services"
)

// OrderLineRequest is one requested order line.
type OrderLineRequest struct {
	ProductID string `json:"product_id" validate:"required,max=128" example:"123e4567-e89b-12d3-a456-426614174000"`
	Quantity  int    `json:"quantity"   validate:"required,gte=1,lte=10000" example:"2"`
} // @name OrderLineRequest

// CreateOrderRequest is the request body for POST /orders.
type CreateOrderRequest struct {
	Items []OrderLineRequest `json:"items" validate:"required,min=1,dive"`
} // @name CreateOrderRequest

// UpdateOrderStatusRequest is the request body for PUT /orders/{orderID}/status.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending processing fulfilled cancelled" example:"fulfilled"`
} // @name UpdateOrderStatusRequest

// OrderHandler exposes the order paths that move stock.
type OrderHandler struct {
	svc *appsvcs.Services
}

// NewOrderHandler returns an OrderHandler backed by the given services.
func NewOrderHandler(svc *appsvcs.Services) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// Create stores a pending order for the caller.
//
//	@Summary	Create order
//	@Tags		orders
//	@Security	SessionCookie
//	@Accept		json
//	@Produce	json
//	@Param		request	body		CreateOrderRequest	true	"Order lines"
//	@Success	201		{object}	OrderResponse
//	@Failure	401		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Failure	422		{object}	ErrorResponse
//	@Router		/orders [post]
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	req, ok := pkgvalidator.ValidateRequest[CreateOrderRequest](w, r)
	if !ok {
		return
	}

	lines := make([]appsvcs.OrderLineInput, 0, len(req.Items))
	for _, l := range req.Items {
		lines = append(lines, appsvcs.OrderLineInput{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	order, err := h.svc.Fulfillment.CreateOrder(r.Context(), userID, lines)
	if err != nil {
		errhttp.WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOrderResponse(order))
}

// Get returns an order.
//
//	@Summary	Get order
//	@Tags		orders
//	@Produce	json
//	@Param		orderID	path		string	true	"Order ID"
//	@Success	200		{object}	OrderResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/orders/{orderID} [get]
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.Fulfillment.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		errhttp.WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

// UpdateStatus moves an order to a new status and applies its stock effect.
//
//	@Summary		Update order status
//	@Description	Fulfilling draws stock down, cancelling restores it. Repeating the current status is a no-op.
//	@Tags			orders
//	@Accept			json
//	@Produce		json
//	@Param			orderID	path		string						true	"Order ID"
//	@Param			request	body		UpdateOrderStatusRequest	true	"New status"
//	@Success		200		{object}	OrderResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Router			/orders/{orderID}/status [put]
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := pkgvalidator.ValidateRequest[UpdateOrderStatusRequest](w, r)
	if !ok {
		return
	}
	order, err := h.svc.Fulfillment.TransitionStatus(r.Context(), chi.URLParam(r, "orderID"), req.Status)
	if err != nil {
		errhttp.WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}
