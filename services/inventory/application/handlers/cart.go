package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/farmstand/pkg/errhttp"
	"github.com/ghuser/farmstand/pkg/httpx"
	pkgvalidator "github.com/ghuser/farmstand/pkg/validator"
	appsvcs "github.com/ghuser/farmstand/services/inventory/application/services"
)

// AddCartItemRequest is the request body for POST /cart/items.
type AddCartItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=128" example:"123e4567-e89b-12d3-a456-426614174000"`
	Quantity  int    `json:"quantity"   validate:"required,gte=1,lte=10000" example:"2"`
} // @name AddCartItemRequest

// UpdateCartItemRequest is the request body for PUT /cart/items/{cartItemID}.
// A quantity of zero removes the line.
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"gte=0,lte=10000" example:"3"`
} // @name UpdateCartItemRequest

// CartHandler serves the caller's cart. Every route expects auth.RequireAuth
// to have placed the user id in the request context.
type CartHandler struct {
	svc *appsvcs.Services
}

// NewCartHandler returns a CartHandler backed by the given services.
func NewCartHandler(svc *appsvcs.Services) *CartHandler {
	return &CartHandler{svc: svc}
}

// Get returns the caller's cart after releasing expired reservations.
//
//	@Summary	Get cart
//	@Tags		cart
//	@Security	SessionCookie
//	@Produce	json
//	@Success	200	{object}	CartResponse
//	@Failure	401	{object}	ErrorResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/cart [get]
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	cart, err := h.svc.Reservations.GetCart(r.Context(), userID)
	if err != nil {
		errhttp.WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCartResponse(cart))
}

// Summary returns the totals of the caller's cart.
//
//	@Summary	Cart summary
//	@Tags		cart
//	@Security	SessionCookie
//	@Produce	json
//	@Success	200	{object}	CartSummaryResponse
//	@Failure	401	{object}	ErrorResponse
//	@Router		/cart/summary [get]
func (h *CartHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	_, sum, err := h.svc.Reservations.Summary(r.Context(), userID)
	if err != nil {
		errhttp.WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSummaryResponse(sum))
}

// Add reserves stock for a product and adds it to the cart.
//
//	@Summary		Reserve item
//	@Description	Moves units from stock into the cart. Adding a product already in the cart merges the lines.
//	@Tags			cart
//	@Security		SessionCookie
//	@Accept			json
//	@Produce		json
//	@Param			request	body		AddCartItemRequest	true	"Reservation"
//	@Success		200		{object}	CartResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		422		{object}	errhttp.InsufficientStockResponse
//	@Router			/cart/items [post]
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	req, ok := pkgvalidator.ValidateRequest[AddCartItemRequest](w, r)
	if !ok {
		return
	}
	cart, err := h.svc.Reservations.AddReservation(r.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		errhttp.WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCartResponse(cart))
}

// Update changes a line's quantity and restarts its reservation window.
//
//	@Summary	Update reservation
//	@Tags		cart
//	@Security	SessionCookie
//	@Accept		json
//	@Produce	json
//	@Param		cartItemID	path		string					true	"Cart line ID"
//	@Param		request		body		UpdateCartItemRequest	true	"New quantity"
//	@Success	200			{object}	CartResponse
//	@Failure	404			{object}	ErrorResponse
//	@Failure	409			{object}	ErrorResponse
//	@Failure	422			{object}	errhttp.InsufficientStockResponse
//	@Router		/cart/items/{cartItemID} [put]
func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	req, ok := pkgvalidator.ValidateRequest[UpdateCartItemRequest](w, r)
	if !ok {
		return
	}
	cart, err := h.svc.Reservations.UpdateReservationQuantity(r.Context(), userID, chi.URLParam(r, "cartItemID"), req.Quantity)
	if err != nil {
		errhttp.WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCartResponse(cart))
}

// Remove deletes a line and returns its units to stock.
//
//	@Summary	Remove reservation
//	@Tags		cart
//	@Security	SessionCookie
//	@Produce	json
//	@Param		cartItemID	path		string	true	"Cart line ID"
//	@Success	200			{object}	CartResponse
//	@Failure	404			{object}	ErrorResponse
//	@Router		/cart/items/{cartItemID} [delete]
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	cart, err := h.svc.Reservations.RemoveReservation(r.Context(), userID, chi.URLParam(r, "cartItemID"))
	if err != nil {
		errhttp.WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCartResponse(cart))
}

// Clear empties the cart and returns every reservation to stock.
//
//	@Summary	Clear cart
//	@Tags		cart
//	@Security	SessionCookie
//	@Produce	json
//	@Success	200	{object}	CartResponse
//	@Failure	401	{object}	ErrorResponse
//	@Router		/cart [delete]
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	cart, err := h.svc.Reservations.ClearCart(r.Context(), userID)
	if err != nil {
		errhttp.WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCartResponse(cart))
}
