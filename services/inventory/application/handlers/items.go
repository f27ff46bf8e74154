package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ghuser/farmstand/pkg/errhttp"
	"github.com/ghuser/farmstand/pkg/httpx"
	pkgvalidator "github.com/ghuser/farmstand/pkg/validator"
	appsvcs "github.com/ghuser/farmstand/services/inventory/application/services"
)

// CreateItemRequest is the request body for POST /items.
type CreateItemRequest struct {
	Name        string          `json:"name"        validate:"required,min=1,max=255" example:"Heirloom Tomatoes"`
	Price       decimal.Decimal `json:"price"       validate:"money" swaggertype:"string" example:"4.50"`
	Size        int             `json:"size"        validate:"gte=0" example:"1"`
	Quantity    int             `json:"quantity"    validate:"gte=0" example:"12"`
	Description string          `json:"description" validate:"max=2000" example:"Picked this morning"`
	Image       string          `json:"image"       validate:"omitempty,url" example:"https://cdn.example.com/tomatoes.jpg"`
} // @name CreateItemRequest

// PostItemHandler handles POST /items requests.
type PostItemHandler struct {
	svc *appsvcs.Services
}

// NewPostItemHandler returns a PostItemHandler backed by the given services.
func NewPostItemHandler(svc *appsvcs.Services) *PostItemHandler {
	return &PostItemHandler{svc: svc}
}

// Execute creates a new catalog item with its opening stock.
//
//	@Summary		Create item
//	@Description	Creates a catalog item with its opening stock
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateItemRequest	true	"Item creation request"
//	@Success		201		{object}	ItemResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Router			/items [post]
func (h *PostItemHandler) Execute(w http.ResponseWriter, r *http.Request) {
	req, ok := pkgvalidator.ValidateRequest[CreateItemRequest](w, r)
	if !ok {
		return
	}

	item, err := h.svc.Catalog.CreateItem(r.Context(), appsvcs.NewItemInput{
		Name:        req.Name,
		Price:       req.Price,
		Size:        req.Size,
		Quantity:    req.Quantity,
		Description: req.Description,
		Image:       req.Image,
	})
	if err != nil {
		errhttp.WriteError(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, toItemResponse(item))
}

// GetItemHandler handles GET /items/{itemID} requests.
type GetItemHandler struct {
	svc *appsvcs.Services
}

// NewGetItemHandler returns a GetItemHandler backed by the given services.
func NewGetItemHandler(svc *appsvcs.Services) *GetItemHandler {
	return &GetItemHandler{svc: svc}
}

// Execute returns an item and its current stock.
//
//	@Summary	Get item
//	@Tags		items
//	@Produce	json
//	@Param		itemID	path		string	true	"Item ID"
//	@Success	200		{object}	ItemResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/items/{itemID} [get]
func (h *GetItemHandler) Execute(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Catalog.GetItem(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		errhttp.WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

// DeleteItemHandler handles DELETE /items/{itemID} requests.
type DeleteItemHandler struct {
	svc *appsvcs.Services
}

// NewDeleteItemHandler returns a DeleteItemHandler backed by the given services.
func NewDeleteItemHandler(svc *appsvcs.Services) *DeleteItemHandler {
	return &DeleteItemHandler{svc: svc}
}

// Execute removes an item from the catalog.
//
//	@Summary		Delete item
//	@Description	Removes an item. Carts and orders that reference it keep working.
//	@Tags			items
//	@Param			itemID	path	string	true	"Item ID"
//	@Success		204
//	@Failure		404	{object}	ErrorResponse
//	@Router			/items/{itemID} [delete]
func (h *DeleteItemHandler) Execute(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Catalog.DeleteItem(r.Context(), chi.URLParam(r, "itemID")); err != nil {
		errhttp.WriteError(w, r, err)
		return
	}
	httpx.NoContent(w)
}
