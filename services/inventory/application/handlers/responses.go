package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ghuser/farmstand/pkg/auth"
	"github.com/ghuser/farmstand/pkg/httpx"
	"github.com/ghuser/farmstand/services/inventory/domain/models"
	domainsvcs "github.com/ghuser/farmstand/services/inventory/domain/services"
)

// ErrorResponse is returned on all error responses.
type ErrorResponse struct {
	Error string `json:"error" example:"cart item not found"`
} // @name ErrorResponse

// ItemResponse is a catalog item with its current stock.
type ItemResponse struct {
	ID          string          `json:"id"          example:"123e4567-e89b-12d3-a456-426614174000"`
	Name        string          `json:"name"        example:"Heirloom Tomatoes"`
	Price       decimal.Decimal `json:"price"       swaggertype:"string" example:"4.50"`
	Size        int             `json:"size"        example:"1"`
	Quantity    int             `json:"quantity"    example:"12"`
	Description string          `json:"description,omitempty" example:"Picked this morning"`
	Image       string          `json:"image,omitempty"       example:"https://cdn.example.com/tomatoes.jpg"`
	CreatedAt   time.Time       `json:"created_at"  example:"2024-01-15T10:30:00Z"`
	UpdatedAt   time.Time       `json:"updated_at"  example:"2024-01-15T10:30:00Z"`
} // @name ItemResponse

// CartItemResponse is one reservation line.
type CartItemResponse struct {
	ID           string          `json:"id"            example:"9b2d7c1e-0f4a-4c3b-8e5d-1a2b3c4d5e6f"`
	ProductID    string          `json:"product_id"    example:"123e4567-e89b-12d3-a456-426614174000"`
	ProductName  string          `json:"product_name"  example:"Heirloom Tomatoes"`
	ProductPrice decimal.Decimal `json:"product_price" swaggertype:"string" example:"4.50"`
	ProductSize  int             `json:"product_size"  example:"1"`
	ProductImage string          `json:"product_image,omitempty"`
	Quantity     int             `json:"quantity"      example:"2"`
	Subtotal     decimal.Decimal `json:"subtotal"      swaggertype:"string" example:"9.00"`
	AddedAt      time.Time       `json:"added_at"      example:"2024-01-15T10:30:00Z"`
	ExpiresAt    time.Time       `json:"expires_at"    example:"2024-01-16T10:30:00Z"`
} // @name CartItemResponse

// CartSummaryResponse totals a cart at its locked-in prices.
type CartSummaryResponse struct {
	TotalItems int             `json:"total_items" example:"3"`
	TotalPrice decimal.Decimal `json:"total_price" swaggertype:"string" example:"25.50"`
	LineCount  int             `json:"line_count"  example:"2"`
} // @name CartSummaryResponse

// CartResponse is the caller's cart with expired lines already released.
type CartResponse struct {
	UserID    string              `json:"user_id" example:"user-42"`
	Items     []CartItemResponse  `json:"items"`
	Summary   CartSummaryResponse `json:"summary"`
	UpdatedAt time.Time           `json:"updated_at" example:"2024-01-15T10:30:00Z"`
} // @name CartResponse

// OrderItemResponse is one ordered line.
type OrderItemResponse struct {
	ProductID    string          `json:"product_id"    example:"123e4567-e89b-12d3-a456-426614174000"`
	ProductName  string          `json:"product_name"  example:"Heirloom Tomatoes"`
	ProductPrice decimal.Decimal `json:"product_price" swaggertype:"string" example:"4.50"`
	Quantity     int             `json:"quantity"      example:"2"`
	Held         int             `json:"held"          example:"2"`
} // @name OrderItemResponse

// OrderResponse is an order and its fulfilment status.
type OrderResponse struct {
	ID        string              `json:"id"      example:"5f0c8a2e-3b1d-4e6f-9a7b-2c3d4e5f6a7b"`
	UserID    string              `json:"user_id" example:"user-42"`
	Items     []OrderItemResponse `json:"items"`
	Status    string              `json:"status"  example:"pending"`
	CreatedAt time.Time           `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt time.Time           `json:"updated_at" example:"2024-01-15T10:30:00Z"`
} // @name OrderResponse

func toItemResponse(item *models.Item) ItemResponse {
	return ItemResponse{
		ID:          item.ID,
		Name:        item.Name.String(),
		Price:       item.Price,
		Size:        item.Size,
		Quantity:    item.Quantity,
		Description: item.Description,
		Image:       item.Image,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func toSummaryResponse(sum domainsvcs.CartSummary) CartSummaryResponse {
	return CartSummaryResponse{TotalItems: sum.TotalItems, TotalPrice: sum.TotalPrice, LineCount: sum.LineCount}
}

func toCartResponse(cart *models.Cart) CartResponse {
	items := make([]CartItemResponse, 0, len(cart.Items))
	for _, line := range cart.Items {
		items = append(items, CartItemResponse{
			ID:           line.ID,
			ProductID:    line.ProductID,
			ProductName:  line.ProductName,
			ProductPrice: line.ProductPrice,
			ProductSize:  line.ProductSize,
			ProductImage: line.ProductImage,
			Quantity:     line.Quantity,
			Subtotal:     line.Subtotal(),
			AddedAt:      line.AddedAt,
			ExpiresAt:    line.ExpiresAt,
		})
	}
	return CartResponse{
		UserID:    cart.UserID,
		Items:     items,
		Summary:   toSummaryResponse(domainsvcs.Summarize(cart)),
		UpdatedAt: cart.UpdatedAt,
	}
}

func toOrderResponse(order *models.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, OrderItemResponse{
			ProductID:    line.ProductID,
			ProductName:  line.ProductName,
			ProductPrice: line.ProductPrice,
			Quantity:     line.Quantity,
			Held:         line.Held,
		})
	}
	return OrderResponse{
		ID:        order.ID,
		UserID:    order.UserID,
		Items:     items,
		Status:    string(order.Status),
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
}

// requireUser writes 401 and returns false when the request carries no user.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := auth.UserIDFromCtx(r.Context())
	if err != nil {
		httpx.JSON(w, http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
		return "", false
	}
	return userID, true
}
