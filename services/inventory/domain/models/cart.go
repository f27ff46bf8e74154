package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductSnapshot is the catalog data copied onto a cart line when it is
// created. Later catalog edits never change it.
type ProductSnapshot struct {
	Name  string
	Price decimal.Decimal
	Size  int
	Image string
}

// SnapshotOf captures the display fields of item.
func SnapshotOf(item *Item) ProductSnapshot {
	return ProductSnapshot{
		Name:  item.Name.String(),
		Price: item.Price,
		Size:  item.Size,
		Image: item.Image,
	}
}

// CartItem is one reservation line. Its Quantity units are held out of the
// referenced Item's stock until the line is removed or expires.
type CartItem struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductPrice decimal.Decimal `json:"product_price"`
	ProductSize  int             `json:"product_size"`
	ProductImage string          `json:"product_image,omitempty"`
	Quantity     int             `json:"quantity"`
	AddedAt      time.Time       `json:"added_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// Expired reports whether the reservation's TTL has elapsed at now.
func (ci CartItem) Expired(now time.Time) bool {
	return !now.Before(ci.ExpiresAt)
}

// Subtotal is Quantity times the snapshot price.
func (ci CartItem) Subtotal() decimal.Decimal {
	return ci.ProductPrice.Mul(decimal.NewFromInt(int64(ci.Quantity)))
}

// Cart holds one user's reservations. The document id is the user id.
type Cart struct {
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewCart returns an empty cart for userID.
func NewCart(userID string, now time.Time) *Cart {
	return &Cart{
		UserID:    userID,
		Items:     []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// FindLine returns the index of the line with id, or -1.
func (c *Cart) FindLine(id string) int {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// FindProduct returns the index of the line reserving productID, or -1.
func (c *Cart) FindProduct(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// AddReservation merges qty into the existing line for productID or appends a
// new line built from snap. Either way the line expires at now+ttl. A merged
// line keeps the snapshot it was created with.
func (c *Cart) AddReservation(productID string, snap ProductSnapshot, qty int, now time.Time, ttl time.Duration) CartItem {
	c.UpdatedAt = now
	if i := c.FindProduct(productID); i >= 0 {
		c.Items[i].Quantity += qty
		c.Items[i].ExpiresAt = now.Add(ttl)
		return c.Items[i]
	}

	line := CartItem{
		ID:           uuid.NewString(),
		ProductID:    productID,
		ProductName:  snap.Name,
		ProductPrice: snap.Price,
		ProductSize:  snap.Size,
		ProductImage: snap.Image,
		Quantity:     qty,
		AddedAt:      now,
		ExpiresAt:    now.Add(ttl),
	}
	c.Items = append(c.Items, line)
	return line
}

// SetQuantity sets the quantity of line i and restarts its TTL.
func (c *Cart) SetQuantity(i, qty int, now time.Time, ttl time.Duration) {
	c.Items[i].Quantity = qty
	c.Items[i].ExpiresAt = now.Add(ttl)
	c.UpdatedAt = now
}

// RemoveLine deletes line i, preserving the order of the others, and returns it.
func (c *Cart) RemoveLine(i int, now time.Time) CartItem {
	line := c.Items[i]
	items := make([]CartItem, 0, len(c.Items)-1)
	items = append(items, c.Items[:i]...)
	c.Items = append(items, c.Items[i+1:]...)
	c.UpdatedAt = now
	return line
}

// Convert hands up to qty units of productID's active reservation over to an
// order and returns how many it took. The units stay out of stock, so nothing
// is restored; a line that gives up all its units is dropped. Expired lines
// are left for the sweeper.
func (c *Cart) Convert(productID string, qty int, now time.Time) int {
	i := c.FindProduct(productID)
	if i < 0 || qty <= 0 || c.Items[i].Expired(now) {
		return 0
	}
	taken := min(qty, c.Items[i].Quantity)
	if taken == c.Items[i].Quantity {
		c.RemoveLine(i, now)
		return taken
	}
	c.Items[i].Quantity -= taken
	c.UpdatedAt = now
	return taken
}

// Clear empties the cart and returns the removed lines.
func (c *Cart) Clear(now time.Time) []CartItem {
	removed := c.Items
	c.Items = []CartItem{}
	c.UpdatedAt = now
	return removed
}

// Partition splits the lines into those still active at now and those expired.
// Both slices are non-nil and keep the cart order.
func (c *Cart) Partition(now time.Time) (active, expired []CartItem) {
	active = make([]CartItem, 0, len(c.Items))
	expired = make([]CartItem, 0)
	for _, line := range c.Items {
		if line.Expired(now) {
			expired = append(expired, line)
		} else {
			active = append(active, line)
		}
	}
	return active, expired
}

// Clone returns a deep copy of the cart.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = append(make([]CartItem, 0, len(c.Items)), c.Items...)
	return &cp
}
