package sessioncart

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lucasmartinez/tienda-backend/pkg/db/models"
)

// Item is one product line of the browser cart. Price and stock are
// display-time copies; the catalog row stays authoritative and order
// creation re-reads it under lock.
type Item struct {
	ProductID uint64          `json:"id"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
	Stock     int             `json:"stock"`
}

// Cart is the in-memory session cart. It is a plain value with no
// storage concerns; Store moves it in and out of redis.
type Cart struct {
	Items        map[uint64]Item `json:"items"`
	CartID       *uint64         `json:"cart_id,omitempty"`
	LastModified time.Time       `json:"last_modified"`
}

// New returns an empty cart with no durable association.
func New() *Cart {
	return &Cart{Items: map[uint64]Item{}}
}

func (c *Cart) ensure() {
	if c.Items == nil {
		c.Items = map[uint64]Item{}
	}
}

// Add puts qty more units of the product in the cart, creating the line
// with the product's current display data when absent.
func (c *Cart) Add(product *models.Product, qty int) {
	c.ensure()
	if item, ok := c.Items[product.ID]; ok {
		item.Quantity += qty
		c.Items[product.ID] = item
	} else {
		c.Items[product.ID] = Item{
			ProductID: product.ID,
			Name:      product.Name,
			Slug:      product.Slug,
			Price:     product.FinalPrice(),
			Image:     product.MainImage,
			Quantity:  qty,
			Stock:     product.Stock,
		}
	}
	c.LastModified = time.Now().UTC()
}

// Subtract removes qty units of the product. When the line would drop to
// zero it is deleted instead; the return value reports that removal so
// callers can phrase their response.
func (c *Cart) Subtract(productID uint64, qty int) (removed bool) {
	c.ensure()
	item, ok := c.Items[productID]
	if !ok {
		return false
	}
	if item.Quantity > qty {
		item.Quantity -= qty
		c.Items[productID] = item
	} else {
		delete(c.Items, productID)
		removed = true
	}
	c.LastModified = time.Now().UTC()
	return removed
}

// Delete drops the product line entirely and reports whether it existed.
func (c *Cart) Delete(productID uint64) bool {
	c.ensure()
	if _, ok := c.Items[productID]; !ok {
		return false
	}
	delete(c.Items, productID)
	c.LastModified = time.Now().UTC()
	return true
}

// Clear empties the cart but keeps the durable association.
func (c *Cart) Clear() {
	c.Items = map[uint64]Item{}
	c.LastModified = time.Now().UTC()
}

// TotalPrice sums price times quantity over every line.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// TotalItems sums the quantities over every line.
func (c *Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Quantity returns the current quantity for a product, zero when absent.
func (c *Cart) Quantity(productID uint64) int {
	if item, ok := c.Items[productID]; ok {
		return item.Quantity
	}
	return 0
}

// Summary is the payload cart endpoints return: the lines plus totals.
type Summary struct {
	Items        []Item          `json:"cart"`
	CartPrice    decimal.Decimal `json:"cart_price"`
	CartQuantity int             `json:"cart_quantity"`
}

// Serialize renders the cart for API responses, lines ordered by product id.
func (c *Cart) Serialize() Summary {
	items := make([]Item, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return Summary{
		Items:        items,
		CartPrice:    c.TotalPrice(),
		CartQuantity: c.TotalItems(),
	}
}
