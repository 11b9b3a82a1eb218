package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lucasmartinez/tienda-backend/pkg/db/models"
	"github.com/lucasmartinez/tienda-backend/pkg/enums"
)

// OrderDTO is the API-facing shape of an order.
type OrderDTO struct {
	ID             uint64            `json:"id"`
	Status         enums.OrderStatus `json:"status"`
	Name           string            `json:"name"`
	Email          string            `json:"email"`
	ShipmentCost   decimal.Decimal   `json:"shipment_cost"`
	DiscountCoupon decimal.Decimal   `json:"discount_coupon"`
	Total          decimal.Decimal   `json:"total"`
	ExpireAt       *time.Time        `json:"expire_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	Items          []ItemDTO         `json:"items"`
	Shipment       *ShipmentDTO      `json:"shipment,omitempty"`
	InvoiceNumber  *string           `json:"invoice_number,omitempty"`
}

// ItemDTO is one frozen order line.
type ItemDTO struct {
	ProductID     uint64          `json:"product_id"`
	ProductName   string          `json:"product_name,omitempty"`
	Quantity      int             `json:"quantity"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	DiscountPct   int             `json:"discount_pct"`
	FinalPrice    decimal.Decimal `json:"final_price"`
	Subtotal      decimal.Decimal `json:"subtotal"`
}

// ShipmentDTO is the delivery snapshot attached to an order.
type ShipmentDTO struct {
	MethodName string `json:"method_name,omitempty"`
	Address    string `json:"address,omitempty"`
	Province   string `json:"province,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Detail     string `json:"detail,omitempty"`
	NamePickup string `json:"name_pickup,omitempty"`
	DNIPickup  string `json:"dni_pickup,omitempty"`
}

func NewOrderDTO(order *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:             order.ID,
		Status:         order.Status,
		Name:           order.Name,
		Email:          order.Email,
		ShipmentCost:   order.ShipmentCost,
		DiscountCoupon: order.DiscountCoupon,
		Total:          order.Total,
		ExpireAt:       order.ExpireAt,
		CreatedAt:      order.CreatedAt,
		Items:          make([]ItemDTO, len(order.Items)),
	}
	for i, item := range order.Items {
		dto.Items[i] = ItemDTO{
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			OriginalPrice: item.OriginalPrice,
			DiscountPct:   item.DiscountPct,
			FinalPrice:    item.FinalPrice,
			Subtotal:      item.Subtotal(),
		}
		if item.Product != nil {
			dto.Items[i].ProductName = item.Product.Name
		}
	}
	if order.Shipment != nil {
		dto.Shipment = &ShipmentDTO{
			Address:    order.Shipment.Address,
			Province:   order.Shipment.Province,
			City:       order.Shipment.City,
			PostalCode: order.Shipment.PostalCode,
			Detail:     order.Shipment.Detail,
			NamePickup: order.Shipment.NamePickup,
			DNIPickup:  order.Shipment.DNIPickup,
		}
		if order.Shipment.Method != nil {
			dto.Shipment.MethodName = order.Shipment.Method.Name
		}
	}
	if order.Invoice != nil {
		dto.InvoiceNumber = order.Invoice.InvoiceNumber
	}
	return dto
}
