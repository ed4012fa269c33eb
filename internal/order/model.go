package order

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/gofrs/uuid"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

func (ps PaymentStatus) String() string {
	return string(ps)
}

type DeliveryStatus string

const (
	DeliveryProcessing     DeliveryStatus = "processing"
	DeliveryShipped        DeliveryStatus = "shipped"
	DeliveryOutForDelivery DeliveryStatus = "out-for-delivery"
	DeliveryDelivered      DeliveryStatus = "delivered"
)

func (ds DeliveryStatus) String() string {
	return string(ds)
}

var deliveryRank = map[DeliveryStatus]int{
	DeliveryProcessing:     0,
	DeliveryShipped:        1,
	DeliveryOutForDelivery: 2,
	DeliveryDelivered:      3,
}

// Rank orders delivery statuses by progression. Unknown statuses rank
// below every valid one.
func (ds DeliveryStatus) Rank() int {
	if r, ok := deliveryRank[ds]; ok {
		return r
	}
	return -1
}

// DeliveryStatusForAge maps the time elapsed since payment verification
// to a delivery status. Pure and monotonic: a larger age never yields an
// earlier status.
func DeliveryStatusForAge(age time.Duration) DeliveryStatus {
	switch {
	case age < 24*time.Hour:
		return DeliveryProcessing
	case age < 48*time.Hour:
		return DeliveryShipped
	case age < 72*time.Hour:
		return DeliveryOutForDelivery
	default:
		return DeliveryDelivered
	}
}

// NewOrderRef builds the human-readable order identifier, e.g.
// ORD-493021-7154. Uniqueness is enforced by the database; the random
// suffix only keeps collisions rare within the same millisecond.
func NewOrderRef(now time.Time) string {
	millis := fmt.Sprintf("%d", now.UnixMilli())
	if len(millis) > 6 {
		millis = millis[len(millis)-6:]
	}
	return fmt.Sprintf("ORD-%s-%d", millis, rand.Intn(9000)+1000)
}

type ShippingAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type OrderNote struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"timestamp"`
}

// OrderItem is a line item with the price and owning admin snapshotted
// at order-creation time.
type OrderItem struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Price     float64   `json:"price"`
	CreatedBy uuid.UUID `json:"created_by"`
}

type Order struct {
	ID                uuid.UUID       `json:"id"`
	OrderRef          string          `json:"order_ref"`
	UserID            uuid.UUID       `json:"user_id"`
	Items             []OrderItem     `json:"items"`
	TotalAmount       float64         `json:"total_amount"`
	GatewayOrderID    string          `json:"gateway_order_id"`
	GatewayPaymentID  string          `json:"gateway_payment_id,omitempty"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	DeliveryStatus    *DeliveryStatus `json:"delivery_status"`
	EstimatedDelivery time.Time       `json:"estimated_delivery"`
	ShippingAddress   ShippingAddress `json:"shipping_address"`
	PaymentVerifiedAt *time.Time      `json:"payment_verified_at,omitempty"`
	Notes             []OrderNote     `json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// PaymentAnchor is the reference instant for delivery-status time math:
// the moment payment was verified, falling back to creation time.
func (o *Order) PaymentAnchor() time.Time {
	if o.PaymentVerifiedAt != nil {
		return *o.PaymentVerifiedAt
	}
	return o.CreatedAt
}
