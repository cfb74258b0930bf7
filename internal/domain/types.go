package domain

import (
	"strings"
	"time"
)

// PaymentStatus enumerates payment states recorded on an order.
type PaymentStatus string

const (
	// PaymentStatusUnpaid indicates no successful payment has been observed.
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	// PaymentStatusPaid indicates a completed checkout session was applied.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates the payment attempt failed.
	PaymentStatusFailed PaymentStatus = "failed"
)

// OrderStatus enumerates fulfilment lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits payment completion.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates payment succeeded and fulfilment is underway.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the supplier handed the parcel to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the parcel reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Address stores the shipping destination snapshot taken at checkout.
type Address struct {
	Name        string `firestore:"name"`
	Phone       string `firestore:"phone"`
	Line1       string `firestore:"line1"`
	Line2       string `firestore:"line2,omitempty"`
	City        string `firestore:"city"`
	State       string `firestore:"state"`
	PostalCode  string `firestore:"postalCode"`
	CountryCode string `firestore:"countryCode"`
}

// OrderItem mirrors a purchased line at the time of checkout. Unit prices are
// in the smallest currency unit.
type OrderItem struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"quantity"`
	Color     string `firestore:"color,omitempty"`
}

// OrderAmounts holds rolled-up monetary fields in the smallest currency unit.
type OrderAmounts struct {
	Subtotal int64 `firestore:"subtotal"`
	Shipping int64 `firestore:"shipping"`
	Discount int64 `firestore:"discount"`
	Total    int64 `firestore:"total"`
}

// TrackEvent stores one raw logistics waypoint as delivered by the supplier.
type TrackEvent struct {
	Status string    `firestore:"status"`
	Detail string    `firestore:"detail,omitempty"`
	Time   time.Time `firestore:"time,omitempty"`
}

// SupplierData aggregates supplier-side reconciliation state for an order.
type SupplierData struct {
	LastStatus    string       `firestore:"lastStatus,omitempty"`
	LastOrderID   string       `firestore:"lastOrderId,omitempty"`
	LastWebhookAt *time.Time   `firestore:"lastWebhookAt,omitempty"`
	TrackEvents   []TrackEvent `firestore:"trackEvents,omitempty"`
}

// NotificationFlags records which customer emails have been dispatched.
// Each flag flips to true at most once for the lifetime of the order.
type NotificationFlags struct {
	ConfirmationSent bool `firestore:"confirmationSent"`
	ShippedSent      bool `firestore:"shippedSent"`
	DeliveredSent    bool `firestore:"deliveredSent"`
}

// Order is the central reconciliation record tying the storefront sale to the
// payment provider session and the supplier purchase order.
type Order struct {
	ID                  string            `firestore:"-"`
	OrderNumber         string            `firestore:"orderNumber"`
	Items               []OrderItem       `firestore:"items"`
	Amounts             OrderAmounts      `firestore:"amounts"`
	Currency            string            `firestore:"currency"`
	Email               string            `firestore:"email"`
	CustomerName        string            `firestore:"customerName"`
	ShippingAddress     *Address          `firestore:"shippingAddress,omitempty"`
	PaymentStatus       PaymentStatus     `firestore:"paymentStatus"`
	StripeSessionID     string            `firestore:"stripeSessionId,omitempty"`
	LastStripeEventID   string            `firestore:"lastStripeEventId,omitempty"`
	Status              OrderStatus       `firestore:"status"`
	Carrier             string            `firestore:"carrier,omitempty"`
	TrackingNumber      string            `firestore:"trackingNumber,omitempty"`
	ShippedAt           *time.Time        `firestore:"shippedAt,omitempty"`
	DeliveredAt         *time.Time        `firestore:"deliveredAt,omitempty"`
	SupplierOrderID     string            `firestore:"supplierOrderId"`
	SupplierOrderNumber string            `firestore:"supplierOrderNumber,omitempty"`
	SupplierError       string            `firestore:"supplierError,omitempty"`
	SupplierData        SupplierData      `firestore:"supplierData,omitempty"`
	Notifications       NotificationFlags `firestore:"notifications"`
	CreatedAt           time.Time         `firestore:"createdAt"`
	UpdatedAt           time.Time         `firestore:"updatedAt"`
}

// Converted reports whether a real supplier purchase order exists for this order.
func (o *Order) Converted() bool {
	return o != nil && o.SupplierOrderID != "" && o.SupplierOrderID != ConversionPendingSentinel
}

// ConversionPendingSentinel marks an order whose supplier conversion has been
// claimed but not yet completed. A claim is released back to empty on failure.
const ConversionPendingSentinel = "__pending__"

// ConversionClaimStaleAfter bounds how long a pending claim blocks a retry. A
// process that died between claiming and recording the supplier order leaves
// the sentinel behind; after this age the claim may be taken over.
const ConversionClaimStaleAfter = 15 * time.Minute

// ColorVariant maps a storefront colour name to the supplier variant carrying it.
type ColorVariant struct {
	Color             string `firestore:"color"`
	SupplierVariantID string `firestore:"supplierVariantId"`
}

// Product is the catalog record linking storefront listings to supplier SKUs.
type Product struct {
	ID                string         `firestore:"-"`
	Name              string         `firestore:"name"`
	Description       string         `firestore:"description,omitempty"`
	Price             int64          `firestore:"price,omitempty"`
	ImageURL          string         `firestore:"imageUrl,omitempty"`
	SupplierProductID string         `firestore:"supplierProductId,omitempty"`
	SupplierVariantID string         `firestore:"supplierVariantId,omitempty"`
	ColorVariants     []ColorVariant `firestore:"colorVariants,omitempty"`
	UpdatedAt         time.Time      `firestore:"updatedAt"`
}

// VariantForColor returns the supplier variant id registered for the colour,
// or false when the colour has no explicit mapping.
func (p *Product) VariantForColor(color string) (string, bool) {
	if p == nil || color == "" {
		return "", false
	}
	for _, v := range p.ColorVariants {
		if strings.EqualFold(v.Color, color) && v.SupplierVariantID != "" {
			return v.SupplierVariantID, true
		}
	}
	return "", false
}
