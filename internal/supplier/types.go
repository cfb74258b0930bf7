package supplier

import (
	"encoding/json"
	"time"
)

// envelope is the supplier's uniform response wrapper. Code 200 signals
// success across every endpoint regardless of HTTP status.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ProductSummary is one row of a paginated catalog search.
type ProductSummary struct {
	ProductID   string `json:"pid"`
	Name        string `json:"productNameEn"`
	SKU         string `json:"productSku"`
	ImageURL    string `json:"productImage"`
	SellPrice   string `json:"sellPrice"`
	CategoryTag string `json:"categoryName"`
}

// ProductSearchResult pages through summaries.
type ProductSearchResult struct {
	PageNum  int              `json:"pageNum"`
	PageSize int              `json:"pageSize"`
	Total    int              `json:"total"`
	List     []ProductSummary `json:"list"`
}

// Variant is a sellable configuration of a supplier product.
type Variant struct {
	VariantID  string `json:"vid"`
	SKU        string `json:"variantSku"`
	Key        string `json:"variantKey"`
	Name       string `json:"variantNameEn"`
	SellPrice  string `json:"variantSellPrice"`
	WeightGram int    `json:"variantWeight"`
}

// ProductDetail is the full product record, optionally with variant and
// inventory sub-resources depending on the requested features.
type ProductDetail struct {
	ProductID   string    `json:"pid"`
	Name        string    `json:"productNameEn"`
	SKU         string    `json:"productSku"`
	ImageURL    string    `json:"productImage"`
	Description string    `json:"description"`
	SellPrice   string    `json:"sellPrice"`
	Variants    []Variant `json:"variants"`
}

// FreightItem identifies one variant/quantity pair in a freight quote request.
type FreightItem struct {
	VariantID string `json:"vid"`
	Quantity  int    `json:"quantity"`
}

// FreightRequest asks for shipping options between two countries.
type FreightRequest struct {
	StartCountryCode string        `json:"startCountryCode"`
	EndCountryCode   string        `json:"endCountryCode"`
	Products         []FreightItem `json:"products"`
	PostalCode       string        `json:"zip,omitempty"`
}

// FreightOption is a single shipping quote. Price is in the supplier's
// display currency units.
type FreightOption struct {
	LogisticsName string  `json:"logisticName"`
	Price         float64 `json:"logisticPrice"`
	AgingDays     string  `json:"logisticAging"`
}

// OrderProduct is one line of a supplier purchase order.
type OrderProduct struct {
	VariantID string `json:"vid"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderRequest is the supplier purchase order payload. The warehouse is
// left to the supplier's auto-selection unless FromCountryCode is set.
type CreateOrderRequest struct {
	OrderNumber      string         `json:"orderNumber"`
	ShippingName     string         `json:"shippingCustomerName"`
	ShippingPhone    string         `json:"shippingPhone"`
	ShippingAddress  string         `json:"shippingAddress"`
	ShippingCity     string         `json:"shippingCity"`
	ShippingProvince string         `json:"shippingProvince"`
	ShippingZip      string         `json:"shippingZip"`
	ShippingCountry  string         `json:"shippingCountryCode"`
	FromCountryCode  string         `json:"fromCountryCode,omitempty"`
	LogisticsName    string         `json:"logisticName,omitempty"`
	PayType          int            `json:"payType,omitempty"`
	Remark           string         `json:"remark,omitempty"`
	Products         []OrderProduct `json:"products"`
}

// CreateOrderResult identifies the purchase order the supplier created.
type CreateOrderResult struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNum"`
	OrderAmount string `json:"orderAmount"`
}

// OrderDetail is the supplier-side view of a purchase order.
type OrderDetail struct {
	OrderID        string `json:"orderId"`
	OrderNumber    string `json:"orderNum"`
	OrderStatus    string `json:"orderStatus"`
	TrackingNumber string `json:"trackNumber"`
	LogisticsName  string `json:"logisticName"`
	OrderAmount    string `json:"orderAmount"`
}

// TrackEvent is one raw logistics waypoint.
type TrackEvent struct {
	Status string `json:"trackingStatus"`
	Detail string `json:"trackingDetail"`
	Time   string `json:"trackingTime"`
}

// TrackingInfo is the logistics history for one tracking number.
type TrackingInfo struct {
	TrackingNumber string       `json:"trackNumber"`
	Carrier        string       `json:"logisticName"`
	Status         string       `json:"trackingStatus"`
	Events         []TrackEvent `json:"trackingList"`
}

// WebhookConfig registers a callback URL for a supplier push type.
type WebhookConfig struct {
	Type string `json:"type"`
	URL  string `json:"callbackUrl"`
}

// StoredToken is the persisted shape of the supplier access credential.
type StoredToken struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry"`
}
