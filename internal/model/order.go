package model

// 注文ステータス
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusOnHold     = "on-hold"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
	OrderStatusFailed     = "failed"
)

// ValidOrderStatus は指定ステータスがWooCommerceの標準ステータスかを判定する。
func ValidOrderStatus(status string) bool {
	switch status {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusOnHold,
		OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded, OrderStatusFailed:
		return true
	}
	return false
}

// LineItem は注文明細を表す。
type LineItem struct {
	ID          int64  `json:"id,omitempty"`
	ProductID   int64  `json:"product_id"`
	VariationID int64  `json:"variation_id,omitempty"`
	Quantity    int    `json:"quantity"`
	Name        string `json:"name,omitempty"`
	Total       string `json:"total,omitempty"`
}

// CouponLine は注文に適用するクーポンを表す。
type CouponLine struct {
	Code string `json:"code"`
}

// Order はWooCommerceの注文を表す。
type Order struct {
	ID                 int64        `json:"id"`
	Number             string       `json:"number"`
	Status             string       `json:"status"`
	Currency           string       `json:"currency"`
	Total              string       `json:"total"`
	DateCreated        string       `json:"date_created"`
	CustomerID         int64        `json:"customer_id"`
	CustomerNote       string       `json:"customer_note"`
	PaymentMethod      string       `json:"payment_method"`
	PaymentMethodTitle string       `json:"payment_method_title"`
	Billing            Address      `json:"billing"`
	Shipping           Address      `json:"shipping"`
	LineItems          []LineItem   `json:"line_items"`
	CouponLines        []CouponLine `json:"coupon_lines"`
	MetaData           []MetaData   `json:"meta_data"`
}

// OrderCreate は注文作成リクエストのペイロード。
type OrderCreate struct {
	PaymentMethod      string       `json:"payment_method"`
	PaymentMethodTitle string       `json:"payment_method_title"`
	SetPaid            bool         `json:"set_paid"`
	Status             string       `json:"status"`
	CustomerID         int64        `json:"customer_id"`
	CustomerNote       string       `json:"customer_note,omitempty"`
	Billing            Address      `json:"billing"`
	LineItems          []LineItem   `json:"line_items"`
	CouponLines        []CouponLine `json:"coupon_lines,omitempty"`
	MetaData           []MetaData   `json:"meta_data,omitempty"`
}

// OrderQuery は注文一覧の検索条件。
type OrderQuery struct {
	Page       int
	PerPage    int
	Statuses   []string
	CustomerID int64
	Search     string
}

// OrderPage は注文一覧の1ページ分と総件数を表す。
type OrderPage struct {
	Orders     []Order
	Total      int
	TotalPages int
}
