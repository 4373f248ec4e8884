package model

// 商品の在庫ステータス
const (
	StockStatusInStock     = "instock"
	StockStatusOutOfStock  = "outofstock"
	StockStatusOnBackorder = "onbackorder"
)

// TermRef は商品に紐づくカテゴリ・タグの参照を表す。
type TermRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Image は商品画像を表す。
type Image struct {
	ID   int64  `json:"id"`
	Src  string `json:"src"`
	Name string `json:"name,omitempty"`
	Alt  string `json:"alt,omitempty"`
}

// Product はWooCommerceの商品を表す。
// 在庫管理していない商品ではStockQuantityがnilになる。
type Product struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Slug             string    `json:"slug"`
	Permalink        string    `json:"permalink,omitempty"`
	Type             string    `json:"type"`
	Status           string    `json:"status,omitempty"`
	Featured         bool      `json:"featured"`
	Description      string    `json:"description"`
	ShortDescription string    `json:"short_description"`
	SKU              string    `json:"sku"`
	Price            string    `json:"price"`
	RegularPrice     string    `json:"regular_price"`
	SalePrice        string    `json:"sale_price"`
	OnSale           bool      `json:"on_sale"`
	ManageStock      bool      `json:"manage_stock"`
	StockStatus      string    `json:"stock_status"`
	StockQuantity    *int      `json:"stock_quantity"`
	Categories       []TermRef `json:"categories"`
	Tags             []TermRef `json:"tags"`
	Images           []Image   `json:"images"`
}

// Purchasable は在庫あり・取り寄せ可能のいずれかであればtrueを返す。
func (p *Product) Purchasable() bool {
	return p.StockStatus == StockStatusInStock || p.StockStatus == StockStatusOnBackorder
}

// ProductQuery は商品一覧の検索条件。
type ProductQuery struct {
	Page     int
	PerPage  int
	Category string
	Tag      string
	Search   string
	Featured *bool
	OnSale   *bool
	OrderBy  string
	Order    string
	Include  []int64
}

// ProductPage は商品一覧の1ページ分と総件数を表す。
// 総件数はX-WP-Total、総ページ数はX-WP-TotalPagesヘッダーから取得する。
type ProductPage struct {
	Products   []Product
	Total      int
	TotalPages int
}

// Category は商品カテゴリを表す。
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Parent      int64  `json:"parent"`
	Description string `json:"description"`
	Count       int    `json:"count"`
	Image       *Image `json:"image"`
}

// Tag は商品タグを表す。
type Tag struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	Count       int    `json:"count"`
}

// Coupon はWooCommerceのクーポンを表す。
type Coupon struct {
	ID             int64   `json:"id"`
	Code           string  `json:"code"`
	Amount         string  `json:"amount"`
	DiscountType   string  `json:"discount_type"`
	DateExpires    *string `json:"date_expires"`
	DateExpiresGMT *string `json:"date_expires_gmt"`
	UsageCount     int     `json:"usage_count"`
	UsageLimit     *int    `json:"usage_limit"`
}
