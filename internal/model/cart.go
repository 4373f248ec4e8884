package model

// CartMetaKey は顧客メタデータ上でカートを保持するキー。
const CartMetaKey = "telegram_cart"

// CartEntry は永続化されたカートの1行を表す。
// 書き込み時にはカタログと照合せず、読み出し時に照合する。
type CartEntry struct {
	ProductID   int64 `json:"product_id"`
	Quantity    int   `json:"quantity"`
	VariationID int64 `json:"variation_id,omitempty"`
}

// ReconciledCart はカタログと照合した結果のカートを表す。
type ReconciledCart struct {
	Items    []CartEntry `json:"items"`
	Messages []string    `json:"messages"`
	Changed  bool        `json:"changed"`
}
