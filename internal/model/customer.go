package model

import "encoding/json"

// MetaData はWooCommerceリソースに付与されるkey/valueメタデータを表す。
// valueは文字列・配列・オブジェクトのいずれも取り得るため生のJSONで保持する。
type MetaData struct {
	ID    int64           `json:"id,omitempty"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// StringMeta は文字列値のMetaDataを生成する。
func StringMeta(key, value string) MetaData {
	b, _ := json.Marshal(value)
	return MetaData{Key: key, Value: b}
}

// StringValue はvalueを文字列として取り出す。
// 数値で保存されている場合はその文字列表現を返す。
func (m MetaData) StringValue() string {
	var s string
	if err := json.Unmarshal(m.Value, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(m.Value, &n); err == nil {
		return n.String()
	}
	return ""
}

// FindMeta は指定キーの最初のメタデータを返す。
func FindMeta(meta []MetaData, key string) (MetaData, bool) {
	for _, m := range meta {
		if m.Key == key {
			return m, true
		}
	}
	return MetaData{}, false
}

// Address は請求先・配送先の住所情報を表す。
// 部分更新で未指定の項目を送らないよう、全フィールドをomitemptyとする。
type Address struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1,omitempty"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode,omitempty"`
	Country   string `json:"country,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Customer はWooCommerceの顧客レコードを表す。
type Customer struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Username    string     `json:"username"`
	DateCreated string     `json:"date_created,omitempty"`
	Billing     Address    `json:"billing"`
	Shipping    Address    `json:"shipping"`
	MetaData    []MetaData `json:"meta_data"`
}

// Meta は指定キーのメタデータを返す。
func (c *Customer) Meta(key string) (MetaData, bool) {
	return FindMeta(c.MetaData, key)
}

// CustomerCreate は顧客作成リクエストのペイロード。
type CustomerCreate struct {
	Email     string     `json:"email"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	Username  string     `json:"username,omitempty"`
	Billing   *Address   `json:"billing,omitempty"`
	Shipping  *Address   `json:"shipping,omitempty"`
	MetaData  []MetaData `json:"meta_data,omitempty"`
}

// CustomerUpdate は顧客の部分更新ペイロード。
// meta_dataは指定キーのみ置き換えられ、他のキーは保持される。
type CustomerUpdate struct {
	Email     string     `json:"email,omitempty"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	Billing   *Address   `json:"billing,omitempty"`
	Shipping  *Address   `json:"shipping,omitempty"`
	MetaData  []MetaData `json:"meta_data,omitempty"`
}
