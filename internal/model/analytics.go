package model

import (
	"encoding/json"
	"time"
)

// EventTypeViewProduct は商品閲覧イベントの種別。
const EventTypeViewProduct = "view_product"

// AnalyticsEvent はミニアプリから送信された行動イベントを表す。
type AnalyticsEvent struct {
	ID         string
	CustomerID int64
	EventType  string
	EventData  json.RawMessage
	CreatedAt  time.Time
}

// ProductViews は商品ごとの閲覧数を表す。
type ProductViews struct {
	ProductID string `json:"product_id"`
	Views     int    `json:"views"`
}
