package woocommerce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/tgshop/internal/model"
)

// CreateOrder は注文を作成する。
func (c *Client) CreateOrder(ctx context.Context, in *model.OrderCreate) (*model.Order, error) {
	var order model.Order
	if _, err := c.do(ctx, "create_order", http.MethodPost, "orders", nil, in, &order); err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, fmt.Errorf("woocommerce create_order: レスポンスに注文IDが含まれていません")
	}
	return &order, nil
}

// GetOrder は指定IDの注文を取得する。見つからない場合はnilを返す。
func (c *Client) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	var order model.Order
	_, err := c.do(ctx, "get_order", http.MethodGet, "orders/"+strconv.FormatInt(id, 10), nil, nil, &order)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders は注文一覧を新しい順に取得する。
// 複数ステータスはカンマ区切りで指定する。
func (c *Client) ListOrders(ctx context.Context, q model.OrderQuery) (*model.OrderPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(max(q.Page, 1)))
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = 10
	}
	query.Set("per_page", strconv.Itoa(min(perPage, MaxPerPage)))
	query.Set("orderby", "date")
	query.Set("order", "desc")
	if len(q.Statuses) > 0 {
		query.Set("status", strings.Join(q.Statuses, ","))
	}
	if q.CustomerID > 0 {
		query.Set("customer", strconv.FormatInt(q.CustomerID, 10))
	}
	if q.Search != "" {
		query.Set("search", q.Search)
	}

	var orders []model.Order
	header, err := c.do(ctx, "list_orders", http.MethodGet, "orders", query, nil, &orders)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return &model.OrderPage{
		Orders:     orders,
		Total:      headerInt(header, "X-WP-Total"),
		TotalPages: headerInt(header, "X-WP-TotalPages"),
	}, nil
}

// UpdateOrderStatus は注文ステータスを更新する。見つからない場合はnilを返す。
func (c *Client) UpdateOrderStatus(ctx context.Context, id int64, status string) (*model.Order, error) {
	body := map[string]string{"status": status}

	var order model.Order
	_, err := c.do(ctx, "update_order_status", http.MethodPut, "orders/"+strconv.FormatInt(id, 10), nil, body, &order)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}
