package woocommerce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/tgshop/internal/model"
)

// FindCustomerByEmail はメールアドレスで顧客を検索する。見つからない場合はnilを返す。
// role=all を指定し、customer 以外のロールの利用者も対象にする。
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*model.Customer, error) {
	query := url.Values{}
	query.Set("email", email)
	query.Set("role", "all")

	var customers []model.Customer
	if _, err := c.do(ctx, "find_customer_by_email", http.MethodGet, "customers", query, nil, &customers); err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return nil, nil
	}
	return &customers[0], nil
}

// GetCustomer は指定IDの顧客を取得する。見つからない場合はnilを返す。
func (c *Client) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	var customer model.Customer
	_, err := c.do(ctx, "get_customer", http.MethodGet, "customers/"+strconv.FormatInt(id, 10), nil, nil, &customer)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreateCustomer は顧客を作成する。
// メールアドレスやユーザー名が既存と重複した場合は
// Code が registration-error-*-exists の *model.RemoteError を返す。
func (c *Client) CreateCustomer(ctx context.Context, in *model.CustomerCreate) (*model.Customer, error) {
	var customer model.Customer
	if _, err := c.do(ctx, "create_customer", http.MethodPost, "customers", nil, in, &customer); err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, fmt.Errorf("woocommerce create_customer: レスポンスに顧客IDが含まれていません")
	}
	return &customer, nil
}

// UpdateCustomer は顧客を部分更新する。見つからない場合はnilを返す。
func (c *Client) UpdateCustomer(ctx context.Context, id int64, in *model.CustomerUpdate) (*model.Customer, error) {
	var customer model.Customer
	_, err := c.do(ctx, "update_customer", http.MethodPut, "customers/"+strconv.FormatInt(id, 10), nil, in, &customer)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}
