// Package order は注文の作成・参照と、管理者による注文ステータスの更新を提供する。
//
// 注文は代金引換（担当者との調整）で作成し、ステータスは確認待ち(on-hold)から始まる。
// 管理者と購入者へのTelegram通知はリクエストから切り離して送信する。
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/tgshop/internal/auth"
	"github.com/hitoshi/tgshop/internal/customer"
	"github.com/hitoshi/tgshop/internal/model"
)

const (
	// PaymentMethod は注文作成時の支払い方法。
	PaymentMethod = "cod"
	// PaymentMethodTitle は支払い方法の表示名。
	PaymentMethodTitle = "担当者と調整（Telegram）"
	// CreatedVia は注文の作成元を示すメタデータ値。
	CreatedVia = "Telegram Mini App"

	// MetaTelegramFirstName は購入者のTelegram上の名。
	MetaTelegramFirstName = "_telegram_first_name"
	// MetaTelegramLastName は購入者のTelegram上の姓。
	MetaTelegramLastName = "_telegram_last_name"
	// MetaCreatedVia は注文の作成元のメタデータキー。
	MetaCreatedVia = "_created_via"

	// MaxLineItems は1注文あたりの明細数の上限。
	MaxLineItems = 100
	// MaxCustomerNoteLength は備考の最大文字数。
	MaxCustomerNoteLength = 1000
	// MaxPerPage は一覧取得の1ページあたりの最大件数。
	MaxPerPage = 50
)

// DefaultAdminStatuses は管理者向け一覧のデフォルトのステータス絞り込み。
var DefaultAdminStatuses = []string{model.OrderStatusOnHold, model.OrderStatusProcessing}

// ErrBackend はWooCommerceの注文APIが失敗したことを示す。
var ErrBackend = errors.New("order backend error")

// Store はWooCommerceの注文APIのうちServiceが利用する部分。
type Store interface {
	CreateOrder(ctx context.Context, in *model.OrderCreate) (*model.Order, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	ListOrders(ctx context.Context, q model.OrderQuery) (*model.OrderPage, error)
	UpdateOrderStatus(ctx context.Context, id int64, status string) (*model.Order, error)
}

// Notifier は注文に関するTelegram通知のインターフェース。
type Notifier interface {
	NotifyNewOrder(ctx context.Context, order *model.Order, buyer *auth.Claim) error
	NotifyOrderCreated(ctx context.Context, telegramUserID int64, order *model.Order) error
	NotifyStatusUpdate(ctx context.Context, telegramUserID int64, order *model.Order) error
}

// TaskRunner はリクエストから切り離したタスクの実行インターフェース。
type TaskRunner interface {
	Go(name string, fn func(ctx context.Context) error) error
}

// CreateInput はMini Appから送信される注文内容。
type CreateInput struct {
	LineItems    []model.LineItem `json:"line_items"`
	CustomerNote string           `json:"customer_note"`
	CouponCode   string           `json:"coupon_code"`
}

// Service は注文のユースケースを提供する。
type Service struct {
	store    Store
	notifier Notifier
	tasks    TaskRunner
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(store Store, notifier Notifier, tasks TaskRunner, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		tasks:    tasks,
		logger:   logger,
	}
}

// Create は解決済みの顧客として注文を作成し、管理者と購入者への通知を起動する。
func (s *Service) Create(ctx context.Context, customerID int64, buyer *auth.Claim, in CreateInput) (*model.Order, error) {
	if err := validateCreateInput(&in); err != nil {
		return nil, err
	}

	payload := newOrderPayload(customerID, buyer, in)
	created, err := s.store.CreateOrder(ctx, payload)
	if err != nil {
		var remoteErr *model.RemoteError
		if errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusBadRequest {
			// クーポンの適用不可など、注文内容に起因するエラー
			return nil, model.NewOrderCreateFailedError(remoteErr.Message)
		}
		return nil, fmt.Errorf("%w: 注文の作成に失敗しました: %w", ErrBackend, err)
	}

	s.logger.Info("注文を作成しました",
		slog.Int64("order_id", created.ID),
		slog.Int64("customer_id", customerID),
		slog.Int64("telegram_user_id", buyer.UserID),
		slog.Int("line_items", len(created.LineItems)),
	)

	order := *created
	s.goTask("notify_new_order", order.ID, func(ctx context.Context) error {
		return s.notifier.NotifyNewOrder(ctx, &order, buyer)
	})
	s.goTask("notify_order_created", order.ID, func(ctx context.Context) error {
		return s.notifier.NotifyOrderCreated(ctx, buyer.UserID, &order)
	})

	return created, nil
}

// ListMine は顧客自身の注文一覧を返す。
func (s *Service) ListMine(ctx context.Context, customerID int64, page, perPage int) (*model.OrderPage, error) {
	result, err := s.store.ListOrders(ctx, model.OrderQuery{
		Page:       page,
		PerPage:    clampPerPage(perPage),
		CustomerID: customerID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: 注文一覧の取得に失敗しました: %w", ErrBackend, err)
	}
	return result, nil
}

// List は管理者向けの注文一覧を返す。ステータス未指定の場合は対応待ちの注文に絞り込む。
func (s *Service) List(ctx context.Context, q model.OrderQuery) (*model.OrderPage, error) {
	if len(q.Statuses) == 0 {
		q.Statuses = DefaultAdminStatuses
	}
	for _, status := range q.Statuses {
		if !model.ValidOrderStatus(status) {
			return nil, model.NewInvalidOrderStatusError(status)
		}
	}
	q.PerPage = clampPerPage(q.PerPage)

	result, err := s.store.ListOrders(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: 注文一覧の取得に失敗しました: %w", ErrBackend, err)
	}
	return result, nil
}

// Get は注文を1件返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: 注文の取得に失敗しました: %w", ErrBackend, err)
	}
	if o == nil {
		return nil, model.NewOrderNotFoundError(id)
	}
	return o, nil
}

// UpdateStatus は注文ステータスを更新し、購入者が分かる場合は通知する。
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) (*model.Order, error) {
	status = strings.TrimSpace(status)
	if !model.ValidOrderStatus(status) {
		return nil, model.NewInvalidOrderStatusError(status)
	}

	updated, err := s.store.UpdateOrderStatus(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("%w: 注文ステータスの更新に失敗しました: %w", ErrBackend, err)
	}
	if updated == nil {
		return nil, model.NewOrderNotFoundError(id)
	}

	s.logger.Info("注文ステータスを更新しました",
		slog.Int64("order_id", id),
		slog.String("status", status),
	)

	tgID, ok := buyerTelegramID(updated)
	if !ok {
		s.logger.Warn("注文に購入者のTelegram IDがないため通知を省略します", slog.Int64("order_id", id))
		return updated, nil
	}

	order := *updated
	s.goTask("notify_status_update", id, func(ctx context.Context) error {
		return s.notifier.NotifyStatusUpdate(ctx, tgID, &order)
	})
	return updated, nil
}

func (s *Service) goTask(name string, orderID int64, fn func(ctx context.Context) error) {
	if err := s.tasks.Go(name, fn); err != nil {
		s.logger.Warn("通知タスクを開始できませんでした",
			slog.String("task", name),
			slog.Int64("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}
}

func validateCreateInput(in *CreateInput) error {
	if len(in.LineItems) == 0 {
		return model.NewInvalidRequestError("line_items は1件以上指定してください")
	}
	if len(in.LineItems) > MaxLineItems {
		return model.NewInvalidRequestError(fmt.Sprintf("line_items は%d件以内で指定してください", MaxLineItems))
	}
	for i, item := range in.LineItems {
		if item.ProductID <= 0 {
			return model.NewInvalidRequestError(fmt.Sprintf("line_items[%d].product_id が不正です", i))
		}
		if item.Quantity <= 0 {
			return model.NewInvalidRequestError(fmt.Sprintf("line_items[%d].quantity は1以上で指定してください", i))
		}
	}
	in.CustomerNote = strings.TrimSpace(in.CustomerNote)
	if len([]rune(in.CustomerNote)) > MaxCustomerNoteLength {
		return model.NewInvalidRequestError(fmt.Sprintf("customer_note は%d文字以内で指定してください", MaxCustomerNoteLength))
	}
	in.CouponCode = strings.TrimSpace(in.CouponCode)
	return nil
}

// newOrderPayload はWooCommerceへ送る注文作成ペイロードを組み立てる。
func newOrderPayload(customerID int64, buyer *auth.Claim, in CreateInput) *model.OrderCreate {
	firstName := buyer.FirstName
	if firstName == "" {
		firstName = "Telegram User"
	}
	lastName := buyer.LastName
	if lastName == "" {
		lastName = strconv.FormatInt(buyer.UserID, 10)
	}

	items := make([]model.LineItem, len(in.LineItems))
	for i, item := range in.LineItems {
		items[i] = model.LineItem{
			ProductID:   item.ProductID,
			VariationID: item.VariationID,
			Quantity:    item.Quantity,
		}
	}

	payload := &model.OrderCreate{
		PaymentMethod:      PaymentMethod,
		PaymentMethodTitle: PaymentMethodTitle,
		SetPaid:            false,
		Status:             model.OrderStatusOnHold,
		CustomerID:         customerID,
		CustomerNote:       in.CustomerNote,
		Billing: model.Address{
			FirstName: firstName,
			LastName:  lastName,
			Email:     customer.Email(buyer.UserID),
		},
		LineItems: items,
		MetaData: []model.MetaData{
			model.StringMeta(customer.MetaTelegramUserID, strconv.FormatInt(buyer.UserID, 10)),
			model.StringMeta(customer.MetaTelegramUsername, buyer.Username),
			model.StringMeta(MetaTelegramFirstName, buyer.FirstName),
			model.StringMeta(MetaTelegramLastName, buyer.LastName),
			model.StringMeta(MetaCreatedVia, CreatedVia),
		},
	}
	if in.CouponCode != "" {
		payload.CouponLines = []model.CouponLine{{Code: in.CouponCode}}
	}
	return payload
}

// buyerTelegramID は注文メタデータから購入者のTelegram利用者IDを取り出す。
func buyerTelegramID(o *model.Order) (int64, bool) {
	meta, ok := model.FindMeta(o.MetaData, customer.MetaTelegramUserID)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(meta.StringValue(), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func clampPerPage(perPage int) int {
	if perPage <= 0 {
		return 10
	}
	return min(perPage, MaxPerPage)
}
