// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, cart, order, catalog, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeMissingInitData       = "MISSING_INIT_DATA"
	ErrCodeIdentityUnavailable   = "IDENTITY_UNAVAILABLE"
	ErrCodeDirectoryError        = "DIRECTORY_ERROR"
	ErrCodeCatalogUnavailable    = "CATALOG_UNAVAILABLE"
	ErrCodeCustomerNotFound      = "CUSTOMER_NOT_FOUND"
	ErrCodeProductNotFound       = "PRODUCT_NOT_FOUND"
	ErrCodeOrderNotFound         = "ORDER_NOT_FOUND"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeInvalidCart           = "INVALID_CART"
	ErrCodeEmptyProfileUpdate    = "EMPTY_PROFILE_UPDATE"
	ErrCodeEmptyCouponCode       = "EMPTY_COUPON_CODE"
	ErrCodeInvalidOrderStatus    = "INVALID_ORDER_STATUS"
	ErrCodeOrderCreateFailed     = "ORDER_CREATE_FAILED"
	ErrCodeAdminKeyNotConfigured = "ADMIN_KEY_NOT_CONFIGURED"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeStorageUnavailable    = "STORAGE_UNAVAILABLE"
)

// NewUnauthorizedError は認証失敗エラーを生成する。
// 署名不一致と期限切れを区別しないメッセージを返す。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "ミニアプリを開き直してください。",
	}
}

// NewMissingInitDataError は X-Telegram-Init-Data ヘッダー欠落エラーを生成する。
func NewMissingInitDataError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingInitData,
		Message:  "X-Telegram-Init-Data ヘッダーがありません。",
		Category: "auth",
		Action:   "Telegram からミニアプリを開いてください。",
	}
}

// NewIdentityUnavailableError は顧客の特定が一時的にできない場合のエラーを生成する。
func NewIdentityUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityUnavailable,
		Message:  "顧客情報を一時的に取得できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewDirectoryError はストア側の顧客APIの失敗エラーを生成する。
func NewDirectoryError() *APIError {
	return &APIError{
		Code:     ErrCodeDirectoryError,
		Message:  "ストアとの通信に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCatalogUnavailableError は商品カタログ取得失敗エラーを生成する。
func NewCatalogUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeCatalogUnavailable,
		Message:  "商品の在庫情報を取得できませんでした。",
		Category: "catalog",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCustomerNotFoundError は顧客プロフィール未検出エラーを生成する。
func NewCustomerNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeCustomerNotFound,
		Message:  "顧客プロフィールが見つかりません。",
		Category: "auth",
		Action:   "ミニアプリを開き直してください。",
	}
}

// NewProductNotFoundError は商品未検出エラーを生成する。
func NewProductNotFoundError(productID int64) *APIError {
	return &APIError{
		Code:     ErrCodeProductNotFound,
		Message:  fmt.Sprintf("指定された商品が見つかりません: %d", productID),
		Category: "catalog",
		Action:   "商品IDを確認してください。",
	}
}

// NewOrderNotFoundError は注文未検出エラーを生成する。
func NewOrderNotFoundError(orderID int64) *APIError {
	return &APIError{
		Code:     ErrCodeOrderNotFound,
		Message:  fmt.Sprintf("指定された注文が見つかりません: %d", orderID),
		Category: "order",
		Action:   "注文IDを確認してください。",
	}
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidCartError はカート内容の検証エラーを生成する。
func NewInvalidCartError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCart,
		Message:  fmt.Sprintf("カートの内容が不正です: %s", reason),
		Category: "cart",
		Action:   "商品と数量を確認してください。",
	}
}

// NewEmptyProfileUpdateError は更新項目が指定されていない場合のエラーを生成する。
func NewEmptyProfileUpdateError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyProfileUpdate,
		Message:  "更新する項目がありません。",
		Category: "validation",
		Action:   "変更したい項目を1つ以上入力してください。",
	}
}

// NewEmptyCouponCodeError はクーポンコード未入力エラーを生成する。
func NewEmptyCouponCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyCouponCode,
		Message:  "クーポンコードが空です。",
		Category: "validation",
		Action:   "クーポンコードを入力してください。",
	}
}

// NewInvalidOrderStatusError は注文ステータスが不正な場合のエラーを生成する。
func NewInvalidOrderStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOrderStatus,
		Message:  fmt.Sprintf("無効な注文ステータスです: %s", status),
		Category: "validation",
		Action:   "pending、processing、on-hold、completed、cancelled、refunded、failed のいずれかを指定してください。",
	}
}

// NewOrderCreateFailedError は注文作成失敗エラーを生成する。
func NewOrderCreateFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeOrderCreateFailed,
		Message:  fmt.Sprintf("注文の作成に失敗しました: %s", reason),
		Category: "order",
		Action:   "カートの内容を確認し、再度お試しください。",
	}
}

// NewAdminKeyNotConfiguredError は管理APIキー未設定エラーを生成する。
func NewAdminKeyNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminKeyNotConfigured,
		Message:  "管理APIは無効化されています。",
		Category: "system",
		Action:   "サーバーに ADMIN_API_KEY を設定してください。",
	}
}

// NewForbiddenError は管理APIキー不一致エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "アクセスが拒否されました。",
		Category: "auth",
		Action:   "正しい管理APIキーを指定してください。",
	}
}

// NewStorageUnavailableError はアプリ側データストアの障害エラーを生成する。
func NewStorageUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStorageUnavailable,
		Message:  "データを一時的に取得できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// RemoteError はWooCommerce REST APIが返した構造化エラーを表す。
// Codeには "registration-error-email-exists" のような機械可読なコードが入る。
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *RemoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("woocommerce: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("woocommerce: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}
