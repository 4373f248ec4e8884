// Package repository はデータ永続化のインターフェースを定義する。
// 顧客・商品・注文はストア側が正であり、ここで扱うのはアプリ固有のデータのみ。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/tgshop/internal/model"
)

// AnalyticsRepository は分析イベントの永続化インターフェース。
type AnalyticsRepository interface {
	// Insert はイベントを1件保存する。IDとCreatedAtが空の場合は採番する。
	Insert(ctx context.Context, event *model.AnalyticsEvent) error

	// CountActiveCustomers はsince以降にイベントを送信した顧客の数を返す。
	CountActiveCustomers(ctx context.Context, since time.Time) (int, error)

	// TopViewedProducts は商品閲覧イベントの多い順に商品IDと閲覧数を返す。
	TopViewedProducts(ctx context.Context, limit int) ([]model.ProductViews, error)
}
