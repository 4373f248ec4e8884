// Package cart は顧客メタデータに保存されたカートの保存と、カタログとの照合を提供する。
//
// カートは書き込み時には検証せず、読み出しのたびに最新の在庫状況と照合する。
// 照合で補正が発生した場合、補正後のカートをバックグラウンドで丸ごと書き戻す。
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/tgshop/internal/customer"
	"github.com/hitoshi/tgshop/internal/model"
)

// ErrCatalogUnavailable はカタログから商品情報を取得できなかったことを示す。
// 照合できないカートは返さない。
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// 照合結果のメトリクスラベル
const (
	OutcomeEmpty        = "empty"
	OutcomeUnchanged    = "unchanged"
	OutcomeChanged      = "changed"
	OutcomeCatalogError = "catalog_error"
)

// CatalogProvider は商品スナップショットの一括取得インターフェース。
type CatalogProvider interface {
	ProductsByIDs(ctx context.Context, ids []int64) ([]model.Product, error)
}

// Store はカートを保持する顧客レコードへのアクセスインターフェース。
type Store interface {
	GetCustomer(ctx context.Context, id int64) (*model.Customer, error)
	UpdateCustomer(ctx context.Context, id int64, in *model.CustomerUpdate) (*model.Customer, error)
}

// TaskRunner はリクエストから切り離したタスクの実行インターフェース。
type TaskRunner interface {
	Go(name string, fn func(ctx context.Context) error) error
}

// Recorder は照合結果のメトリクス記録インターフェース。
type Recorder interface {
	RecordReconciliation(outcome string)
}

// Reconciler は保存済みカートを最新のカタログと照合する。
type Reconciler struct {
	store    Store
	catalog  CatalogProvider
	tasks    TaskRunner
	recorder Recorder
	logger   *slog.Logger
}

// NewReconciler は新しいReconcilerを生成する。recorderはnilでもよい。
func NewReconciler(store Store, catalog CatalogProvider, tasks TaskRunner, logger *slog.Logger, recorder Recorder) *Reconciler {
	return &Reconciler{
		store:    store,
		catalog:  catalog,
		tasks:    tasks,
		recorder: recorder,
		logger:   logger,
	}
}

// Reconcile は顧客のカートを読み込み、在庫状況に合わせて補正した結果を返す。
// 販売できない商品は削除し、在庫数を超える数量は在庫数まで減らす。
// 補正が発生した場合は補正後のカートの保存をバックグラウンドで行う。
func (r *Reconciler) Reconcile(ctx context.Context, customerID int64) (*model.ReconciledCart, error) {
	c, err := r.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("%w: カートの読み込みに失敗しました: %w", customer.ErrDirectory, err)
	}
	if c == nil {
		return nil, model.NewCustomerNotFoundError()
	}

	entries := r.loadEntries(c)
	if len(entries) == 0 {
		r.record(OutcomeEmpty)
		return &model.ReconciledCart{Items: []model.CartEntry{}, Messages: []string{}}, nil
	}

	products, err := r.catalog.ProductsByIDs(ctx, distinctProductIDs(entries))
	if err != nil {
		r.record(OutcomeCatalogError)
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	result := reconcileEntries(entries, products)
	if !result.Changed {
		r.record(OutcomeUnchanged)
		return result, nil
	}

	r.record(OutcomeChanged)
	r.logger.Info("在庫状況に合わせてカートを補正しました",
		slog.Int64("customer_id", customerID),
		slog.Int("before", len(entries)),
		slog.Int("after", len(result.Items)),
	)
	r.persist(customerID, result.Items)
	return result, nil
}

// loadEntries は顧客メタデータからカートを取り出す。
// 値は配列のほか、配列をJSON文字列化したものでも受け付ける。読み取れない値は空のカートとして扱う。
func (r *Reconciler) loadEntries(c *model.Customer) []model.CartEntry {
	meta, ok := c.Meta(model.CartMetaKey)
	if !ok || len(meta.Value) == 0 {
		return nil
	}

	entries, err := decodeEntries(meta.Value)
	if err != nil {
		r.logger.Warn("保存済みカートを読み取れないため空として扱います",
			slog.Int64("customer_id", c.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return entries
}

func decodeEntries(raw json.RawMessage) ([]model.CartEntry, error) {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if encoded == "" {
			return nil, nil
		}
		raw = json.RawMessage(encoded)
	}

	var entries []model.CartEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// persist は補正後のカートでメタデータを丸ごと置き換える。
func (r *Reconciler) persist(customerID int64, items []model.CartEntry) {
	update := &model.CustomerUpdate{MetaData: []model.MetaData{cartMeta(items)}}
	err := r.tasks.Go("persist_cart", func(ctx context.Context) error {
		if _, err := r.store.UpdateCustomer(ctx, customerID, update); err != nil {
			return fmt.Errorf("customer_id=%d の補正済みカートの保存に失敗しました: %w", customerID, err)
		}
		return nil
	})
	if err != nil {
		// 保存できなくても次回の照合で同じ補正が再計算される
		r.logger.Warn("補正済みカートの保存を開始できませんでした",
			slog.Int64("customer_id", customerID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Reconciler) record(outcome string) {
	if r.recorder != nil {
		r.recorder.RecordReconciliation(outcome)
	}
}

// reconcileEntries はカートの各行を保存順に商品スナップショットと照合する。
func reconcileEntries(entries []model.CartEntry, products []model.Product) *model.ReconciledCart {
	byID := make(map[int64]*model.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	result := &model.ReconciledCart{
		Items:    make([]model.CartEntry, 0, len(entries)),
		Messages: []string{},
	}

	for _, entry := range entries {
		if entry.ProductID <= 0 || entry.Quantity <= 0 {
			result.Messages = append(result.Messages, removedMessage(entry.ProductID, nil))
			result.Changed = true
			continue
		}

		p, ok := byID[entry.ProductID]
		if !ok || !p.Purchasable() {
			result.Messages = append(result.Messages, removedMessage(entry.ProductID, p))
			result.Changed = true
			continue
		}

		// 在庫数が管理されている商品は、取り寄せ可能であっても在庫数までに制限する
		if p.StockQuantity != nil && entry.Quantity > *p.StockQuantity {
			stock := *p.StockQuantity
			if stock <= 0 {
				result.Messages = append(result.Messages, removedMessage(entry.ProductID, p))
				result.Changed = true
				continue
			}
			entry.Quantity = stock
			result.Messages = append(result.Messages,
				fmt.Sprintf("「%s」の数量を在庫数の%d点に変更しました。", displayName(entry.ProductID, p), stock))
			result.Changed = true
		}

		result.Items = append(result.Items, entry)
	}

	return result
}

func removedMessage(productID int64, p *model.Product) string {
	return fmt.Sprintf("「%s」は販売終了または在庫切れのためカートから削除しました。", displayName(productID, p))
}

func displayName(productID int64, p *model.Product) string {
	if p != nil && p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("商品 #%d", productID)
}

func distinctProductIDs(entries []model.CartEntry) []int64 {
	seen := make(map[int64]bool, len(entries))
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		if e.ProductID <= 0 || seen[e.ProductID] {
			continue
		}
		seen[e.ProductID] = true
		ids = append(ids, e.ProductID)
	}
	return ids
}

func cartMeta(items []model.CartEntry) model.MetaData {
	if items == nil {
		items = []model.CartEntry{}
	}
	b, _ := json.Marshal(items)
	return model.MetaData{Key: model.CartMetaKey, Value: b}
}
