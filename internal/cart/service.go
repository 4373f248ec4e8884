package cart

import (
	"context"
	"fmt"

	"github.com/hitoshi/tgshop/internal/customer"
	"github.com/hitoshi/tgshop/internal/model"
)

// MaxEntries はカートに保存できる行数の上限。カタログ照合の1回の取得件数に合わせる。
const MaxEntries = 100

// Service はカートAPIのユースケースを提供する。
type Service struct {
	store      Store
	reconciler *Reconciler
}

// NewService はServiceを生成する。
func NewService(store Store, reconciler *Reconciler) *Service {
	return &Service{store: store, reconciler: reconciler}
}

// Get はカタログと照合済みのカートを返す。
func (s *Service) Get(ctx context.Context, customerID int64) (*model.ReconciledCart, error) {
	return s.reconciler.Reconcile(ctx, customerID)
}

// Replace はカートを指定内容で丸ごと置き換える。空のスライスはカートを空にする。
// 在庫との照合は次回の読み出し時に行う。
func (s *Service) Replace(ctx context.Context, customerID int64, entries []model.CartEntry) ([]model.CartEntry, error) {
	if err := validateEntries(entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.CartEntry{}
	}

	update := &model.CustomerUpdate{MetaData: []model.MetaData{cartMeta(entries)}}
	c, err := s.store.UpdateCustomer(ctx, customerID, update)
	if err != nil {
		return nil, fmt.Errorf("%w: カートの保存に失敗しました: %w", customer.ErrDirectory, err)
	}
	if c == nil {
		return nil, model.NewCustomerNotFoundError()
	}
	return entries, nil
}

func validateEntries(entries []model.CartEntry) error {
	if len(entries) > MaxEntries {
		return model.NewInvalidCartError(fmt.Sprintf("カートに入れられる商品は%d件までです", MaxEntries))
	}
	for i, e := range entries {
		if e.ProductID <= 0 {
			return model.NewInvalidCartError(fmt.Sprintf("%d行目の product_id が不正です", i+1))
		}
		if e.Quantity <= 0 {
			return model.NewInvalidCartError(fmt.Sprintf("%d行目の quantity は1以上で指定してください", i+1))
		}
		if e.VariationID < 0 {
			return model.NewInvalidCartError(fmt.Sprintf("%d行目の variation_id が不正です", i+1))
		}
	}
	return nil
}
