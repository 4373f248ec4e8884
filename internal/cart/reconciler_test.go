package cart

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/tgshop/internal/customer"
	"github.com/hitoshi/tgshop/internal/model"
	"github.com/hitoshi/tgshop/internal/worker/background"
)

// --- モック定義 ---

// memoryStore は顧客メタデータをメモリ上に保持する。
type memoryStore struct {
	mu      sync.Mutex
	meta    map[int64]json.RawMessage
	missing bool
	getErr  error
	updates int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{meta: make(map[int64]json.RawMessage)}
}

func (s *memoryStore) setCart(t *testing.T, customerID int64, entries []model.CartEntry) {
	t.Helper()
	b, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("カートのエンコードに失敗した: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[customerID] = b
}

func (s *memoryStore) GetCustomer(_ context.Context, id int64) (*model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.missing {
		return nil, nil
	}
	c := &model.Customer{ID: id}
	if v, ok := s.meta[id]; ok {
		c.MetaData = []model.MetaData{{Key: model.CartMetaKey, Value: v}}
	}
	return c, nil
}

func (s *memoryStore) UpdateCustomer(_ context.Context, id int64, in *model.CustomerUpdate) (*model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	for _, m := range in.MetaData {
		if m.Key == model.CartMetaKey {
			s.meta[id] = m.Value
		}
	}
	return &model.Customer{ID: id}, nil
}

func (s *memoryStore) storedCart(t *testing.T, customerID int64) []model.CartEntry {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []model.CartEntry
	if err := json.Unmarshal(s.meta[customerID], &entries); err != nil {
		t.Fatalf("保存済みカートのデコードに失敗した: %v", err)
	}
	return entries
}

type mockCatalog struct {
	mu       sync.Mutex
	products map[int64]model.Product
	err      error
	calls    int
	lastIDs  []int64
}

func (m *mockCatalog) ProductsByIDs(_ context.Context, ids []int64) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastIDs = ids
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockRecorder struct {
	outcomes []string
}

func (m *mockRecorder) RecordReconciliation(outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

// --- compile-time interface checks ---
var _ Store = (*memoryStore)(nil)
var _ CatalogProvider = (*mockCatalog)(nil)
var _ TaskRunner = (*background.Runner)(nil)
var _ Recorder = (*mockRecorder)(nil)

func intPtr(n int) *int { return &n }

func newTestRunner() *background.Runner {
	return background.NewRunner(slog.New(slog.NewJSONHandler(io.Discard, nil)), time.Second, nil)
}

func newTestReconciler(store Store, catalog CatalogProvider, runner *background.Runner, rec Recorder) *Reconciler {
	return NewReconciler(store, catalog, runner, slog.New(slog.NewJSONHandler(io.Discard, nil)), rec)
}

// --- テスト ---

func TestReconcile_EmptyCartSkipsCatalog(t *testing.T) {
	store := newMemoryStore()
	catalog := &mockCatalog{}
	rec := &mockRecorder{}
	r := newTestReconciler(store, catalog, newTestRunner(), rec)

	got, err := r.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("Reconcile がエラーを返した: %v", err)
	}
	if got.Items == nil || len(got.Items) != 0 || got.Messages == nil || len(got.Messages) != 0 || got.Changed {
		t.Errorf("result = %+v, want {[] [] false}", got)
	}
	if catalog.calls != 0 {
		t.Errorf("カタログ呼び出し回数 = %d, want 0", catalog.calls)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != OutcomeEmpty {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
}

func TestReconcile_EmptyListSkipsCatalog(t *testing.T) {
	store := newMemoryStore()
	store.setCart(t, 1, []model.CartEntry{})
	catalog := &mockCatalog{}
	r := newTestReconciler(store, catalog, newTestRunner(), nil)

	if _, err := r.Reconcile(context.Background(), 1); err != nil {
		t.Fatalf("Reconcile がエラーを返した: %v", err)
	}
	if catalog.calls != 0 {
		t.Errorf("カタログ呼び出し回数 = %d, want 0", catalog.calls)
	}
}

func TestReconcile_MissingProductIsDropped(t *testing.T) {
	store := newMemoryStore()
	store.setCart(t, 1, []model.CartEntry{{ProductID: 1, Quantity: 5}})
	catalog := &mockCatalog{products: map[int64]model.Product{}}
	runner := newTestRunner()
	r := newTestReconciler(store, catalog, runner, nil)

	got, err := r.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("Reconcile がエラーを返した: %v", err)
	}
	runner.Wait()

	if len(got.Items) != 0 {
		t.Errorf("items = %+v, want empty", got.Items)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("messages = %v, want 1件", got.Messages)
	}
	if !strings.Contains(got.Messages[0], "商品 #1") {
		t.Errorf("message = %q, 商品IDを含むこと", got.Messages[0])
	}
	if !got.Changed {
		t.Error("changed = false, want true")
	}
	if stored := store.storedCart(t, 1); len(stored) != 0 {
		t.Errorf("保存済みカート = %+v, want empty", stored)
	}
}

func TestReconcile_ClampsQuantityToStock(t *testing.T) {
	store := newMemoryStore()
	store.setCart(t, 1, []model.CartEntry{{ProductID: 1, Quantity: 10}})
	catalog := &mockCatalog{products: map[int64]model.Product{
		1: {ID: 1, Name: "抹茶ラテ", StockStatus: model.StockStatusInStock, StockQuantity: intPtr(3)},
	}}
	runner := newTestRunner()
	r := newTestReconciler(store, catalog, runner, nil)

	got, err := r.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("Reconcile がエラーを返した: %v", err)
	}
	runner.Wait()

	if len(got.Items) != 1 || got.Items[0].ProductID != 1 || got.Items[0].Quantity != 3 {
		t.Errorf("items = %+v, want [{1 3}]", got.Items)
	}
	if len(got.Messages) != 1 || !strings.Contains(got.Messages[0], "抹茶ラテ") {
		t.Errorf("messages = %v", got.Messages)
	}
	if !got.Changed {
		t.Error("changed = false, want true")
	}
	stored := store.storedCart(t, 1)
	if len(stored) != 1 || stored[0].Quantity != 3 {
		t.Errorf("保存済みカート = %+v, want [{1 3}]", stored)
	}
}

func TestReconcile_SecondCallIsUnchanged(t *testing.T) {
	store := newMemoryStore()
	store.setCart(t, 1, []model.CartEntry{
		{ProductID: 1, Quantity: 10},
		{ProductID: 2, Quantity: 1},
	})
	catalog := &mockCatalog{products: map[int64]model.Product{
		1: {ID: 1, Name: "A", StockStatus: model.StockStatusInStock, StockQuantity: intPtr(3)},
	}}
	runner := newTestRunner()
	rec := &mockRecorder{}
	r := newTestReconciler(store, catalog, runner, rec)

	first, err := r.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("1回目の Reconcile がエラーを返した: %v", err)
	}
	runner.Wait()

	second, err := r.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("2回目の Reconcile がエラーを返した: %v", err)
	}
	runner.Wait()

	if !first.Changed || len(first.Messages) != 2 {
		t.Errorf("1回目 = %+v, want changed with 2 messages", first)
	}
	if second.Changed || len(second.Messages) != 0 {
		t.Errorf("2回目 = %+v, want unchanged without messages", second)
	}
	if len(second.Items) != 1 || second.Items[0] != first.Items[0] {
		t.Errorf("2回目の items = %+v, want %+v", second.Items, first.Items)
	}
	if store.updates != 1 {
		t.Errorf("保存回数 = %d, want 1", store.updates)
	}
	if len(rec.outcomes) != 2 || rec.outcomes[0] != OutcomeChanged || rec.outcomes[1] != OutcomeUnchanged {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
}

func TestReconcile_SingleBatchedCatalogCall(t *testing.T) {
	store := newMemoryStore()
	store.setCart(t, 1, []model.CartEntry{
		{ProductID: 3, Quantity: 1},
		{ProductID: 1, Quantity: 1},
		{ProductID: 3, Quantity: 2, VariationID: 31},
	})
	catalog := &mockCatalog{products: map[int64]model.Product{
		1: {ID: 1, StockStatus: model.StockStatusInStock},
		3: {ID: 3, StockStatus: model.StockStatusInStock},
	}}
	r := newTestReconciler(store, catalog, newTestRunner(), nil)

	got, err := r.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("Reconcile がエラーを返した: %v", err)
	}
	if catalog.calls != 1 {
		t.Errorf("カタログ呼び出し回数 = %d, want 1", catalog.calls)
	}
	if len(catalog.lastIDs) != 2 || catalog.lastIDs[0] != 3 || catalog.lastIDs[1] != 1 {
		t.Errorf("ids = %v, want [3 1]", catalog.lastIDs)
	}
	if got.Changed || len(got.Items) != 3 {
		t.Errorf("result = %+v, want 3 unchanged items", got)
	}
	if got.Items[2].VariationID != 31 {
		t.Errorf("variation_id = %d, want 31", got.Items[2].VariationID)
	}
}

func TestReconcile_PreservesOrderAndAvailability(t *testing.T) {
	store := newMemoryStore()
	store.setCart(t, 1, []model.CartEntry{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
		{ProductID: 3, Quantity: 50},
		{ProductID: 4, Quantity: 5},
		{ProductID: 5, Quantity: 4},
	})
	catalog := &mockCatalog{products: map[int64]model.Product{
		1: {ID: 1, StockStatus: model.StockStatusInStock},
		2: {ID: 2, Name: "売り切れ品", StockStatus: model.StockStatusOutOfStock},
		3: {ID: 3, StockStatus: model.StockStatusOnBackorder, StockQuantity: intPtr(0)},
		4: {ID: 4, Name: "在庫ゼロ", StockStatus: model.StockStatusInStock, StockQuantity: intPtr(0)},
		5: {ID: 5, StockStatus: model.StockStatusInStock, StockQuantity: intPtr(4)},
	}}
	r := newTestReconciler(store, catalog, newTestRunner(), nil)

	got, err := r.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("Reconcile がエラーを返した: %v", err)
	}

	want := []model.CartEntry{
		{ProductID: 1, Quantity: 2},
		{ProductID: 5, Quantity: 4},
	}
	if len(got.Items) != len(want) {
		t.Fatalf("items = %+v, want %+v", got.Items, want)
	}
	for i := range want {
		if got.Items[i] != want[i] {
			t.Errorf("items[%d] = %+v, want %+v", i, got.Items[i], want[i])
		}
	}
	if len(got.Messages) != 3 {
		t.Fatalf("messages = %v, want 3件", got.Messages)
	}
	if !strings.Contains(got.Messages[0], "売り切れ品") || !strings.Contains(got.Messages[1], "商品 #3") || !strings.Contains(got.Messages[2], "在庫ゼロ") {
		t.Errorf("messages = %v", got.Messages)
	}
}

func TestReconcile_ClampsBackorderToStock(t *testing.T) {
	store := newMemoryStore()
	store.setCart(t, 1, []model.CartEntry{{ProductID: 1, Quantity: 10}})
	catalog := &mockCatalog{products: map[int64]model.Product{
		1: {ID: 1, Name: "取り寄せ豆", StockStatus: model.StockStatusOnBackorder, StockQuantity: intPtr(3)},
	}}
	runner := newTestRunner()
	r := newTestReconciler(store, catalog, runner, nil)

	got, err := r.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("Reconcile がエラーを返した: %v", err)
	}
	runner.Wait()

	if len(got.Items) != 1 || got.Items[0].ProductID != 1 || got.Items[0].Quantity != 3 {
		t.Errorf("items = %+v, want [{1 3}]", got.Items)
	}
	if len(got.Messages) != 1 || !strings.Contains(got.Messages[0], "取り寄せ豆") {
		t.Errorf("messages = %v, want 1件", got.Messages)
	}
	if !got.Changed {
		t.Error("changed = false, want true")
	}
}

func TestReconcile_BackorderWithoutStockCountIsKept(t *testing.T) {
	store := newMemoryStore()
	store.setCart(t, 1, []model.CartEntry{{ProductID: 1, Quantity: 10}})
	catalog := &mockCatalog{products: map[int64]model.Product{
		1: {ID: 1, StockStatus: model.StockStatusOnBackorder},
	}}
	r := newTestReconciler(store, catalog, newTestRunner(), nil)

	got, err := r.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("Reconcile がエラーを返した: %v", err)
	}
	if got.Changed || len(got.Items) != 1 || got.Items[0].Quantity != 10 {
		t.Errorf("result = %+v, want unchanged [{1 10}]", got)
	}
}

func TestReconcile_InvalidEntryReportsRemoval(t *testing.T) {
	store := newMemoryStore()
	store.setCart(t, 1, []model.CartEntry{
		{ProductID: 1, Quantity: 10},
		{ProductID: 0, Quantity: 2},
	})
	catalog := &mockCatalog{products: map[int64]model.Product{
		1: {ID: 1, StockStatus: model.StockStatusInStock},
	}}
	runner := newTestRunner()
	r := newTestReconciler(store, catalog, runner, nil)

	got, err := r.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("Reconcile がエラーを返した: %v", err)
	}
	runner.Wait()

	if len(got.Items) != 1 || got.Items[0].ProductID != 1 {
		t.Errorf("items = %+v, want [{1 10}]", got.Items)
	}
	if len(got.Messages) != 1 {
		t.Errorf("messages = %v, want 1件", got.Messages)
	}
	if !got.Changed {
		t.Error("changed = false, want true")
	}
}

func TestReconcile_AcceptsJSONStringValue(t *testing.T) {
	store := newMemoryStore()
	encoded, _ := json.Marshal(`[{"product_id":7,"quantity":2}]`)
	store.meta[1] = encoded
	catalog := &mockCatalog{products: map[int64]model.Product{
		7: {ID: 7, StockStatus: model.StockStatusInStock},
	}}
	r := newTestReconciler(store, catalog, newTestRunner(), nil)

	got, err := r.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("Reconcile がエラーを返した: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].ProductID != 7 || got.Items[0].Quantity != 2 {
		t.Errorf("items = %+v", got.Items)
	}
}

func TestReconcile_CatalogErrorFailsWholeOperation(t *testing.T) {
	store := newMemoryStore()
	store.setCart(t, 1, []model.CartEntry{{ProductID: 1, Quantity: 1}})
	catalog := &mockCatalog{err: context.DeadlineExceeded}
	runner := newTestRunner()
	r := newTestReconciler(store, catalog, runner, nil)

	got, err := r.Reconcile(context.Background(), 1)
	if got != nil {
		t.Errorf("result = %+v, want nil", got)
	}
	if !errors.Is(err, ErrCatalogUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want ErrCatalogUnavailable wrapping DeadlineExceeded", err)
	}
	runner.Wait()
	if store.updates != 0 {
		t.Errorf("保存回数 = %d, want 0", store.updates)
	}
}

func TestReconcile_CustomerErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		store := newMemoryStore()
		store.missing = true
		r := newTestReconciler(store, &mockCatalog{}, newTestRunner(), nil)

		_, err := r.Reconcile(context.Background(), 1)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeCustomerNotFound {
			t.Errorf("err = %v, want CUSTOMER_NOT_FOUND", err)
		}
	})

	t.Run("directory error", func(t *testing.T) {
		store := newMemoryStore()
		store.getErr = errors.New("connection reset")
		r := newTestReconciler(store, &mockCatalog{}, newTestRunner(), nil)

		_, err := r.Reconcile(context.Background(), 1)
		if !errors.Is(err, customer.ErrDirectory) {
			t.Errorf("err = %v, want ErrDirectory", err)
		}
	})
}

func TestReconcile_PersistAfterShutdownIsSkipped(t *testing.T) {
	store := newMemoryStore()
	store.setCart(t, 1, []model.CartEntry{{ProductID: 1, Quantity: 1}})
	runner := newTestRunner()
	if err := runner.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown がエラーを返した: %v", err)
	}
	r := newTestReconciler(store, &mockCatalog{}, runner, nil)

	got, err := r.Reconcile(context.Background(), 1)
	if err != nil {
		t.Fatalf("Reconcile がエラーを返した: %v", err)
	}
	if !got.Changed {
		t.Error("changed = false, want true")
	}
	if store.updates != 0 {
		t.Errorf("保存回数 = %d, want 0", store.updates)
	}
}
