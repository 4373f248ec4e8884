// Package customer はTelegram利用者とWooCommerce顧客レコードの対応付けを提供する。
//
// 顧客レコードの一意性はWooCommerce側のメールアドレス・ユーザー名の一意制約で担保する。
// 複数プロセスで同時に初回アクセスが発生しても、作成の競合をエラーコードで検出して
// 再検索することで同じ顧客IDに収束する。ローカルなロックは使用しない。
package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hitoshi/tgshop/internal/auth"
	"github.com/hitoshi/tgshop/internal/model"
	"github.com/hitoshi/tgshop/internal/woocommerce"
)

const (
	// EmailDomain は合成メールアドレスのドメイン。
	EmailDomain = "telegram.user"
	// MetaTelegramUserID は顧客からTelegram利用者IDを逆引きするメタデータキー。
	MetaTelegramUserID = "_telegram_user_id"
	// MetaTelegramUsername はTelegramのユーザー名を保持するメタデータキー。
	MetaTelegramUsername = "_telegram_username"

	defaultFirstName = "Telegram User"
)

// 解決失敗の種別。呼び出し元は errors.Is で判定する。
var (
	// ErrTransient は作成競合後の再検索でも顧客が見つからなかったことを示す。リクエスト全体の再試行で解消し得る。
	ErrTransient = errors.New("customer resolution failed transiently")
	// ErrDirectory はWooCommerceの顧客APIが失敗したことを示す。
	ErrDirectory = errors.New("customer directory error")
)

// conflictCodes は一意制約違反を示すWooCommerceのエラーコード。
var conflictCodes = map[string]bool{
	"registration-error-email-exists":    true,
	"registration-error-username-exists": true,
}

// 解決結果のメトリクスラベル
const (
	OutcomeCacheHit       = "cache_hit"
	OutcomeFound          = "found"
	OutcomeCreated        = "created"
	OutcomeRaceRecovered  = "race_recovered"
	OutcomeTransient      = "transient"
	OutcomeDirectoryError = "directory_error"
)

// Directory はWooCommerceの顧客APIのうちResolverが利用する部分。
type Directory interface {
	FindCustomerByEmail(ctx context.Context, email string) (*model.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*model.Customer, error)
	CreateCustomer(ctx context.Context, in *model.CustomerCreate) (*model.Customer, error)
	UpdateCustomer(ctx context.Context, id int64, in *model.CustomerUpdate) (*model.Customer, error)
}

// TaskRunner はリクエストから切り離したタスクの実行インターフェース。
type TaskRunner interface {
	Go(name string, fn func(ctx context.Context) error) error
}

// IDCache はTelegram利用者IDから顧客IDへの対応のキャッシュ。
type IDCache interface {
	Get(ctx context.Context, telegramUserID int64) (int64, bool, error)
	Set(ctx context.Context, telegramUserID, customerID int64) error
}

// Recorder は解決結果のメトリクス記録インターフェース。
type Recorder interface {
	RecordResolution(outcome string)
}

// ResolverConfig はResolverの任意の依存をまとめる。
type ResolverConfig struct {
	Cache    IDCache
	Recorder Recorder
}

// Resolver は検証済みのTelegram利用者を顧客IDに解決する。
type Resolver struct {
	dir      Directory
	tasks    TaskRunner
	cache    IDCache
	recorder Recorder
	logger   *slog.Logger
}

// NewResolver は新しいResolverを生成する。
func NewResolver(dir Directory, tasks TaskRunner, logger *slog.Logger, cfg ResolverConfig) *Resolver {
	return &Resolver{
		dir:      dir,
		tasks:    tasks,
		cache:    cfg.Cache,
		recorder: cfg.Recorder,
		logger:   logger,
	}
}

// Email はTelegram利用者IDから合成メールアドレスを生成する。
func Email(telegramUserID int64) string {
	return fmt.Sprintf("tg_%d@%s", telegramUserID, EmailDomain)
}

// Username はTelegram利用者IDからWooCommerceのユーザー名を生成する。
func Username(telegramUserID int64) string {
	return fmt.Sprintf("tg_user_%d", telegramUserID)
}

// Resolve はClaimの利用者に対応する顧客IDを返す。顧客が存在しない場合は作成する。
// 同じ利用者に対する呼び出しは、同時に行われても同じIDに収束する。
func (r *Resolver) Resolve(ctx context.Context, claim *auth.Claim) (int64, error) {
	tgID := claim.UserID

	if id, ok := r.cachedID(ctx, tgID); ok {
		r.record(OutcomeCacheHit)
		return id, nil
	}

	email := Email(tgID)

	// 1. 合成メールアドレスで検索
	existing, err := r.dir.FindCustomerByEmail(ctx, email)
	if err != nil {
		r.record(OutcomeDirectoryError)
		return 0, fmt.Errorf("%w: 顧客の検索に失敗しました: %w", ErrDirectory, err)
	}
	if existing != nil {
		// 修復が必要な顧客はキャッシュしない。修復が反映されるまでは毎回ディレクトリで確認する
		if !r.repairBackReference(existing, tgID) {
			r.remember(ctx, tgID, existing.ID)
		}
		r.record(OutcomeFound)
		return existing.ID, nil
	}

	// 2. 見つからなければ作成
	created, err := r.dir.CreateCustomer(ctx, newCustomerInput(claim))
	if err == nil {
		r.logger.Info("顧客を作成しました",
			slog.Int64("telegram_user_id", tgID),
			slog.Int64("customer_id", created.ID),
		)
		r.remember(ctx, tgID, created.ID)
		r.record(OutcomeCreated)
		return created.ID, nil
	}

	if !conflictCodes[woocommerce.RemoteCode(err)] {
		r.record(OutcomeDirectoryError)
		return 0, fmt.Errorf("%w: 顧客の作成に失敗しました: %w", ErrDirectory, err)
	}

	// 3. 一意制約の競合: 並行する解決処理が先に作成したとみなして1回だけ再検索する
	r.logger.Warn("顧客作成が競合したため再検索します",
		slog.Int64("telegram_user_id", tgID),
		slog.String("code", woocommerce.RemoteCode(err)),
	)
	existing, err = r.dir.FindCustomerByEmail(ctx, email)
	if err != nil {
		r.record(OutcomeDirectoryError)
		return 0, fmt.Errorf("%w: 競合後の再検索に失敗しました: %w", ErrDirectory, err)
	}
	if existing == nil {
		r.record(OutcomeTransient)
		return 0, fmt.Errorf("%w: telegram_user_id=%d", ErrTransient, tgID)
	}

	r.remember(ctx, tgID, existing.ID)
	r.record(OutcomeRaceRecovered)
	return existing.ID, nil
}

// repairBackReference は逆引きメタデータが欠けている顧客にバックグラウンドで付与する。
// 修復を開始した場合はtrueを返す。修復の失敗は現在のリクエストの結果に影響しない。
func (r *Resolver) repairBackReference(c *model.Customer, tgID int64) bool {
	if meta, ok := c.Meta(MetaTelegramUserID); ok && meta.StringValue() != "" {
		return false
	}

	customerID := c.ID
	r.logger.Warn("顧客に _telegram_user_id がないため付与します",
		slog.Int64("customer_id", customerID),
		slog.Int64("telegram_user_id", tgID),
	)
	update := &model.CustomerUpdate{
		MetaData: []model.MetaData{model.StringMeta(MetaTelegramUserID, strconv.FormatInt(tgID, 10))},
	}
	r.tasks.Go("repair_customer_meta", func(ctx context.Context) error {
		if _, err := r.dir.UpdateCustomer(ctx, customerID, update); err != nil {
			return fmt.Errorf("customer_id=%d のメタデータ修復に失敗しました: %w", customerID, err)
		}
		return nil
	})
	return true
}

func (r *Resolver) cachedID(ctx context.Context, tgID int64) (int64, bool) {
	if r.cache == nil {
		return 0, false
	}
	id, ok, err := r.cache.Get(ctx, tgID)
	if err != nil {
		r.logger.Warn("顧客IDキャッシュの読み取りに失敗しました",
			slog.Int64("telegram_user_id", tgID),
			slog.String("error", err.Error()),
		)
		return 0, false
	}
	return id, ok
}

func (r *Resolver) remember(ctx context.Context, tgID, customerID int64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, tgID, customerID); err != nil {
		r.logger.Warn("顧客IDキャッシュの書き込みに失敗しました",
			slog.Int64("telegram_user_id", tgID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Resolver) record(outcome string) {
	if r.recorder != nil {
		r.recorder.RecordResolution(outcome)
	}
}

// newCustomerInput はClaimから顧客作成ペイロードを組み立てる。
func newCustomerInput(claim *auth.Claim) *model.CustomerCreate {
	tgID := claim.UserID
	email := Email(tgID)

	firstName := claim.FirstName
	if firstName == "" {
		firstName = defaultFirstName
	}
	lastName := claim.LastName
	if lastName == "" {
		lastName = fmt.Sprintf("#%d", tgID)
	}

	return &model.CustomerCreate{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Username:  Username(tgID),
		Billing: &model.Address{
			FirstName: firstName,
			LastName:  lastName,
			Email:     email,
		},
		Shipping: &model.Address{
			FirstName: firstName,
			LastName:  lastName,
		},
		MetaData: []model.MetaData{
			model.StringMeta(MetaTelegramUserID, strconv.FormatInt(tgID, 10)),
			model.StringMeta(MetaTelegramUsername, claim.Username),
		},
	}
}
