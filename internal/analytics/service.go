// Package analytics はミニアプリの行動イベントの記録と集計を提供する。
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/hitoshi/tgshop/internal/model"
	"github.com/hitoshi/tgshop/internal/repository"
)

const (
	// MaxEventDataBytes はevent_dataの最大サイズ。
	MaxEventDataBytes = 4096
	// DefaultTopLimit は閲覧ランキングのデフォルト件数。
	DefaultTopLimit = 10
	// MaxTopLimit は閲覧ランキングの最大件数。
	MaxTopLimit = 100
)

// ErrStorage は分析データストアの障害を表す。
var ErrStorage = errors.New("analytics storage unavailable")

var eventTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// TaskRunner はバックグラウンドタスクの起動インターフェース。
type TaskRunner interface {
	Go(name string, fn func(ctx context.Context) error) error
}

// DailyActive は当日のアクティブ顧客数。
type DailyActive struct {
	Date string `json:"date"`
	DAU  int    `json:"dau"`
}

// Service は分析イベントのサービス層。
type Service struct {
	repo   repository.AnalyticsRepository
	tasks  TaskRunner
	logger *slog.Logger
	now    func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.AnalyticsRepository, tasks TaskRunner, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		tasks:  tasks,
		logger: logger,
		now:    time.Now,
	}
}

// Track はイベントを検証し、保存をバックグラウンドで実行する。
// 保存の失敗は呼び出し元に返さずログに記録する。
func (s *Service) Track(customerID int64, eventType string, eventData json.RawMessage) error {
	if !eventTypePattern.MatchString(eventType) {
		return model.NewInvalidRequestError("event_type は英小文字・数字・アンダースコアで64文字以内で指定してください")
	}

	data, err := normalizeEventData(eventData)
	if err != nil {
		return err
	}

	event := &model.AnalyticsEvent{
		CustomerID: customerID,
		EventType:  eventType,
		EventData:  data,
		CreatedAt:  s.now().UTC(),
	}

	err = s.tasks.Go("record_analytics_event", func(ctx context.Context) error {
		return s.repo.Insert(ctx, event)
	})
	if err != nil {
		s.logger.Warn("分析イベントの保存を開始できませんでした",
			slog.String("event_type", eventType),
			slog.Int64("customer_id", customerID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// DailyActiveCustomers はUTCの当日0時以降にイベントを送信した顧客数を返す。
func (s *Service) DailyActiveCustomers(ctx context.Context) (*DailyActive, error) {
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	count, err := s.repo.CountActiveCustomers(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return &DailyActive{Date: start.Format("2006-01-02"), DAU: count}, nil
}

// TopViewedProducts は閲覧数の多い商品を返す。limitが0以下の場合はデフォルト件数を使用する。
func (s *Service) TopViewedProducts(ctx context.Context, limit int) ([]model.ProductViews, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	if limit > MaxTopLimit {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("limit は%d以下で指定してください", MaxTopLimit))
	}

	top, err := s.repo.TopViewedProducts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if top == nil {
		top = []model.ProductViews{}
	}
	return top, nil
}

// normalizeEventData はevent_dataがJSONオブジェクトであることを検証する。空の場合は{}とする。
func normalizeEventData(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}"), nil
	}
	if len(trimmed) > MaxEventDataBytes {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("event_data は%dバイト以内で指定してください", MaxEventDataBytes))
	}

	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, model.NewInvalidRequestError("event_data はJSONオブジェクトで指定してください")
	}

	compact := new(bytes.Buffer)
	if err := json.Compact(compact, trimmed); err != nil {
		return nil, model.NewInvalidRequestError("event_data はJSONオブジェクトで指定してください")
	}
	return json.RawMessage(compact.Bytes()), nil
}
