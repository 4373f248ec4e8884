package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/tgshop/internal/model"
)

// PostgresAnalyticsRepo はPostgreSQLを使用した分析イベントリポジトリ。
type PostgresAnalyticsRepo struct {
	db *sql.DB
}

// NewPostgresAnalyticsRepo はPostgresAnalyticsRepoを生成する。
func NewPostgresAnalyticsRepo(db *sql.DB) *PostgresAnalyticsRepo {
	return &PostgresAnalyticsRepo{db: db}
}

// Insert はイベントを1件保存する。
func (r *PostgresAnalyticsRepo) Insert(ctx context.Context, event *model.AnalyticsEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	data := []byte(event.EventData)
	if len(data) == 0 {
		data = []byte("{}")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO analytics_events (id, customer_id, event_type, event_data, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.CustomerID, event.EventType, data, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("分析イベントの保存に失敗しました: %w", err)
	}
	return nil
}

// CountActiveCustomers はsince以降にイベントを送信した顧客の数を返す。
func (r *PostgresAnalyticsRepo) CountActiveCustomers(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT customer_id) FROM analytics_events WHERE created_at >= $1`,
		since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("アクティブ顧客数の集計に失敗しました: %w", err)
	}
	return count, nil
}

// TopViewedProducts は商品閲覧イベントの多い順に商品IDと閲覧数を返す。
// event_data の product_id が無いイベントは集計対象外。
func (r *PostgresAnalyticsRepo) TopViewedProducts(ctx context.Context, limit int) ([]model.ProductViews, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT event_data->>'product_id' AS product_id, COUNT(*) AS views
		 FROM analytics_events
		 WHERE event_type = $1 AND event_data ? 'product_id'
		 GROUP BY product_id
		 ORDER BY views DESC, product_id ASC
		 LIMIT $2`,
		model.EventTypeViewProduct, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("閲覧ランキングの集計に失敗しました: %w", err)
	}
	defer rows.Close()

	result := make([]model.ProductViews, 0, limit)
	for rows.Next() {
		var pv model.ProductViews
		if err := rows.Scan(&pv.ProductID, &pv.Views); err != nil {
			return nil, fmt.Errorf("閲覧ランキングの読み取りに失敗しました: %w", err)
		}
		result = append(result, pv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("閲覧ランキングの読み取りに失敗しました: %w", err)
	}
	return result, nil
}
