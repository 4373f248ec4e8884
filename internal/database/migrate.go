// Package database はPostgreSQL・Redisへの接続とスキーマのマイグレーションを提供する。
// ローカルに持つのは分析イベントだけで、顧客・商品・注文はWooCommerce側が正となる。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirty は前回のマイグレーションが途中で失敗し、手動での修復が必要な状態を表す。
var ErrDirty = errors.New("database schema is dirty")

// MigrationResult はマイグレーション前後のスキーマバージョン。
// バージョン0は未適用を表す。
type MigrationResult struct {
	From uint
	To   uint
}

// Applied はこの実行で1件以上のマイグレーションが適用されたかを返す。
func (r MigrationResult) Applied() bool {
	return r.To != r.From
}

// NewMigrator は埋め込みSQLを読み込むmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// ApplyMigrations は未適用のマイグレーションをすべて適用し、前後のバージョンを返す。
// スキーマがdirtyの場合は何も適用せずにErrDirtyを返す。
func ApplyMigrations(databaseURL string) (MigrationResult, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationResult{}, err
	}
	defer m.Close()

	from, err := currentVersion(m)
	if err != nil {
		return MigrationResult{}, err
	}
	result := MigrationResult{From: from, To: from}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return result, fmt.Errorf("failed to run migrations: %w", err)
	}

	to, err := currentVersion(m)
	if err != nil {
		return result, err
	}
	result.To = to
	return result, nil
}

// RunMigrations はすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(databaseURL string) error {
	_, err := ApplyMigrations(databaseURL)
	return err
}

func currentVersion(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("%w: version %d", ErrDirty, version)
	}
	return version, nil
}
