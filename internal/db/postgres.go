package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// migrationLockKey ключ advisory lock, под которым миграции накатывает один экземпляр.
const migrationLockKey = 7_340_112

// SnapshotTxOptions параметры read-only транзакции, читающей согласованный снимок.
var SnapshotTxOptions = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// NewPostgres подключается к PostgreSQL. Строки кошелька держатся под FOR UPDATE
// недолго, поэтому пул умеренный.
func NewPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: не удалось подключиться: %w", err)
	}
	conn.SetMaxOpenConns(50)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return conn, nil
}

// RunMigrations накатывает *.sql из каталога по порядку имён. Каждый файл
// выполняется в своей транзакции вместе с записью в schema_migrations.
// Несколько экземпляров сервера, стартующих одновременно, ждут друг друга на
// advisory lock.
func RunMigrations(ctx context.Context, conn *sqlx.DB, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("postgres: каталог миграций: %w", err)
	}
	sort.Strings(files)

	lockConn, err := conn.Connx(ctx)
	if err != nil {
		return fmt.Errorf("postgres: соединение для миграций: %w", err)
	}
	defer lockConn.Close()

	if _, err := lockConn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("postgres: блокировка миграций: %w", err)
	}
	defer lockConn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockKey)

	_, err = lockConn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("postgres: таблица миграций: %w", err)
	}

	var names []string
	if err := lockConn.SelectContext(ctx, &names, `SELECT name FROM schema_migrations`); err != nil {
		return fmt.Errorf("postgres: список миграций: %w", err)
	}
	applied := make(map[string]bool, len(names))
	for _, n := range names {
		applied[n] = true
	}

	for _, path := range files {
		name := filepath.Base(path)
		if applied[name] {
			continue
		}
		if err := applyMigration(ctx, lockConn, path, name); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, conn *sqlx.Conn, path, name string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("postgres: миграция %s: %w", name, err)
	}

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: миграция %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("postgres: миграция %s не выполнена: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		return fmt.Errorf("postgres: миграция %s не отмечена: %w", name, err)
	}
	return tx.Commit()
}
