package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"hittracker/internal/domain"
)

// DB is the sqlite-backed local store. A single connection serializes
// transactions, so every Update sees a consistent snapshot.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

var _ domain.Store = (*DB)(nil)

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	// Создаем директорию для БД, если её нет
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// Проверяем соединение
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	logger.Info().Str("path", path).Msg("Database initialized")

	return &DB{DB: sqlDB, path: path, logger: logger}, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

func createTables(db *sql.DB) error {
	queries := []string{
		// Работы, полученные с маркетплейса
		`CREATE TABLE IF NOT EXISTS work_items (
            id TEXT PRIMARY KEY,
            date TEXT NOT NULL,
            state TEXT NOT NULL,
            assignment_id TEXT NOT NULL DEFAULT '',
            requester_id TEXT NOT NULL DEFAULT '',
            requester_name TEXT NOT NULL DEFAULT '',
            title TEXT NOT NULL DEFAULT '',
            source TEXT NOT NULL DEFAULT '',
            reward_amount TEXT,
            reward_currency TEXT NOT NULL DEFAULT '',
            answer TEXT,
            feedback TEXT NOT NULL DEFAULT '',
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		// Сводки по бизнес-дням
		`CREATE TABLE IF NOT EXISTS day_summaries (
            date TEXT PRIMARY KEY,
            assigned INTEGER NOT NULL DEFAULT 0,
            returned INTEGER NOT NULL DEFAULT 0,
            abandoned INTEGER NOT NULL DEFAULT 0,
            submitted INTEGER NOT NULL DEFAULT 0,
            approved INTEGER NOT NULL DEFAULT 0,
            rejected INTEGER NOT NULL DEFAULT 0,
            pending INTEGER NOT NULL DEFAULT 0,
            paid INTEGER NOT NULL DEFAULT 0,
            earnings TEXT NOT NULL DEFAULT '0',
            baseline TEXT,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		// Журнал дней, запланированных к синхронизации
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id TEXT NOT NULL,
            task_type TEXT NOT NULL,
            date TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_work_items_date ON work_items(date)`,
		`CREATE INDEX IF NOT EXISTS idx_work_items_state ON work_items(state)`,
		`CREATE INDEX IF NOT EXISTS idx_work_items_requester ON work_items(requester_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_run_id ON sync_queue(run_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Update runs fn inside a read-write transaction.
func (db *DB) Update(ctx context.Context, fn func(tx domain.Tx) error) error {
	return db.run(ctx, true, fn)
}

// View runs fn inside a transaction that is always rolled back.
func (db *DB) View(ctx context.Context, fn func(tx domain.Tx) error) error {
	return db.run(ctx, false, fn)
}

func (db *DB) run(ctx context.Context, commit bool, fn func(tx domain.Tx) error) (err error) {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&tx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if !commit {
		return sqlTx.Rollback()
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
