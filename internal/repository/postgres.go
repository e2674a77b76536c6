package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/depannfroid-reports/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const maxConns = 4

var retryDelays = []time.Duration{time.Second, 3 * time.Second, 5 * time.Second}

// PostgresRepository хранит черновики в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository подключается к базе и применяет встроенные миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	if cfg.MaxConns > maxConns {
		cfg.MaxConns = maxConns
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, retryable func(error) bool, fn func() error) error {
	var err error
	for i := 0; i <= len(retryDelays); i++ {
		err = fn()
		if err == nil || !retryable(err) || i == len(retryDelays) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelays[i]):
		}
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgerrcode.IsConnectionException(pgErr.Code)
	}

	return pgconn.SafeToRetry(err) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// isRetryableWrite допускает повтор записи только когда сервер гарантированно откатил транзакцию.
func isRetryableWrite(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// SaveDraft сохраняет снимок отчёта и строк счёта. Черновики только добавляются.
func (r *PostgresRepository) SaveDraft(ctx context.Context, d model.Draft) (model.Draft, error) {
	if d.Lines == nil {
		d.Lines = []model.InvoiceLine{}
	}

	err := r.withRetry(ctx, isRetryableWrite, func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO drafts (report_number, report, lines) VALUES ($1, $2, $3) RETURNING id, saved_at`,
			d.ReportNumber, d.Report, d.Lines,
		).Scan(&d.ID, &d.SavedAt)
	})
	if err != nil {
		return model.Draft{}, fmt.Errorf("insert draft: %w", err)
	}

	return d, nil
}

// ListDrafts возвращает все черновики в порядке сохранения.
func (r *PostgresRepository) ListDrafts(ctx context.Context) ([]model.Draft, error) {
	var drafts []model.Draft
	err := r.withRetry(ctx, isRetryable, func() error {
		var err error
		drafts, err = r.selectDrafts(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return drafts, nil
}

func (r *PostgresRepository) selectDrafts(ctx context.Context) ([]model.Draft, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, report_number, report, lines, saved_at
		 FROM drafts
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select drafts: %w", err)
	}
	defer rows.Close()

	drafts := []model.Draft{}
	for rows.Next() {
		var d model.Draft
		if err := rows.Scan(&d.ID, &d.ReportNumber, &d.Report, &d.Lines, &d.SavedAt); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		drafts = append(drafts, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return drafts, nil
}
