// Package repository содержит хранение снимков журнала в PostgreSQL и в памяти.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/clinic-ledger/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrDuplicateMobile возвращается, если снимок содержит повторяющийся номер телефона.
	ErrDuplicateMobile = errors.New("duplicate mobile number in snapshot")
	// ErrClosed возвращается при обращении к закрытому хранилищу.
	ErrClosed = errors.New("repository is closed")
)

// Ключ advisory-блокировки, сериализующей запись снимков.
const snapshotLockKey int64 = 0x636c696e6963

// PostgresRepository хранит снимок журнала в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
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

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(r.delays) {
			break
		}

		timer := time.NewTimer(r.delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// LoadSnapshot читает полное состояние журнала.
func (r *PostgresRepository) LoadSnapshot(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		s := model.Snapshot{}
		if s.Users, err = loadUsers(ctx, tx); err != nil {
			return err
		}
		if s.Wallets, err = loadWallets(ctx, tx); err != nil {
			return err
		}
		if s.Transactions, err = loadTransactions(ctx, tx); err != nil {
			return err
		}
		if s.FamilyGroups, err = loadFamilyGroups(ctx, tx); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		snap = s
		return nil
	})

	return snap, err
}

func loadUsers(ctx context.Context, tx pgx.Tx) ([]model.User, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, mobile, name, role, family_group_id, lifetime_spend, current_tier, joined_at
		 FROM users
		 ORDER BY position`,
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	res := make([]model.User, 0)
	for rows.Next() {
		var (
			u        model.User
			familyID *string
			role     string
			tier     string
			spend    int64
		)
		if err := rows.Scan(&u.ID, &u.Mobile, &u.Name, &role, &familyID, &spend, &tier, &u.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}

		u.Role = model.Role(role)
		u.CurrentTier = model.Tier(tier)
		u.LifetimeSpend = fromPaise(spend)
		u.JoinedAt = u.JoinedAt.UTC()
		if familyID != nil {
			u.FamilyGroupID = *familyID
		}
		res = append(res, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func loadWallets(ctx context.Context, tx pgx.Tx) ([]model.Wallet, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, user_id, balance, last_transaction_at
		 FROM wallets
		 ORDER BY position`,
	)
	if err != nil {
		return nil, fmt.Errorf("select wallets: %w", err)
	}
	defer rows.Close()

	res := make([]model.Wallet, 0)
	for rows.Next() {
		var w model.Wallet
		if err := rows.Scan(&w.ID, &w.UserID, &w.Balance, &w.LastTransactionAt); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		w.LastTransactionAt = w.LastTransactionAt.UTC()
		res = append(res, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func loadTransactions(ctx context.Context, tx pgx.Tx) ([]model.Transaction, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, wallet_id, amount_paid, points_earned, category, type, date, description
		 FROM transactions
		 ORDER BY position`,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	res := make([]model.Transaction, 0)
	for rows.Next() {
		var (
			t        model.Transaction
			paid     int64
			category string
			txType   string
		)
		if err := rows.Scan(&t.ID, &t.WalletID, &paid, &t.PointsEarned, &category, &txType, &t.Date, &t.Description); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		t.AmountPaid = fromPaise(paid)
		t.Category = model.Category(category)
		t.Type = model.TransactionType(txType)
		t.Date = t.Date.UTC()
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func loadFamilyGroups(ctx context.Context, tx pgx.Tx) ([]model.FamilyGroup, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, head_user_id, family_name
		 FROM family_groups
		 ORDER BY position`,
	)
	if err != nil {
		return nil, fmt.Errorf("select family groups: %w", err)
	}
	defer rows.Close()

	res := make([]model.FamilyGroup, 0)
	for rows.Next() {
		var g model.FamilyGroup
		if err := rows.Scan(&g.ID, &g.HeadUserID, &g.FamilyName); err != nil {
			return nil, fmt.Errorf("scan family group: %w", err)
		}
		res = append(res, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SaveSnapshot заменяет сохранённое состояние переданным снимком в одной транзакции.
// Запись сериализуется advisory-блокировкой, чтобы параллельные экземпляры не смешивали снимки.
func (r *PostgresRepository) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, snapshotLockKey); err != nil {
			return fmt.Errorf("lock snapshot: %w", err)
		}

		for _, table := range []string{"transactions", "wallets", "users", "family_groups"} {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		if err := copyRows(ctx, tx, "family_groups",
			[]string{"id", "position", "head_user_id", "family_name"},
			familyGroupRows(snap.FamilyGroups)); err != nil {
			return err
		}
		if err := copyRows(ctx, tx, "users",
			[]string{"id", "position", "mobile", "name", "role", "family_group_id", "lifetime_spend", "current_tier", "joined_at"},
			userRows(snap.Users)); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: %s", ErrDuplicateMobile, pgErr.Detail)
			}
			return err
		}
		if err := copyRows(ctx, tx, "wallets",
			[]string{"id", "position", "user_id", "balance", "last_transaction_at"},
			walletRows(snap.Wallets)); err != nil {
			return err
		}
		if err := copyRows(ctx, tx, "transactions",
			[]string{"id", "position", "wallet_id", "amount_paid", "points_earned", "category", "type", "date", "description"},
			transactionRows(snap.Transactions)); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

func copyRows(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy %s: %w", table, err)
	}
	return nil
}

func familyGroupRows(groups []model.FamilyGroup) [][]any {
	rows := make([][]any, 0, len(groups))
	for i, g := range groups {
		rows = append(rows, []any{g.ID, int64(i), g.HeadUserID, g.FamilyName})
	}
	return rows
}

func userRows(users []model.User) [][]any {
	rows := make([][]any, 0, len(users))
	for i, u := range users {
		var familyID *string
		if u.FamilyGroupID != "" {
			id := u.FamilyGroupID
			familyID = &id
		}
		rows = append(rows, []any{
			u.ID, int64(i), u.Mobile, u.Name, string(u.Role), familyID,
			toPaise(u.LifetimeSpend), string(u.CurrentTier), u.JoinedAt,
		})
	}
	return rows
}

func walletRows(wallets []model.Wallet) [][]any {
	rows := make([][]any, 0, len(wallets))
	for i, w := range wallets {
		rows = append(rows, []any{w.ID, int64(i), w.UserID, w.Balance, w.LastTransactionAt})
	}
	return rows
}

func transactionRows(txs []model.Transaction) [][]any {
	rows := make([][]any, 0, len(txs))
	for i, t := range txs {
		rows = append(rows, []any{
			t.ID, int64(i), t.WalletID, toPaise(t.AmountPaid), t.PointsEarned,
			string(t.Category), string(t.Type), t.Date, t.Description,
		})
	}
	return rows
}
