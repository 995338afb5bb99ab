package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"kanban/api/internal/ordering"
)

const defaultTxRetries = 3

type Options struct {
	// TxRetries bounds how often a scope transaction is replayed after a
	// serialization failure or deadlock.
	TxRetries int
	Logger    *slog.Logger
}

// SQLStore is the persistence gateway for workflows, workflow statuses and
// stories on Postgres or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	retries int
	logger  *slog.Logger
}

func NewSQLStore(db *sql.DB, dialect Dialect, opts Options) *SQLStore {
	retries := opts.TxRetries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = defaultTxRetries
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{db: db, dialect: dialect, retries: retries, logger: logger}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Ping verifies the database connection is alive
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) q(query string) string {
	return s.dialect.rebind(query)
}

// inTx runs fn in a transaction, serializable on Postgres, and replays it
// when the database reports a retryable conflict.
func (s *SQLStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	var opts *sql.TxOptions
	if s.dialect == DialectPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	for attempt := 0; ; attempt++ {
		err := s.runTx(ctx, opts, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) || attempt >= s.retries {
			return err
		}
		s.logger.Warn("retrying transaction", "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 20 * time.Millisecond):
		}
	}
}

func (s *SQLStore) runTx(ctx context.Context, opts *sql.TxOptions, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_BUSY
	}
	return false
}

// Ordering returns the ordering gateway of one collection.
func (s *SQLStore) Ordering(c Collection) ordering.Store {
	return &scopeStore{store: s, collection: c}
}

type scopeStore struct {
	store      *SQLStore
	collection Collection
}

func (o *scopeStore) WithinScope(ctx context.Context, scope string, fn func(ordering.View) error) error {
	return o.store.inTx(ctx, func(tx *sql.Tx) error {
		view := &scopeView{tx: tx, dialect: o.store.dialect, c: o.collection}
		if err := view.lockScope(ctx, scope); err != nil {
			return err
		}
		return fn(view)
	})
}

type scopeView struct {
	tx      *sql.Tx
	dialect Dialect
	c       Collection
}

func (v *scopeView) lockSuffix() string {
	if v.dialect == DialectPostgres {
		return " " + v.c.lockFor
	}
	return ""
}

// lockScope takes row locks on every sibling of scope. SQLite serialises
// writers on its single connection instead.
func (v *scopeView) lockScope(ctx context.Context, scope string) error {
	if v.dialect != DialectPostgres {
		return nil
	}
	query := "SELECT t.id FROM " + v.c.from + " WHERE t." + v.c.scopeColumn + " = ? ORDER BY t.id" + v.lockSuffix()
	rows, err := v.tx.QueryContext(ctx, v.dialect.rebind(query), scope)
	if err != nil {
		return fmt.Errorf("lock scope %s: %w", scope, err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lock scope %s: %w", scope, err)
	}
	return nil
}

func (v *scopeView) query(ctx context.Context, query string, args ...any) ([]ordering.Item, error) {
	rows, err := v.tx.QueryContext(ctx, v.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]ordering.Item, 0)
	for rows.Next() {
		var item ordering.Item
		var order int64
		if err := rows.Scan(&item.ID, &item.Scope, &item.Group, &order); err != nil {
			return nil, fmt.Errorf("scan %s: %w", v.c.Name, err)
		}
		item.Order = ordering.Order(order)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", v.c.Name, err)
	}
	return items, nil
}

func (v *scopeView) Resolve(ctx context.Context, ids []string) ([]ordering.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := v.c.selectItems() + " WHERE t.id IN (" + placeholders(len(ids)) + ")" + v.lockSuffix()
	items, err := v.query(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", v.c.Name, err)
	}
	return items, nil
}

func (v *scopeView) Get(ctx context.Context, id string) (ordering.Item, bool, error) {
	items, err := v.query(ctx, v.c.selectItems()+" WHERE t.id = ?"+v.lockSuffix(), id)
	if err != nil {
		return ordering.Item{}, false, fmt.Errorf("get %s %s: %w", v.c.Name, id, err)
	}
	if len(items) == 0 {
		return ordering.Item{}, false, nil
	}
	return items[0], true, nil
}

func (v *scopeView) MaxOrder(ctx context.Context, scope string, exclude []string) (ordering.Order, bool, error) {
	where, args := v.siblings(scope, exclude)
	var maxOrder sql.NullInt64
	query := "SELECT MAX(t.sort_order) FROM " + v.c.table + " t WHERE " + where
	if err := v.tx.QueryRowContext(ctx, v.dialect.rebind(query), args...).Scan(&maxOrder); err != nil {
		return 0, false, fmt.Errorf("max order of %s: %w", scope, err)
	}
	if !maxOrder.Valid {
		return 0, false, nil
	}
	return ordering.Order(maxOrder.Int64), true, nil
}

func (v *scopeView) Neighbors(ctx context.Context, scope string, order ordering.Order, exclude []string) (ordering.Neighbors, error) {
	where, args := v.siblings(scope, exclude)
	var neighbors ordering.Neighbors

	prev, err := v.query(ctx,
		v.c.selectItems()+" WHERE "+where+" AND t.sort_order < ? ORDER BY t.sort_order DESC, t.id DESC LIMIT 1",
		append(args, int64(order))...)
	if err != nil {
		return neighbors, fmt.Errorf("previous sibling in %s: %w", scope, err)
	}
	if len(prev) > 0 {
		neighbors.Prev = &prev[0]
	}

	next, err := v.query(ctx,
		v.c.selectItems()+" WHERE "+where+" AND t.sort_order > ? ORDER BY t.sort_order ASC, t.id ASC LIMIT 1",
		append(args, int64(order))...)
	if err != nil {
		return neighbors, fmt.Errorf("next sibling in %s: %w", scope, err)
	}
	if len(next) > 0 {
		neighbors.Next = &next[0]
	}
	return neighbors, nil
}

func (v *scopeView) Following(ctx context.Context, scope string, order ordering.Order, exclude []string) ([]ordering.Item, error) {
	where, args := v.siblings(scope, exclude)
	items, err := v.query(ctx,
		v.c.selectItems()+" WHERE "+where+" AND t.sort_order > ? ORDER BY t.sort_order ASC, t.id ASC",
		append(args, int64(order))...)
	if err != nil {
		return nil, fmt.Errorf("following siblings in %s: %w", scope, err)
	}
	return items, nil
}

func (v *scopeView) List(ctx context.Context, scope string) ([]ordering.Item, error) {
	where, args := v.siblings(scope, nil)
	items, err := v.query(ctx, v.c.selectItems()+" WHERE "+where+" ORDER BY t.sort_order ASC, t.id ASC", args...)
	if err != nil {
		return nil, fmt.Errorf("list %s in %s: %w", v.c.Name, scope, err)
	}
	return items, nil
}

func (v *scopeView) Write(ctx context.Context, placements []ordering.Placement) error {
	update := "UPDATE " + v.c.table + " SET " + v.c.scopeColumn + " = ?, sort_order = ?, updated_at = CURRENT_TIMESTAMP"
	if v.c.versioned {
		update += ", version = version + 1"
	}
	update = v.dialect.rebind(update + " WHERE id = ?")

	for _, p := range placements {
		res, err := v.tx.ExecContext(ctx, update, p.Scope, int64(p.Order), p.ID)
		if err != nil {
			return fmt.Errorf("update %s %s: %w", v.c.Name, p.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n != 1 {
			return fmt.Errorf("update %s %s: %w", v.c.Name, p.ID, sql.ErrNoRows)
		}
		if v.c.cascade != "" && p.ScopeChanged() {
			if _, err := v.tx.ExecContext(ctx, v.dialect.rebind(v.c.cascade), p.Scope, p.ID); err != nil {
				return fmt.Errorf("cascade %s %s: %w", v.c.Name, p.ID, err)
			}
		}
	}
	return nil
}

// siblings builds the WHERE clause selecting the items of scope, minus exclude.
func (v *scopeView) siblings(scope string, exclude []string) (string, []any) {
	where := "t." + v.c.scopeColumn + " = ?"
	args := []any{scope}
	if len(exclude) > 0 {
		where += " AND t.id NOT IN (" + placeholders(len(exclude)) + ")"
		args = append(args, stringArgs(exclude)...)
	}
	return where, args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
