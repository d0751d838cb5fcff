// Package pgstore implements store.Database on top of pgx.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store issues table-level statements through a pool or an open transaction.
type Store struct {
	pool *pgxpool.Pool
	q    querier
	tx   pgx.Tx
}

// New wraps a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

// Select implements store.Database.
func (s *Store) Select(ctx context.Context, table string, filter store.Filter) ([]store.Record, error) {
	query, args := buildSelect(table, filter)
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, translate("select", table, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, translate("select", table, err)
	}
	out := make([]store.Record, 0, len(maps))
	for _, m := range maps {
		out = append(out, normalizeRow(m))
	}
	return out, nil
}

// SelectOne implements store.Database.
func (s *Store) SelectOne(ctx context.Context, table, id string) (store.Record, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE id = $1", ident(table))
	rows, err := s.q.Query(ctx, query, id)
	if err != nil {
		return nil, translate("select", table, err)
	}
	m, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, translate("select", table, err)
	}
	return normalizeRow(m), nil
}

// Insert implements store.Database. Inside a transaction the statement runs
// under a savepoint so a failed insert leaves the transaction usable.
func (s *Store) Insert(ctx context.Context, table string, data store.Record) (string, error) {
	query, args := buildInsert(table, data)
	if s.tx == nil {
		var id string
		if err := s.q.QueryRow(ctx, query, args...).Scan(&id); err != nil {
			return "", translate("insert", table, err)
		}
		return id, nil
	}
	sp, err := s.tx.Begin(ctx)
	if err != nil {
		return "", translate("insert", table, err)
	}
	var id string
	if err := sp.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		_ = sp.Rollback(ctx)
		return "", translate("insert", table, err)
	}
	if err := sp.Commit(ctx); err != nil {
		return "", translate("insert", table, err)
	}
	return id, nil
}

// Update implements store.Database.
func (s *Store) Update(ctx context.Context, table, id string, patch store.Record) error {
	if len(patch) == 0 {
		return nil
	}
	query, args := buildUpdate(table, id, patch)
	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return translate("update", table, err)
	}
	if tag.RowsAffected() == 0 {
		return &store.Error{Kind: store.KindNotFound, Op: "update", Table: table}
	}
	return nil
}

// Delete implements store.Database.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	tag, err := s.q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", ident(table)), id)
	if err != nil {
		return translate("delete", table, err)
	}
	if tag.RowsAffected() == 0 {
		return &store.Error{Kind: store.KindNotFound, Op: "delete", Table: table}
	}
	return nil
}

// RPC calls a SQL function using named argument notation.
func (s *Store) RPC(ctx context.Context, name string, params store.Record) (any, error) {
	query, args := buildCall(name, params)
	var result any
	if err := s.q.QueryRow(ctx, query, args...).Scan(&result); err != nil {
		return nil, translate("rpc", name, err)
	}
	return normalizeValue(result), nil
}

// WithTx opens a transaction, or joins the current one.
func (s *Store) WithTx(ctx context.Context, fn func(store.Database) error) error {
	if s.tx != nil {
		return fn(s)
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Store{pool: s.pool, q: tx, tx: tx})
	})
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func buildSelect(table string, filter store.Filter) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	fmt.Fprintf(&b, "SELECT * FROM %s", ident(table))
	conds := make([]string, 0, len(filter))
	for _, col := range store.Record(filter).Columns() {
		v := filter[col]
		if v == nil {
			conds = append(conds, fmt.Sprintf("%s IS NULL", ident(col)))
			continue
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", ident(col), len(args)))
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	return b.String(), args
}

func buildInsert(table string, data store.Record) (string, []any) {
	cols := data.Columns()
	names := make([]string, len(cols))
	holders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		names[i] = ident(col)
		holders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = data[col]
	}
	if len(cols) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING id::text", ident(table)), nil
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id::text",
		ident(table), strings.Join(names, ", "), strings.Join(holders, ", ")), args
}

func buildUpdate(table, id string, patch store.Record) (string, []any) {
	cols := patch.Columns()
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		args = append(args, patch[col])
		sets[i] = fmt.Sprintf("%s = $%d", ident(col), i+1)
	}
	args = append(args, id)
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", ident(table), strings.Join(sets, ", "), len(args)), args
}

func buildCall(name string, params store.Record) (string, []any) {
	cols := params.Columns()
	named := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		named[i] = fmt.Sprintf("%s => $%d", ident(col), i+1)
		args[i] = params[col]
	}
	return fmt.Sprintf("SELECT %s(%s)", ident(name), strings.Join(named, ", ")), args
}

func normalizeRow(m map[string]any) store.Record {
	rec := make(store.Record, len(m))
	for k, v := range m {
		rec[k] = normalizeValue(v)
	}
	return rec
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.Numeric:
		if !val.Valid || val.Int == nil {
			return nil
		}
		return decimal.NewFromBigInt(val.Int, val.Exp)
	default:
		return v
	}
}

func translate(op, table string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &store.Error{Kind: store.KindNotFound, Op: op, Table: table, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &store.Error{Kind: store.KindTimeout, Op: op, Table: table, Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			return &store.Error{Kind: store.KindForeignKeyViolation, Op: op, Table: table, Column: foreignKeyColumn(table, pgErr), Err: err}
		case "23505":
			return &store.Error{Kind: store.KindUniqueViolation, Op: op, Table: table, Column: pgErr.ColumnName, Err: err}
		case "57014":
			return &store.Error{Kind: store.KindTimeout, Op: op, Table: table, Err: err}
		}
	}
	return &store.Error{Kind: store.KindUnknown, Op: op, Table: table, Err: err}
}

// foreignKeyColumn derives the column from PostgreSQL's default <table>_<column>_fkey naming.
func foreignKeyColumn(table string, pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	name := strings.TrimSuffix(pgErr.ConstraintName, "_fkey")
	name = strings.TrimPrefix(name, table+"_")
	return name
}
