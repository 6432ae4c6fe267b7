// Package repo provides a generic single-table CRUD repository over
// Postgres. Entities whose writes span multiple tables or need
// upsert/compare-and-set semantics get bespoke SQL in internal/store
// instead; this seam is only for plain row-per-entity access.
package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository is the generic CRUD contract PostgresRepo satisfies. Callers
// that only read and write whole rows depend on this interface so tests can
// substitute an in-memory map.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Create(ctx context.Context, entity T) (T, error)
	Update(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id ID) error
}

// ListOpts controls pagination and equality filtering for List. Filter keys
// are column names and must come from code, never from request input — they
// are interpolated into the query text.
type ListOpts struct {
	Offset int
	Limit  int
	Filter map[string]any
}

// Scanner reads one row into a value of T. Implementations live next to the
// concrete entity (see internal/store) so this package stays entity-agnostic.
type Scanner[T any] func(pgx.Row) (T, error)

// Binder produces the positional arguments for an insert or update of an
// entity, in the same order as PostgresRepoOpts.Columns.
type Binder[T any] func(T) []any

// Conn is the narrow slice of *pgxpool.Pool (or a transaction) this package
// depends on; tests substitute a fake here instead of standing up a real
// database.
type Conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepo is a Repository[T,ID] backed by a single table.
type PostgresRepo[T any, ID comparable] struct {
	pool     Conn
	table    string
	idColumn string
	columns  []string // all columns, in insert/update order, including id
	scan     Scanner[T]
	bind     Binder[T]
}

// PostgresRepoOpts configures a PostgresRepo.
type PostgresRepoOpts[T any, ID comparable] struct {
	Table    string
	IDColumn string
	Columns  []string
	Scan     Scanner[T]
	Bind     Binder[T]
}

// NewPostgresRepo builds a PostgresRepo for one table. pool is typically a
// *pgxpool.Pool, but any value satisfying Conn works — a pgx.Tx, for
// instance.
func NewPostgresRepo[T any, ID comparable](pool Conn, opts PostgresRepoOpts[T, ID]) *PostgresRepo[T, ID] {
	idCol := opts.IDColumn
	if idCol == "" {
		idCol = "id"
	}
	return &PostgresRepo[T, ID]{
		pool:     pool,
		table:    opts.Table,
		idColumn: idCol,
		columns:  opts.Columns,
		scan:     opts.Scan,
		bind:     opts.Bind,
	}
}

// Get fetches one row by id.
func (r *PostgresRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var zero T
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", strings.Join(r.columns, ", "), r.table, r.idColumn)
	row := r.pool.QueryRow(ctx, query, id)
	v, err := r.scan(row)
	if err != nil {
		return zero, err
	}
	return v, nil
}

// List fetches rows with simple equality filters and offset/limit pagination.
func (r *PostgresRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(r.columns, ", "), r.table)
	args := make([]any, 0, len(opts.Filter)+2)
	if len(opts.Filter) > 0 {
		clauses := make([]string, 0, len(opts.Filter))
		i := 1
		for k, v := range opts.Filter {
			clauses = append(clauses, fmt.Sprintf("%s = $%d", k, i))
			args = append(args, v)
			i++
		}
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s LIMIT %d OFFSET %d", r.idColumn, nonZero(opts.Limit, 100), opts.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Create inserts a new row built from entity via Bind. The first bound value
// MUST be the id.
func (r *PostgresRepo[T, ID]) Create(ctx context.Context, entity T) (T, error) {
	args := r.bind(entity)
	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		r.table, strings.Join(r.columns, ", "), strings.Join(placeholders, ", "), strings.Join(r.columns, ", "))
	row := r.pool.QueryRow(ctx, query, args...)
	return r.scan(row)
}

// Update overwrites a row's non-id columns by id.
func (r *PostgresRepo[T, ID]) Update(ctx context.Context, entity T) (T, error) {
	args := r.bind(entity)
	sets := make([]string, 0, len(r.columns)-1)
	j := 1
	var idArg any
	for i, col := range r.columns {
		if col == r.idColumn {
			idArg = args[i]
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, j))
		j++
	}
	updateArgs := make([]any, 0, len(args))
	for i, col := range r.columns {
		if col == r.idColumn {
			continue
		}
		updateArgs = append(updateArgs, args[i])
	}
	updateArgs = append(updateArgs, idArg)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING %s",
		r.table, strings.Join(sets, ", "), r.idColumn, len(updateArgs), strings.Join(r.columns, ", "))
	row := r.pool.QueryRow(ctx, query, updateArgs...)
	return r.scan(row)
}

// Delete removes a row by id.
func (r *PostgresRepo[T, ID]) Delete(ctx context.Context, id ID) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", r.table, r.idColumn)
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func nonZero(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
