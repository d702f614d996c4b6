// Package sqlxrepos implements the core repositories with plain SQL over sqlx.
// Queries are written with "?" bind vars and rebound for the driver; statements stick to the
// SQL understood by both postgres and sqlite3.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/trezcool/aula/core"
)

// trapNoRowsErr maps sql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// isUniqueViolation reports whether err was raised by a unique constraint.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func get(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, exec, dest, exec.Rebind(query), args...)
}

func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, exec, dest, exec.Rebind(query), args...)
}

func execute(ctx context.Context, ex core.DBExecutor, query string, args ...interface{}) (int64, error) {
	res, err := ex.ExecContext(ctx, ex.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// expandIn expands slice args (for "IN (?)"); the query is rebound by the helpers above.
func expandIn(query string, args ...interface{}) (string, []interface{}, error) {
	return sqlx.In(query, args...)
}

func execNamed(ctx context.Context, ex core.DBExecutor, query string, arg interface{}) (int64, error) {
	res, err := sqlx.NamedExecContext(ctx, ex, query, arg)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// insertReturningID runs a named INSERT ... RETURNING id and returns the new ID.
func insertReturningID(ctx context.Context, exec core.DBExecutor, query string, arg interface{}) (int, error) {
	rows, err := sqlx.NamedQueryContext(ctx, exec, query, arg)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return 0, err
		}
		return 0, sql.ErrNoRows
	}
	var id int
	if err = rows.Scan(&id); err != nil {
		return 0, err
	}
	return id, rows.Err()
}

// where joins conditions with AND; an empty list matches everything.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func likeExpr(col string) string {
	return "LOWER(" + col + `) LIKE ? ESCAPE '\'`
}

// likePattern builds a case-insensitive "contains" pattern, matched with likeExpr.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}
