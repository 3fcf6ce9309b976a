package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/bookon/bookon-api/internal/models"
)

// ErrStaleStatus is returned when an optimistic status update matched no row
// because the record moved on since it was read.
var ErrStaleStatus = errors.New("status changed concurrently")

// whereBuilder accumulates positional SQL conditions.
type whereBuilder struct {
	conditions []string
	args       []interface{}
}

func (w *whereBuilder) next() int { return len(w.args) + 1 }

// add appends a condition with a single placeholder written as %d.
func (w *whereBuilder) add(cond string, arg interface{}) {
	w.conditions = append(w.conditions, strings.ReplaceAll(cond, "%d", fmt.Sprint(w.next())))
	w.args = append(w.args, arg)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// search matches term case-insensitively against any of columns as a
// literal substring; LIKE wildcards in term are escaped.
func (w *whereBuilder) search(term string, columns ...string) {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return
	}
	n := w.next()
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf(`LOWER(COALESCE(%s, '')) LIKE $%d ESCAPE '\'`, col, n)
	}
	w.conditions = append(w.conditions, "("+strings.Join(parts, " OR ")+")")
	w.args = append(w.args, "%"+likeEscaper.Replace(strings.ToLower(term))+"%")
}

// anyOf matches column against a list of values.
func (w *whereBuilder) anyOf(column string, values []string) {
	if len(values) == 0 {
		return
	}
	w.add(column+" = ANY($%d)", pq.Array(values))
}

// overlaps matches array columns sharing any element with values.
func (w *whereBuilder) overlaps(column string, values []string) {
	if len(values) == 0 {
		return
	}
	w.add(column+" && $%d", pq.Array(values))
}

// common applies the status and owner parts of a ListFilter.
func (w *whereBuilder) common(alias string, f models.ListFilter) {
	if f.Status != "" {
		w.add(alias+"status = $%d", f.Status)
	}
	if f.OwnerID != "" {
		w.add(alias+"created_by = $%d", f.OwnerID)
	}
}

func (w *whereBuilder) sql() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return " AND " + strings.Join(w.conditions, " AND ")
}

// withoutStatus returns a copy of f that keeps every filter except status, so
// per-status counts describe the whole filtered set.
func withoutStatus(f models.ListFilter) models.ListFilter {
	f.Status = ""
	return f
}

func orderClause(f models.ListFilter, allowed map[string]string, fallback string) string {
	column, ok := allowed[f.SortBy]
	if !ok {
		column = fallback
	}
	order := strings.ToUpper(f.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s", column, order)
}

func pageClause(f models.ListFilter) string {
	page, size := f.Normalize()
	return fmt.Sprintf(" LIMIT %d OFFSET %d", size, (page-1)*size)
}

type statusCount struct {
	Status string `db:"status"`
	Count  int    `db:"count"`
}

func toStats(rows []statusCount, statuses []string) models.StatusStats {
	stats := make(models.StatusStats, len(statuses))
	for _, s := range statuses {
		stats[s] = 0
	}
	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	return stats
}

// updateStatus moves id from one status to another and fails with
// ErrStaleStatus when the row was no longer in the expected status. extra may
// add assignments that reuse $2 (the timestamp).
func updateStatus(ctx context.Context, db sqlx.ExecerContext, table, id, from, to, extra string, now time.Time) error {
	query := fmt.Sprintf("UPDATE %s SET status = $1, updated_at = $2%s WHERE id = $3 AND status = $4", table, extra)
	res, err := db.ExecContext(ctx, query, to, now, id, from)
	if err != nil {
		return fmt.Errorf("update %s status: %w", table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s status: %w", table, err)
	}
	if affected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func deleteByID(ctx context.Context, db sqlx.ExecerContext, table, id string) error {
	res, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
