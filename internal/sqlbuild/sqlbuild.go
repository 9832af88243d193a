// Package sqlbuild renders the SQLite statements issued by repositories.
//
// Identifiers are always double-quoted and values are always bound with ? placeholders.
package sqlbuild

import (
	"strconv"
	"strings"
)

// Quote returns name as a double-quoted SQLite identifier.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Cond is a single "column = ?" predicate. Or joins it to the previous predicate with OR
// instead of AND; it is ignored on the first predicate. Not renders "column <> ?".
type Cond struct {
	Column string
	Or     bool
	Not    bool
}

// Order is an ORDER BY clause on one column.
type Order struct {
	Column string
	Desc   bool
}

func (o *Order) String() string {
	if o == nil {
		return ""
	}
	dir := "ASC"
	if o.Desc {
		dir = "DESC"
	}
	return " ORDER BY " + Quote(o.Column) + " " + dir
}

func where(conds []Cond) string {
	if len(conds) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(" WHERE ")
	for i, c := range conds {
		if i > 0 {
			if c.Or {
				sb.WriteString(" OR ")
			} else {
				sb.WriteString(" AND ")
			}
		}
		sb.WriteString(Quote(c.Column))
		if c.Not {
			sb.WriteString(" <> ?")
		} else {
			sb.WriteString(" = ?")
		}
	}
	return sb.String()
}

// Select returns SELECT cols FROM table with optional predicates, ordering and limit. No cols
// selects *. A limit of zero or less means no limit.
func Select(table string, cols []string, conds []Cond, order *Order, limit int) string {
	list := "*"
	if len(cols) > 0 {
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = Quote(c)
		}
		list = strings.Join(quoted, ", ")
	}
	q := "SELECT " + list + " FROM " + Quote(table) + where(conds) + order.String()
	if limit > 0 {
		q += " LIMIT " + strconv.Itoa(limit)
	}
	return q
}

// Count returns SELECT COUNT(*) FROM table with optional predicates.
func Count(table string, conds []Cond) string {
	return "SELECT COUNT(*) FROM " + Quote(table) + where(conds)
}

// Update returns UPDATE table SET col = ?, ... with optional predicates.
func Update(table string, set []string, conds []Cond) string {
	assignments := make([]string, len(set))
	for i, col := range set {
		assignments[i] = Quote(col) + " = ?"
	}
	return "UPDATE " + Quote(table) + " SET " + strings.Join(assignments, ", ") + where(conds)
}

// Delete returns DELETE FROM table with optional predicates.
func Delete(table string, conds []Cond) string {
	return "DELETE FROM " + Quote(table) + where(conds)
}

// Insert returns INSERT INTO table (cols) VALUES (?, ...). With no columns it inserts a row of
// defaults.
func Insert(table string, cols []string) string {
	if len(cols) == 0 {
		return "INSERT INTO " + Quote(table) + " DEFAULT VALUES"
	}
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = Quote(col)
	}
	return "INSERT INTO " + Quote(table) + " (" + strings.Join(quoted, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
}

// DropTable returns DROP TABLE IF EXISTS table.
func DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + Quote(table)
}
