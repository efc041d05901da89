package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
)

type kind int

const (
	kindText kind = iota
	kindBool
	kindTime
	kindTextArray
)

type column struct {
	name string
	kind kind
}

// table maps the JSON field names accepted in where/sort to SQL columns.
type table struct {
	name    string
	columns map[string]column
}

var usersTable = table{
	name: "users",
	columns: map[string]column{
		"_id":          {"id", kindText},
		"name":         {"name", kindText},
		"email":        {"email", kindText},
		"pendingTasks": {"pending_tasks", kindTextArray},
		"dateCreated":  {"created_at", kindTime},
	},
}

var tasksTable = table{
	name: "tasks",
	columns: map[string]column{
		"_id":              {"id", kindText},
		"name":             {"name", kindText},
		"description":      {"description", kindText},
		"deadline":         {"deadline", kindTime},
		"completed":        {"completed", kindBool},
		"assignedUser":     {"assigned_user", kindText},
		"assignedUserName": {"assigned_user_name", kindText},
		"dateCreated":      {"created_at", kindTime},
	},
}

// sqlBuilder accumulates positional arguments while a statement is built.
type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func whereErr(format string, a ...any) error {
	return &query.ParamError{Param: "where", Err: fmt.Errorf(format, a...)}
}

// where renders f as a boolean SQL expression. Keys are visited in sorted
// order so the same filter always yields the same statement.
func (b *sqlBuilder) where(t table, f query.Filter) (string, error) {
	if len(f) == 0 {
		return "TRUE", nil
	}
	parts := make([]string, 0, len(f))
	for _, key := range query.SortedKeys(f) {
		val := f[key]
		switch key {
		case query.OpAnd, query.OpOr:
			clauses, err := query.Clauses(val)
			if err != nil {
				return "", &query.ParamError{Param: "where", Err: err}
			}
			sub := make([]string, 0, len(clauses))
			for _, c := range clauses {
				s, err := b.where(t, c)
				if err != nil {
					return "", err
				}
				sub = append(sub, s)
			}
			sep := " AND "
			if key == query.OpOr {
				sep = " OR "
			}
			parts = append(parts, "("+strings.Join(sub, sep)+")")
		default:
			col, ok := t.columns[key]
			if !ok {
				return "", whereErr("unknown field %s", key)
			}
			s, err := b.condition(col, query.Condition(val))
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " AND "), nil
}

func (b *sqlBuilder) condition(col column, cond map[string]any) (string, error) {
	parts := make([]string, 0, len(cond))
	for _, op := range query.SortedKeys(cond) {
		operand := cond[op]
		var s string
		switch op {
		case query.OpEq:
			s = b.equals(col, operand)
		case query.OpNe:
			s = "NOT " + b.equals(col, operand)
		case query.OpIn, query.OpNin:
			list, _ := operand.([]any)
			alts := make([]string, 0, len(list))
			for _, v := range list {
				alts = append(alts, b.equals(col, v))
			}
			s = "FALSE"
			if len(alts) > 0 {
				s = "(" + strings.Join(alts, " OR ") + ")"
			}
			if op == query.OpNin {
				s = "NOT " + s
			}
		case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
			v, ok := convert(col.kind, operand)
			if !ok || col.kind == kindTextArray {
				s = "FALSE"
				break
			}
			s = col.name + " " + comparators[op] + " " + b.arg(v)
		case query.OpRegex:
			pat, fold := query.RegexPattern(cond)
			match := "~"
			if fold {
				match = "~*"
			}
			switch col.kind {
			case kindText:
				s = col.name + " " + match + " " + b.arg(pat)
			case kindTextArray:
				s = "EXISTS (SELECT 1 FROM unnest(" + col.name + ") AS e WHERE e " + match + " " + b.arg(pat) + ")"
			default:
				s = "FALSE"
			}
		case query.OpOptions:
			continue
		case query.OpExists:
			// every whitelisted column is NOT NULL
			s = "FALSE"
			if want, _ := operand.(bool); want {
				s = "TRUE"
			}
		default:
			return "", whereErr("unsupported operator %s", op)
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return "TRUE", nil
	}
	return strings.Join(parts, " AND "), nil
}

var comparators = map[string]string{
	query.OpGt:  ">",
	query.OpGte: ">=",
	query.OpLt:  "<",
	query.OpLte: "<=",
}

// equals matches a scalar column by value and an array column by membership.
// A value of the wrong type matches nothing.
func (b *sqlBuilder) equals(col column, operand any) string {
	if col.kind == kindTextArray {
		s, ok := operand.(string)
		if !ok {
			return "FALSE"
		}
		return "(" + b.arg(s) + "::text = ANY(" + col.name + "))"
	}
	v, ok := convert(col.kind, operand)
	if !ok {
		return "FALSE"
	}
	return "(" + col.name + " = " + b.arg(v) + ")"
}

func convert(k kind, v any) (any, bool) {
	switch k {
	case kindText:
		s, ok := v.(string)
		return s, ok
	case kindBool:
		b, ok := v.(bool)
		return b, ok
	case kindTime:
		t, err := query.ToTime(v)
		return t, err == nil
	}
	return nil, false
}

// orderBy renders the sort keys with id as the final tie-break. Without keys
// rows come back in creation order.
func orderBy(t table, sort []query.SortField) (string, error) {
	if len(sort) == 0 {
		return "ORDER BY created_at ASC, id ASC", nil
	}
	parts := make([]string, 0, len(sort)+1)
	for _, s := range sort {
		col, ok := t.columns[s.Field]
		if !ok {
			return "", &query.ParamError{Param: "sort", Err: fmt.Errorf("unknown field %s", s.Field)}
		}
		if col.kind == kindTextArray {
			return "", &query.ParamError{Param: "sort", Err: fmt.Errorf("cannot sort by %s", s.Field)}
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		parts = append(parts, col.name+" "+dir)
	}
	parts = append(parts, "id ASC")
	return "ORDER BY " + strings.Join(parts, ", "), nil
}

// selectSQL builds a listing statement for t.
func selectSQL(t table, columns string, q query.Params) (string, []any, error) {
	b := &sqlBuilder{}
	cond, err := b.where(t, q.Filter)
	if err != nil {
		return "", nil, err
	}
	order, err := orderBy(t, q.Sort)
	if err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT " + columns + " FROM " + t.name + " WHERE " + cond + " " + order)
	if q.Skip > 0 {
		sb.WriteString(" OFFSET " + b.arg(q.Skip))
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + b.arg(q.Limit))
	}
	return sb.String(), b.args, nil
}

func countSQL(t table, f query.Filter) (string, []any, error) {
	b := &sqlBuilder{}
	cond, err := b.where(t, f)
	if err != nil {
		return "", nil, err
	}
	return "SELECT count(*) FROM " + t.name + " WHERE " + cond, b.args, nil
}
