package memory

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
)

func sortedIDs[V any](m map[string]V) []string {
	return query.SortedKeys(m)
}

// selectDocs filters, orders and pages docs the way a listing request asks.
// Without a sort the order is creation time, then id.
func selectDocs[T any](docs []T, fields func(T) map[string]any, id func(T) string, q query.Params) ([]T, error) {
	type row struct {
		doc    T
		fields map[string]any
	}
	rows := make([]row, 0, len(docs))
	for _, d := range docs {
		f := fields(d)
		ok, err := matches(f, q.Filter)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row{doc: d, fields: f})
		}
	}

	order := q.Sort
	if len(order) == 0 {
		order = []query.SortField{{Field: "dateCreated"}}
	}
	for _, s := range order {
		v, ok := fields(*new(T))[s.Field]
		if !ok {
			return nil, &query.ParamError{Param: "sort", Err: fmt.Errorf("unknown field %s", s.Field)}
		}
		if _, isList := v.([]string); isList {
			return nil, &query.ParamError{Param: "sort", Err: fmt.Errorf("cannot sort by %s", s.Field)}
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, s := range order {
			c, _ := compare(rows[i].fields[s.Field], rows[j].fields[s.Field])
			if c == 0 {
				continue
			}
			if s.Desc {
				return c > 0
			}
			return c < 0
		}
		return id(rows[i].doc) < id(rows[j].doc)
	})

	start := int(min(q.Skip, int64(len(rows))))
	rows = rows[start:]
	if q.Limit > 0 && int64(len(rows)) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.doc)
	}
	return out, nil
}

func matches(doc map[string]any, f query.Filter) (bool, error) {
	for _, key := range query.SortedKeys(f) {
		val := f[key]
		switch key {
		case query.OpAnd, query.OpOr:
			clauses, err := query.Clauses(val)
			if err != nil {
				return false, &query.ParamError{Param: "where", Err: err}
			}
			matched := false
			for _, c := range clauses {
				ok, err := matches(doc, c)
				if err != nil {
					return false, err
				}
				if key == query.OpAnd && !ok {
					return false, nil
				}
				matched = matched || ok
			}
			if key == query.OpOr && !matched {
				return false, nil
			}
		default:
			fv, ok := doc[key]
			if !ok {
				return false, &query.ParamError{Param: "where", Err: fmt.Errorf("unknown field %s", key)}
			}
			ok, err := matchCondition(fv, query.Condition(val))
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func matchCondition(fv any, cond map[string]any) (bool, error) {
	for _, op := range query.SortedKeys(cond) {
		operand := cond[op]
		var ok bool
		switch op {
		case query.OpEq:
			ok = equals(fv, operand)
		case query.OpNe:
			ok = !equals(fv, operand)
		case query.OpIn, query.OpNin:
			list, _ := operand.([]any)
			found := slices.ContainsFunc(list, func(v any) bool { return equals(fv, v) })
			ok = found == (op == query.OpIn)
		case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
			c, same := compare(fv, operand)
			if same {
				switch op {
				case query.OpGt:
					ok = c > 0
				case query.OpGte:
					ok = c >= 0
				case query.OpLt:
					ok = c < 0
				case query.OpLte:
					ok = c <= 0
				}
			}
		case query.OpRegex:
			pat, fold := query.RegexPattern(cond)
			if fold {
				pat = "(?i)" + pat
			}
			re, err := regexp.Compile(pat)
			if err != nil {
				return false, &query.ParamError{Param: "where", Err: err}
			}
			switch x := fv.(type) {
			case string:
				ok = re.MatchString(x)
			case []string:
				ok = slices.ContainsFunc(x, re.MatchString)
			}
		case query.OpOptions:
			ok = true
		case query.OpExists:
			// every whitelisted field is always present
			ok, _ = operand.(bool)
		default:
			return false, &query.ParamError{Param: "where", Err: fmt.Errorf("unsupported operator %s", op)}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// equals treats a list field as matching when any element matches.
func equals(fv, operand any) bool {
	if list, ok := fv.([]string); ok {
		s, isStr := operand.(string)
		return isStr && slices.Contains(list, s)
	}
	c, ok := compare(fv, operand)
	return ok && c == 0
}

// compare orders a document value against an operand of the same kind.
func compare(fv, operand any) (int, bool) {
	switch x := fv.(type) {
	case string:
		s, ok := operand.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, s), true
	case bool:
		b, ok := operand.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == b:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	case time.Time:
		t, err := query.ToTime(operand)
		if err != nil {
			return 0, false
		}
		return x.Compare(t), true
	}
	return 0, false
}
