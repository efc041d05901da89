package mongodb

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
)

type fieldKind int

const (
	fieldScalar fieldKind = iota
	fieldID
	fieldTime
	fieldList
)

var userFields = map[string]fieldKind{
	"_id":          fieldID,
	"name":         fieldScalar,
	"email":        fieldScalar,
	"pendingTasks": fieldList,
	"dateCreated":  fieldTime,
}

var taskFields = map[string]fieldKind{
	"_id":              fieldID,
	"name":             fieldScalar,
	"description":      fieldScalar,
	"deadline":         fieldTime,
	"completed":        fieldScalar,
	"assignedUser":     fieldScalar,
	"assignedUserName": fieldScalar,
	"dateCreated":      fieldTime,
}

// toFilter checks f against the collection's fields and converts operands
// to the types stored: ObjectID for _id, dates for time fields.
func toFilter(fields map[string]fieldKind, f query.Filter) (bson.M, error) {
	out := bson.M{}
	for _, key := range query.SortedKeys(f) {
		val := f[key]
		switch key {
		case query.OpAnd, query.OpOr:
			clauses, err := query.Clauses(val)
			if err != nil {
				return nil, &query.ParamError{Param: "where", Err: err}
			}
			arr := make(bson.A, 0, len(clauses))
			for _, c := range clauses {
				sub, err := toFilter(fields, c)
				if err != nil {
					return nil, err
				}
				arr = append(arr, sub)
			}
			out[key] = arr
		default:
			k, ok := fields[key]
			if !ok {
				return nil, &query.ParamError{Param: "where", Err: fmt.Errorf("unknown field %s", key)}
			}
			cond := query.Condition(val)
			m := bson.M{}
			for op, operand := range cond {
				switch op {
				case query.OpIn, query.OpNin:
					list, _ := operand.([]any)
					conv := make(bson.A, 0, len(list))
					for _, v := range list {
						conv = append(conv, convertValue(k, v))
					}
					m[op] = conv
				case query.OpRegex, query.OpOptions, query.OpExists:
					m[op] = operand
				default:
					m[op] = convertValue(k, operand)
				}
			}
			out[key] = m
		}
	}
	return out, nil
}

// convertValue leaves operands that cannot be converted untouched; they then
// match nothing, as a mistyped value would.
func convertValue(k fieldKind, v any) any {
	switch k {
	case fieldID:
		if s, ok := v.(string); ok {
			if oid, err := primitive.ObjectIDFromHex(s); err == nil {
				return oid
			}
		}
	case fieldTime:
		if t, err := query.ToTime(v); err == nil {
			return t
		}
	}
	return v
}

func toSort(fields map[string]fieldKind, sort []query.SortField) (bson.D, error) {
	if len(sort) == 0 {
		return bson.D{{Key: "dateCreated", Value: 1}, {Key: "_id", Value: 1}}, nil
	}
	out := make(bson.D, 0, len(sort)+1)
	hasID := false
	for _, s := range sort {
		k, ok := fields[s.Field]
		if !ok {
			return nil, &query.ParamError{Param: "sort", Err: fmt.Errorf("unknown field %s", s.Field)}
		}
		if k == fieldList {
			return nil, &query.ParamError{Param: "sort", Err: fmt.Errorf("cannot sort by %s", s.Field)}
		}
		dir := 1
		if s.Desc {
			dir = -1
		}
		hasID = hasID || s.Field == "_id"
		out = append(out, bson.E{Key: s.Field, Value: dir})
	}
	if !hasID {
		out = append(out, bson.E{Key: "_id", Value: 1})
	}
	return out, nil
}
