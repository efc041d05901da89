package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Operators accepted inside a field condition.
const (
	OpEq      = "$eq"
	OpNe      = "$ne"
	OpIn      = "$in"
	OpNin     = "$nin"
	OpGt      = "$gt"
	OpGte     = "$gte"
	OpLt      = "$lt"
	OpLte     = "$lte"
	OpRegex   = "$regex"
	OpOptions = "$options"
	OpExists  = "$exists"

	OpAnd = "$and"
	OpOr  = "$or"
)

var fieldOps = map[string]bool{
	OpEq: true, OpNe: true, OpIn: true, OpNin: true,
	OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpRegex: true, OpOptions: true, OpExists: true,
}

// Validate rejects unknown operators and malformed operands. Field names are
// checked later against each collection's whitelist.
func (f Filter) Validate() error {
	for key, val := range f {
		switch {
		case key == OpAnd || key == OpOr:
			if _, err := Clauses(val); err != nil {
				return err
			}
		case strings.HasPrefix(key, "$"):
			return fmt.Errorf("unsupported operator %s", key)
		default:
			if err := validateCondition(key, val); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clauses returns the sub-filters of an $and / $or operand.
func Clauses(v any) ([]Filter, error) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("$and/$or expects a non-empty array")
	}
	out := make([]Filter, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("$and/$or items must be objects")
		}
		sub := Filter(m)
		if err := sub.Validate(); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

// Condition splits a field value into operator/operand pairs. A plain value is
// reported as a single $eq.
func Condition(val any) map[string]any {
	if m, ok := val.(map[string]any); ok && isOperatorDoc(m) {
		return m
	}
	return map[string]any{OpEq: val}
}

// SortedKeys returns map keys in lexical order for deterministic translation.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isOperatorDoc(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func validateCondition(field string, val any) error {
	m, ok := val.(map[string]any)
	if !ok {
		return nil
	}
	if !isOperatorDoc(m) {
		return fmt.Errorf("field %s: embedded documents are not supported", field)
	}
	for op, operand := range m {
		if !fieldOps[op] {
			return fmt.Errorf("field %s: unsupported operator %s", field, op)
		}
		switch op {
		case OpIn, OpNin:
			if _, ok := operand.([]any); !ok {
				return fmt.Errorf("field %s: %s expects an array", field, op)
			}
		case OpRegex:
			s, ok := operand.(string)
			if !ok {
				return fmt.Errorf("field %s: $regex expects a string", field)
			}
			if _, err := regexp.Compile(s); err != nil {
				return fmt.Errorf("field %s: bad $regex: %v", field, err)
			}
		case OpOptions:
			if _, ok := m[OpRegex]; !ok {
				return fmt.Errorf("field %s: $options without $regex", field)
			}
		case OpExists:
			if _, ok := operand.(bool); !ok {
				return fmt.Errorf("field %s: $exists expects a boolean", field)
			}
		}
	}
	return nil
}

// RegexPattern returns the pattern of a $regex condition, folding the "i"
// option into the pattern.
func RegexPattern(cond map[string]any) (string, bool) {
	pat, ok := cond[OpRegex].(string)
	if !ok {
		return "", false
	}
	if opts, _ := cond[OpOptions].(string); strings.Contains(opts, "i") {
		return pat, true
	}
	return pat, false
}
