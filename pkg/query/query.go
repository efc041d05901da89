package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidQuery is matched by every parse or validation failure.
var ErrInvalidQuery = errors.New("invalid query")

// ParamError reports which query parameter could not be used.
type ParamError struct {
	Param string
	Err   error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid %s parameter: %v", e.Param, e.Err)
}

func (e *ParamError) Unwrap() error { return e.Err }

func (e *ParamError) Is(target error) bool { return target == ErrInvalidQuery }

// Filter is a decoded `where` document: field -> value or field -> {$op: value}.
type Filter map[string]any

// SortField is one ordering key; order follows the request.
type SortField struct {
	Field string
	Desc  bool
}

// Params is the structured form of a listing request.
type Params struct {
	Filter Filter
	Sort   []SortField
	Select Projection
	Skip   int64
	Limit  int64 // 0 means no limit
	Count  bool
}

// Parse reads where, sort, select (alias filter), skip, limit and count.
func Parse(values url.Values, defaultLimit int64) (Params, error) {
	p := Params{Limit: defaultLimit}

	if raw := values.Get("where"); raw != "" {
		var f Filter
		if err := decodeObject(raw, &f); err != nil {
			return Params{}, &ParamError{Param: "where", Err: err}
		}
		if err := f.Validate(); err != nil {
			return Params{}, &ParamError{Param: "where", Err: err}
		}
		p.Filter = f
	}

	if raw := values.Get("sort"); raw != "" {
		s, err := parseSort(raw)
		if err != nil {
			return Params{}, &ParamError{Param: "sort", Err: err}
		}
		p.Sort = s
	}

	sel := values.Get("select")
	if sel == "" {
		sel = values.Get("filter")
	}
	if sel != "" {
		proj, err := parseProjection(sel)
		if err != nil {
			return Params{}, &ParamError{Param: "select", Err: err}
		}
		p.Select = proj
	}

	if raw := values.Get("skip"); raw != "" {
		n, err := parseNonNegative(raw)
		if err != nil {
			return Params{}, &ParamError{Param: "skip", Err: err}
		}
		p.Skip = n
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := parseNonNegative(raw)
		if err != nil {
			return Params{}, &ParamError{Param: "limit", Err: err}
		}
		p.Limit = n
	}
	if raw := values.Get("count"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Params{}, &ParamError{Param: "count", Err: err}
		}
		p.Count = b
	}
	return p, nil
}

// ParseSelect reads only the projection parameter, used by single-document reads.
func ParseSelect(values url.Values) (Projection, error) {
	sel := values.Get("select")
	if sel == "" {
		sel = values.Get("filter")
	}
	if sel == "" {
		return nil, nil
	}
	proj, err := parseProjection(sel)
	if err != nil {
		return nil, &ParamError{Param: "select", Err: err}
	}
	return proj, nil
}

// CountWindow applies skip and limit to a total count.
func CountWindow(total, skip, limit int64) int64 {
	n := total - skip
	if n < 0 {
		n = 0
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// ToTime converts a filter operand to a timestamp. Strings are RFC 3339,
// numbers are milliseconds since the Unix epoch.
func ToTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return time.Time{}, fmt.Errorf("%q is not an RFC 3339 timestamp", x)
		}
		return t, nil
	case float64:
		return time.UnixMilli(int64(x)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%v is not a timestamp", v)
	}
}

func decodeObject(raw string, dst any) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if dec.More() {
		return errors.New("trailing data after JSON object")
	}
	return nil
}

// parseSort keeps key order, which a map decode would lose.
func parseSort(raw string) ([]SortField, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("sort must be a JSON object")
	}
	var out []SortField
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("malformed JSON: %w", err)
		}
		key, _ := keyTok.(string)
		var dir float64
		if err := dec.Decode(&dir); err != nil {
			return nil, fmt.Errorf("sort direction for %q must be 1 or -1", key)
		}
		switch dir {
		case 1:
			out = append(out, SortField{Field: key})
		case -1:
			out = append(out, SortField{Field: key, Desc: true})
		default:
			return nil, fmt.Errorf("sort direction for %q must be 1 or -1", key)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	return out, nil
}

func parseNonNegative(raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("%d is negative", n)
	}
	return n, nil
}
