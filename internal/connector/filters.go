package connector

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type filterOp func(column string, value interface{}) RowPredicate

var filterOps = map[string]filterOp{
	"eq": func(col string, val interface{}) RowPredicate {
		return func(r Row) bool { return valuesEqual(r[col], val) }
	},
	"ne": func(col string, val interface{}) RowPredicate {
		return func(r Row) bool { return !valuesEqual(r[col], val) }
	},
	"gt": func(col string, val interface{}) RowPredicate {
		return orderedPredicate(col, val, func(c int) bool { return c > 0 })
	},
	"gte": func(col string, val interface{}) RowPredicate {
		return orderedPredicate(col, val, func(c int) bool { return c >= 0 })
	},
	"lt": func(col string, val interface{}) RowPredicate {
		return orderedPredicate(col, val, func(c int) bool { return c < 0 })
	},
	"lte": func(col string, val interface{}) RowPredicate {
		return orderedPredicate(col, val, func(c int) bool { return c <= 0 })
	},
	"in": func(col string, val interface{}) RowPredicate {
		return func(r Row) bool { return valueInList(r[col], val) }
	},
	"not_in": func(col string, val interface{}) RowPredicate {
		return func(r Row) bool { return !valueInList(r[col], val) }
	},
}

// CompileFilters turns declarative filters into row predicates. Unknown
// ops are rejected (Validate catches them earlier for stored configs).
func CompileFilters(filters []Filter) ([]RowPredicate, error) {
	preds := make([]RowPredicate, 0, len(filters))
	for _, f := range filters {
		op, ok := filterOps[f.Op]
		if !ok {
			return nil, NewConfigError("unknown filter op %q", f.Op)
		}
		preds = append(preds, op(f.Column, f.Value))
	}
	return preds, nil
}

func orderedPredicate(col string, val interface{}, accept func(int) bool) RowPredicate {
	return func(r Row) bool {
		got, ok := r[col]
		if !ok || got == nil {
			return false
		}
		cmp, ok := compareValues(got, val)
		if !ok {
			return false
		}
		return accept(cmp)
	}
}

func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func valueInList(v, list interface{}) bool {
	items, ok := list.([]interface{})
	if !ok {
		return false
	}
	for _, item := range items {
		if valuesEqual(v, item) {
			return true
		}
	}
	return false
}

// compareValues orders two values numerically when both coerce to float64,
// falling back to string comparison.
func compareValues(a, b interface{}) (int, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
