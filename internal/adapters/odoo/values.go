package odoo

import (
	"github.com/shopspring/decimal"
)

// Odoo encodes NULL as false, so every helper treats a bool as "unset".

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asDecimal(v interface{}) decimal.Decimal {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n)
	case int64:
		return decimal.NewFromInt(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case string:
		d, err := decimal.NewFromString(n)
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}

// many2one unpacks an [id, display_name] pair.
func many2one(v interface{}) (int64, string) {
	pair, ok := v.([]interface{})
	if !ok || len(pair) == 0 {
		return 0, ""
	}
	id, _ := asInt64(pair[0])
	name := ""
	if len(pair) > 1 {
		name = asString(pair[1])
	}
	return id, name
}

// records converts a search_read/read result into a slice of field maps.
func records(v interface{}) []map[string]interface{} {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]interface{}); ok {
			out = append(out, rec)
		}
	}
	return out
}

// ids collects the "id" field of each record.
func ids(recs []map[string]interface{}) []int64 {
	out := make([]int64, 0, len(recs))
	for _, rec := range recs {
		if id, ok := asInt64(rec["id"]); ok {
			out = append(out, id)
		}
	}
	return out
}
