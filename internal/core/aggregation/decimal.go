package aggregation

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// LookupDecimal pulls a numeric value from an event's data map by field name.
// ok is false if the field is missing, empty, or not a recognized numeric type.
// JSON numbers decode to float64 or json.Number depending on the decoder.
func LookupDecimal(data map[string]interface{}, field string) (decimal.Decimal, bool) {
	if field == "" {
		return decimal.Zero, false
	}
	v, ok := data[field]
	if !ok {
		return decimal.Zero, false
	}
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val), true
	case float32:
		return decimal.NewFromFloat32(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case int32:
		return decimal.NewFromInt32(val), true
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		return d, err == nil
	case decimal.Decimal:
		return val, true
	case string:
		d, err := decimal.NewFromString(val)
		if err == nil {
			return d, true
		}
	}
	return decimal.Zero, false
}

// ExtractDecimal is LookupDecimal with decimal.Zero for anything unusable.
func ExtractDecimal(data map[string]interface{}, field string) decimal.Decimal {
	d, _ := LookupDecimal(data, field)
	return d
}
