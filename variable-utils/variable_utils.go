package variable_utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var ErrUnsupportedBridgeType = errors.New("value is not a null, boolean, number, string, list or map")

// MaxSafeInteger is the largest integer a float64 holds exactly (2^53 - 1).
const MaxSafeInteger = 1<<53 - 1

// ConvertNumber widens any Go numeric kind to float64. Booleans are never numbers.
func ConvertNumber(value interface{}) (float64, bool) {
	switch value := value.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int8:
		return float64(value), true
	case int16:
		return float64(value), true
	case int32:
		return float64(value), true
	case int64:
		return float64(value), true
	case uint:
		return float64(value), true
	case uint8:
		return float64(value), true
	case uint16:
		return float64(value), true
	case uint32:
		return float64(value), true
	case uint64:
		return float64(value), true
	case json.Number:
		f, err := value.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ConvertInt accepts any numeric kind holding an integral value inside the safe
// double-precision range.
func ConvertInt(value interface{}) (int, bool) {
	f, ok := ConvertNumber(value)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if math.Abs(f) > MaxSafeInteger {
		return 0, false
	}
	return int(f), true
}

// BridgeTypeFromValue names the bridge shape of a value without descending into containers.
func BridgeTypeFromValue(value interface{}) (string, error) {
	switch value.(type) {
	case nil:
		return "null", nil
	case bool:
		return "boolean", nil
	case string:
		return "string", nil
	case []interface{}:
		return "list", nil
	case map[string]interface{}:
		return "map", nil
	}
	if _, ok := ConvertNumber(value); ok {
		return "number", nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnsupportedBridgeType, value)
}
