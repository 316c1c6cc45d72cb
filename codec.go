package ldbridge

import (
	"strconv"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"

	variable_utils "github.com/launchdarkly/flutter-client-bridge/variable-utils"
)

// DecodeValue converts a Bridge Value into a typed flag value.
//
// Booleans are recognised by their Go type only, so a numeric 0 or 1 is always a number.
// Every numeric kind becomes a float64 number. Lists and maps are converted recursively;
// anything else fails with an *UnsupportedValueTypeError.
func DecodeValue(bridgeValue interface{}) (ldvalue.Value, error) {
	return decodeValue(bridgeValue, nil)
}

func decodeValue(bridgeValue interface{}, path []string) (ldvalue.Value, error) {
	switch v := bridgeValue.(type) {
	case nil:
		return ldvalue.Null(), nil
	case bool:
		return ldvalue.Bool(v), nil
	case string:
		return ldvalue.String(v), nil
	case ldvalue.Value:
		return v, nil
	case []interface{}:
		builder := ldvalue.ArrayBuild()
		for i, element := range v {
			decoded, err := decodeValue(element, append(path, strconv.Itoa(i)))
			if err != nil {
				return ldvalue.Null(), err
			}
			builder.Add(decoded)
		}
		return builder.Build(), nil
	case map[string]interface{}:
		builder := ldvalue.ObjectBuild()
		for key, element := range v {
			decoded, err := decodeValue(element, append(path, key))
			if err != nil {
				return ldvalue.Null(), err
			}
			builder.Set(key, decoded)
		}
		return builder.Build(), nil
	}
	if f, ok := variable_utils.ConvertNumber(bridgeValue); ok {
		return ldvalue.Float64(f), nil
	}
	return ldvalue.Null(), &UnsupportedValueTypeError{Path: append([]string(nil), path...), Value: bridgeValue}
}

// EncodeValue converts a typed flag value back into a Bridge Value. Numbers are always
// float64, arrays are []interface{} and objects are map[string]interface{}.
func EncodeValue(value ldvalue.Value) interface{} {
	switch value.Type() {
	case ldvalue.BoolType:
		return value.BoolValue()
	case ldvalue.NumberType:
		return value.Float64Value()
	case ldvalue.StringType:
		return value.StringValue()
	case ldvalue.ArrayType:
		array := value.AsValueArray()
		out := make([]interface{}, 0, array.Count())
		for i := 0; i < array.Count(); i++ {
			out = append(out, EncodeValue(array.Get(i)))
		}
		return out
	case ldvalue.ObjectType:
		object := value.AsValueMap().AsMap()
		out := make(map[string]interface{}, len(object))
		for key, element := range object {
			out[key] = EncodeValue(element)
		}
		return out
	default:
		return nil
	}
}

// DecodeValueMap decodes every entry of a map of Bridge Values.
func DecodeValueMap(bridgeValues map[string]interface{}) (map[string]ldvalue.Value, error) {
	out := make(map[string]ldvalue.Value, len(bridgeValues))
	for key, element := range bridgeValues {
		decoded, err := decodeValue(element, []string{key})
		if err != nil {
			return nil, err
		}
		out[key] = decoded
	}
	return out, nil
}

// EncodeValueMap encodes every entry of a map of flag values, as returned by allFlags.
func EncodeValueMap(values map[string]ldvalue.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for key, value := range values {
		out[key] = EncodeValue(value)
	}
	return out
}
