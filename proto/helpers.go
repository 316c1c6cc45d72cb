package proto

import (
	"fmt"

	protobuf "google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/launchdarkly/flutter-client-bridge/api"
	variable_utils "github.com/launchdarkly/flutter-client-bridge/variable-utils"
)

// ContentType is the media type of envelopes encoded by this package.
const ContentType = "application/x-protobuf"

const (
	fieldMethod    = "method"
	fieldArguments = "arguments"
	fieldStatus    = "status"
	fieldResult    = "result"
	fieldCode      = "code"
	fieldMessage   = "message"
	fieldDetails   = "details"
)

// ToValue converts a Bridge Value into a protobuf Value. Every numeric kind becomes a
// number value.
func ToValue(value interface{}) (*structpb.Value, error) {
	switch v := value.(type) {
	case nil:
		return structpb.NewNullValue(), nil
	case bool:
		return structpb.NewBoolValue(v), nil
	case string:
		return structpb.NewStringValue(v), nil
	case []interface{}:
		if v == nil {
			return structpb.NewNullValue(), nil
		}
		list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(v))}
		for _, element := range v {
			converted, err := ToValue(element)
			if err != nil {
				return nil, err
			}
			list.Values = append(list.Values, converted)
		}
		return structpb.NewListValue(list), nil
	case []string:
		if v == nil {
			return structpb.NewNullValue(), nil
		}
		list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(v))}
		for _, element := range v {
			list.Values = append(list.Values, structpb.NewStringValue(element))
		}
		return structpb.NewListValue(list), nil
	case map[string]interface{}:
		if v == nil {
			return structpb.NewNullValue(), nil
		}
		s, err := toStruct(v)
		if err != nil {
			return nil, err
		}
		return structpb.NewStructValue(s), nil
	}
	if f, ok := variable_utils.ConvertNumber(value); ok {
		return structpb.NewNumberValue(f), nil
	}
	_, err := variable_utils.BridgeTypeFromValue(value)
	return nil, err
}

func toStruct(m map[string]interface{}) (*structpb.Struct, error) {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(m))}
	for key, element := range m {
		converted, err := ToValue(element)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		s.Fields[key] = converted
	}
	return s, nil
}

// FromValue converts a protobuf Value back into a Bridge Value.
func FromValue(value *structpb.Value) interface{} {
	if value == nil {
		return nil
	}
	return value.AsInterface()
}

func marshalFields(fields map[string]interface{}) ([]byte, error) {
	s, err := toStruct(fields)
	if err != nil {
		return nil, err
	}
	return protobuf.Marshal(s)
}

func unmarshalFields(data []byte) (map[string]*structpb.Value, error) {
	var s structpb.Struct
	if err := protobuf.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s.GetFields(), nil
}

func MarshalMethodCall(call api.MethodCall) ([]byte, error) {
	return marshalFields(map[string]interface{}{
		fieldMethod:    call.Method,
		fieldArguments: call.Arguments,
	})
}

func UnmarshalMethodCall(data []byte) (api.MethodCall, error) {
	fields, err := unmarshalFields(data)
	if err != nil {
		return api.MethodCall{}, err
	}
	method := fields[fieldMethod].GetStringValue()
	if method == "" {
		return api.MethodCall{}, fmt.Errorf("envelope has no method")
	}
	return api.MethodCall{Method: method, Arguments: FromValue(fields[fieldArguments])}, nil
}

func MarshalMethodResponse(response api.MethodResponse) ([]byte, error) {
	fields := map[string]interface{}{fieldStatus: string(response.Status)}
	switch response.Status {
	case api.ResultStatus_Success:
		fields[fieldResult] = response.Result
	case api.ResultStatus_Error:
		fields[fieldCode] = response.Code
		fields[fieldMessage] = response.Message
		fields[fieldDetails] = response.Details
	}
	return marshalFields(fields)
}

func UnmarshalMethodResponse(data []byte) (api.MethodResponse, error) {
	fields, err := unmarshalFields(data)
	if err != nil {
		return api.MethodResponse{}, err
	}
	response := api.MethodResponse{Status: api.ResultStatus(fields[fieldStatus].GetStringValue())}
	switch response.Status {
	case api.ResultStatus_Success:
		response.Result = FromValue(fields[fieldResult])
	case api.ResultStatus_Error:
		response.Code = fields[fieldCode].GetStringValue()
		response.Message = fields[fieldMessage].GetStringValue()
		response.Details = FromValue(fields[fieldDetails])
	case api.ResultStatus_NotImplemented:
	default:
		return api.MethodResponse{}, fmt.Errorf("unknown response status %q", response.Status)
	}
	return response, nil
}
