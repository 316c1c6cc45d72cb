package ldbridge

import (
	"fmt"

	"github.com/launchdarkly/go-sdk-common/v3/ldreason"

	"github.com/launchdarkly/flutter-client-bridge/api"
	variable_utils "github.com/launchdarkly/flutter-client-bridge/variable-utils"
)

// EvaluationDetailToBridge flattens an evaluation detail into the map returned by the
// *VariationDetail methods. The three keys are always present; variationIndex is nil
// when the SDK did not select a variation.
func EvaluationDetailToBridge(detail ldreason.EvaluationDetail) map[string]interface{} {
	var variationIndex, reason interface{}
	if index, ok := detail.VariationIndex.Get(); ok {
		variationIndex = index
	}
	if detail.Reason.IsDefined() {
		reason = EvaluationReasonToBridge(detail.Reason)
	}
	return map[string]interface{}{
		api.DetailKeyValue:          EncodeValue(detail.Value),
		api.DetailKeyVariationIndex: variationIndex,
		api.DetailKeyReason:         reason,
	}
}

// EvaluationReasonToBridge projects a reason to a map holding its kind and only the fields
// that belong to that kind. An undefined reason projects to nil.
func EvaluationReasonToBridge(reason ldreason.EvaluationReason) map[string]interface{} {
	if !reason.IsDefined() {
		return nil
	}
	out := map[string]interface{}{api.ReasonKeyKind: string(reason.GetKind())}
	switch reason.GetKind() {
	case ldreason.EvalReasonRuleMatch:
		out[api.ReasonKeyRuleIndex] = reason.GetRuleIndex()
		out[api.ReasonKeyRuleID] = reason.GetRuleID()
		out[api.ReasonKeyInExperiment] = reason.IsInExperiment()
	case ldreason.EvalReasonPrerequisiteFailed:
		out[api.ReasonKeyPrerequisiteKey] = reason.GetPrerequisiteKey()
	case ldreason.EvalReasonFallthrough:
		out[api.ReasonKeyInExperiment] = reason.IsInExperiment()
	case ldreason.EvalReasonError:
		out[api.ReasonKeyErrorKind] = string(reason.GetErrorKind())
	}
	return out
}

// EvaluationDetailFromBridge reads a detail map produced by EvaluationDetailToBridge.
func EvaluationDetailFromBridge(m map[string]interface{}) (ldreason.EvaluationDetail, error) {
	value, err := DecodeValue(m[api.DetailKeyValue])
	if err != nil {
		return ldreason.EvaluationDetail{}, err
	}
	var reason ldreason.EvaluationReason
	if raw, ok := m[api.DetailKeyReason].(map[string]interface{}); ok {
		if reason, err = EvaluationReasonFromBridge(raw); err != nil {
			return ldreason.EvaluationDetail{}, err
		}
	}
	detail := ldreason.EvaluationDetail{Value: value, Reason: reason}
	if raw, present := m[api.DetailKeyVariationIndex]; present && raw != nil {
		index, ok := variable_utils.ConvertInt(raw)
		if !ok {
			return ldreason.EvaluationDetail{}, fmt.Errorf("%w: variationIndex %v is not an integer", ErrInvalidArgument, raw)
		}
		detail = ldreason.NewEvaluationDetail(value, index, reason)
	}
	return detail, nil
}

// EvaluationReasonFromBridge is the inverse of EvaluationReasonToBridge.
func EvaluationReasonFromBridge(m map[string]interface{}) (ldreason.EvaluationReason, error) {
	kind, _ := m[api.ReasonKeyKind].(string)
	inExperiment, _ := m[api.ReasonKeyInExperiment].(bool)
	switch ldreason.EvalReasonKind(kind) {
	case ldreason.EvalReasonOff:
		return ldreason.NewEvalReasonOff(), nil
	case ldreason.EvalReasonTargetMatch:
		return ldreason.NewEvalReasonTargetMatch(), nil
	case ldreason.EvalReasonFallthrough:
		return ldreason.NewEvalReasonFallthroughExperiment(inExperiment), nil
	case ldreason.EvalReasonRuleMatch:
		ruleIndex, _ := variable_utils.ConvertInt(m[api.ReasonKeyRuleIndex])
		ruleID, _ := m[api.ReasonKeyRuleID].(string)
		return ldreason.NewEvalReasonRuleMatchExperiment(ruleIndex, ruleID, inExperiment), nil
	case ldreason.EvalReasonPrerequisiteFailed:
		prerequisiteKey, _ := m[api.ReasonKeyPrerequisiteKey].(string)
		return ldreason.NewEvalReasonPrerequisiteFailed(prerequisiteKey), nil
	case ldreason.EvalReasonError:
		errorKind, _ := m[api.ReasonKeyErrorKind].(string)
		return ldreason.NewEvalReasonError(ldreason.EvalErrorKind(errorKind)), nil
	}
	return ldreason.EvaluationReason{}, fmt.Errorf("%w: unknown reason kind %q", ErrInvalidArgument, kind)
}
