package api

// Keys of the evaluation detail map returned by the *VariationDetail methods.
const (
	DetailKeyValue          = "value"
	DetailKeyVariationIndex = "variationIndex"
	DetailKeyReason         = "reason"
)

// Keys of the reason sub-map. Only the keys belonging to the reason's kind are present.
const (
	ReasonKeyKind            = "kind"
	ReasonKeyRuleIndex       = "ruleIndex"
	ReasonKeyRuleID          = "ruleId"
	ReasonKeyInExperiment    = "inExperiment"
	ReasonKeyPrerequisiteKey = "prerequisiteKey"
	ReasonKeyErrorKind       = "errorKind"
)
