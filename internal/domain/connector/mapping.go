package connector

// TransformType names a field transform
type TransformType string

const (
	TransformDateFormat TransformType = "DATE_FORMAT"
	TransformUppercase  TransformType = "UPPERCASE"
	TransformLowercase  TransformType = "LOWERCASE"
	TransformTrim       TransformType = "TRIM"
	TransformReplace    TransformType = "REPLACE"
	TransformNumber     TransformType = "NUMBER"
	TransformBoolean    TransformType = "BOOLEAN"
	TransformConcat     TransformType = "CONCAT"
	TransformMapping    TransformType = "MAPPING"
	TransformCustom     TransformType = "CUSTOM"
)

// Transform is an optional conversion applied to a mapped value
type Transform struct {
	Type   TransformType  `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// FieldMapping copies one source path to one target path
type FieldMapping struct {
	SourceField  string     `json:"sourceField"`
	TargetField  string     `json:"targetField"`
	Transform    *Transform `json:"transform,omitempty"`
	DefaultValue any        `json:"defaultValue,omitempty"`
}

// RuleType names a validation rule
type RuleType string

const (
	RuleRequired  RuleType = "REQUIRED"
	RuleMinLength RuleType = "MIN_LENGTH"
	RuleMaxLength RuleType = "MAX_LENGTH"
	RuleRegex     RuleType = "REGEX"
	RuleMinValue  RuleType = "MIN_VALUE"
	RuleMaxValue  RuleType = "MAX_VALUE"
	RuleInList    RuleType = "IN_LIST"
	RuleCustom    RuleType = "CUSTOM"
)

// ValidationRule is a declarative check against a mapped record
type ValidationRule struct {
	Field        string         `json:"field"`
	Type         RuleType       `json:"type"`
	Params       map[string]any `json:"params,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

// ValidationError is one failed rule
type ValidationError struct {
	Field   string   `json:"field"`
	Rule    RuleType `json:"rule"`
	Message string   `json:"message"`
}
