package connector

import (
	"fmt"
	"reflect"
	"regexp"
	"unicode/utf8"

	"github.com/synchub/backend/internal/domain/connector"
	"go.uber.org/zap"
)

// Validator checks mapped records against declarative rules
type Validator struct {
	expressions *ExpressionEngine
	logger      *zap.Logger
}

// NewValidator creates a validator; CUSTOM rules go through expressions
func NewValidator(expressions *ExpressionEngine, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if expressions == nil {
		expressions = NewExpressionEngine(false)
	}
	return &Validator{expressions: expressions, logger: logger}
}

// Validate returns one error per failed rule; an empty result means valid
func (v *Validator) Validate(data map[string]any, rules []connector.ValidationRule) []connector.ValidationError {
	var errs []connector.ValidationError
	for _, rule := range rules {
		ok, err := v.check(data, rule)
		if err != nil {
			v.logger.Warn("validation rule could not be evaluated",
				zap.String("field", rule.Field),
				zap.String("rule", string(rule.Type)),
				zap.Error(err))
			ok = false
		}
		if ok {
			continue
		}
		msg := rule.ErrorMessage
		if msg == "" {
			msg = fmt.Sprintf("validation failed for field %s", rule.Field)
		}
		errs = append(errs, connector.ValidationError{Field: rule.Field, Rule: rule.Type, Message: msg})
	}
	return errs
}

func (v *Validator) check(data map[string]any, rule connector.ValidationRule) (bool, error) {
	value := GetPath(data, rule.Field)
	params := rule.Params
	if params == nil {
		params = map[string]any{}
	}

	switch rule.Type {
	case connector.RuleRequired:
		return value != nil && value != "", nil
	case connector.RuleMinLength:
		min, _ := floatParam(params, "min")
		return float64(utf8.RuneCountInString(toString(value))) >= min, nil
	case connector.RuleMaxLength:
		max, _ := floatParam(params, "max")
		return float64(utf8.RuneCountInString(toString(value))) <= max, nil
	case connector.RuleRegex:
		re, err := regexp.Compile(stringParam(params, "pattern", ""))
		if err != nil {
			return false, err
		}
		return re.MatchString(toString(value)), nil
	case connector.RuleMinValue:
		n, ok := parseLeadingFloat(value)
		min, _ := floatParam(params, "min")
		return ok && n >= min, nil
	case connector.RuleMaxValue:
		n, ok := parseLeadingFloat(value)
		max, _ := floatParam(params, "max")
		return ok && n <= max, nil
	case connector.RuleInList:
		values, _ := params["values"].([]any)
		for _, candidate := range values {
			if reflect.DeepEqual(candidate, value) {
				return true, nil
			}
		}
		return false, nil
	case connector.RuleCustom:
		return v.expressions.EvalBool(stringParam(params, "expression", ""), map[string]any{
			"value":  value,
			"record": data,
		})
	default:
		v.logger.Warn("unsupported validation rule", zap.String("rule", string(rule.Type)))
		return true, nil
	}
}
