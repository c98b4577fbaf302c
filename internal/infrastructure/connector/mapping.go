package connector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/synchub/backend/internal/domain/connector"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Mapper applies field mappings and their transforms
type Mapper struct {
	expressions *ExpressionEngine
	logger      *zap.Logger
}

// NewMapper creates a mapper; CUSTOM transforms go through expressions
func NewMapper(expressions *ExpressionEngine, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if expressions == nil {
		expressions = NewExpressionEngine(false)
	}
	return &Mapper{expressions: expressions, logger: logger}
}

// Expressions returns the engine shared with validation
func (m *Mapper) Expressions() *ExpressionEngine { return m.expressions }

// Apply builds the target record. With no mappings the source is returned
// unchanged. A failing transform is logged and the raw value kept.
func (m *Mapper) Apply(source map[string]any, mappings []connector.FieldMapping) map[string]any {
	if len(mappings) == 0 {
		return source
	}
	result := make(map[string]any, len(mappings))
	for _, fm := range mappings {
		value := GetPath(source, fm.SourceField)
		if value == nil {
			value = fm.DefaultValue
		}
		if fm.Transform != nil && value != nil {
			transformed, err := m.Transform(value, *fm.Transform, source)
			if err != nil {
				m.logger.Warn("field transform failed",
					zap.String("source_field", fm.SourceField),
					zap.String("transform", string(fm.Transform.Type)),
					zap.Error(err))
			} else {
				value = transformed
			}
		}
		if value != nil {
			SetPath(result, fm.TargetField, value)
		}
	}
	return result
}

// ApplyPush maps a Hub record onto a push payload: each entry copies the
// Hub path (value) to the target path (key). No entries means the record is
// sent as is.
func (m *Mapper) ApplyPush(record map[string]any, mapping map[string]string) map[string]any {
	if len(mapping) == 0 {
		return record
	}
	out := make(map[string]any, len(mapping))
	for target, source := range mapping {
		if v := GetPath(record, source); v != nil {
			SetPath(out, target, v)
		}
	}
	return out
}

var (
	upperCaser = cases.Upper(language.Und)
	lowerCaser = cases.Lower(language.Und)
)

// Transform converts one value
func (m *Mapper) Transform(value any, t connector.Transform, record map[string]any) (any, error) {
	params := t.Params
	if params == nil {
		params = map[string]any{}
	}

	switch t.Type {
	case connector.TransformDateFormat:
		return transformDate(toString(value), stringParam(params, "from", DateISO), stringParam(params, "to", DateDMY))
	case connector.TransformUppercase:
		return upperCaser.String(toString(value)), nil
	case connector.TransformLowercase:
		return lowerCaser.String(toString(value)), nil
	case connector.TransformTrim:
		return strings.TrimSpace(toString(value)), nil
	case connector.TransformReplace:
		re, err := regexp.Compile(stringParam(params, "search", ""))
		if err != nil {
			return nil, fmt.Errorf("invalid search pattern: %w", err)
		}
		return re.ReplaceAllString(toString(value), stringParam(params, "replace", "")), nil
	case connector.TransformNumber:
		if n, ok := parseLeadingFloat(value); ok {
			return n, nil
		}
		if d, ok := params["default"]; ok && truthy(d) {
			return d, nil
		}
		return float64(0), nil
	case connector.TransformBoolean:
		return truthy(value), nil
	case connector.TransformConcat:
		fields, _ := params["fields"].([]any)
		parts := make([]string, len(fields))
		for i, f := range fields {
			if v := GetPath(value, toString(f)); v != nil {
				parts[i] = toString(v)
			}
		}
		return strings.Join(parts, stringParam(params, "separator", "")), nil
	case connector.TransformMapping:
		table, _ := params["map"].(map[string]any)
		if mapped, ok := table[toString(value)]; ok && truthy(mapped) {
			return mapped, nil
		}
		if d, ok := params["default"]; ok && truthy(d) {
			return d, nil
		}
		return value, nil
	case connector.TransformCustom:
		return m.expressions.Eval(stringParam(params, "expression", ""), map[string]any{
			"value":  value,
			"record": record,
		})
	default:
		m.logger.Warn("unsupported transform", zap.String("transform", string(t.Type)))
		return value, nil
	}
}

// Date layouts accepted by DATE_FORMAT
const (
	DateISO  = "ISO"
	DateDMY  = "DD/MM/YYYY"
	DateMDY  = "MM/DD/YYYY"
	DateYMD  = "YYYY-MM-DD"
	DateComp = "YYYYMMDD"
)

var dateLayouts = map[string]string{
	DateDMY:  "02/01/2006",
	DateMDY:  "01/02/2006",
	DateYMD:  "2006-01-02",
	DateComp: "20060102",
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func transformDate(value, from, to string) (string, error) {
	var (
		parsed time.Time
		err    error
	)
	if layout, ok := dateLayouts[from]; ok {
		parsed, err = time.Parse(layout, value)
	} else {
		err = fmt.Errorf("unrecognized date")
		for _, layout := range isoLayouts {
			if p, perr := time.Parse(layout, value); perr == nil {
				parsed, err = p, nil
				break
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("invalid date %q", value)
	}

	if to == DateISO {
		return parsed.UTC().Format("2006-01-02T15:04:05.000Z07:00"), nil
	}
	if layout, ok := dateLayouts[to]; ok {
		return parsed.Format(layout), nil
	}
	return value, nil
}

var leadingFloat = regexp.MustCompile(`^\s*[-+]?(\d+(\.\d*)?|\.\d+)([eE][-+]?\d+)?`)

func parseLeadingFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	match := leadingFloat.FindString(toString(value))
	if match == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(match), 64)
	return n, err == nil
}

// truthy mirrors the loose truthiness external payloads are written against
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	default:
		return true
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func floatParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	return parseLeadingFloat(v)
}
