package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synchub/backend/internal/domain/connector"
)

func TestPaths(t *testing.T) {
	data := map[string]any{"a": map[string]any{"b": map[string]any{"c": "deep"}}, "n": nil}

	assert.Equal(t, "deep", GetPath(data, "a.b.c"))
	assert.Nil(t, GetPath(data, "a.x.c"))
	assert.Nil(t, GetPath(data, "n.x"))
	assert.Nil(t, GetPath(data, ""))

	out := map[string]any{"a": "scalar"}
	SetPath(out, "a.b", 1)
	SetPath(out, "x.y.z", true)
	assert.Equal(t, map[string]any{"b": 1}, out["a"])
	assert.Equal(t, true, GetPath(out, "x.y.z"))
}

func TestMapper_Apply(t *testing.T) {
	m := NewMapper(nil, nil)
	source := map[string]any{
		"proveedor": map[string]any{"rut": " 76.123.456-7 ", "nombre": "acme"},
		"fecha":     "2024-03-15",
		"estado":    "A",
	}

	t.Run("no mappings is identity", func(t *testing.T) {
		assert.Equal(t, source, m.Apply(source, nil))
	})

	t.Run("maps transforms and defaults", func(t *testing.T) {
		out := m.Apply(source, []connector.FieldMapping{
			{SourceField: "proveedor.rut", TargetField: "supplier.taxId", Transform: &connector.Transform{Type: connector.TransformTrim}},
			{SourceField: "proveedor.nombre", TargetField: "supplier.name", Transform: &connector.Transform{Type: connector.TransformUppercase}},
			{SourceField: "fecha", TargetField: "issueDate", Transform: &connector.Transform{Type: connector.TransformDateFormat}},
			{SourceField: "estado", TargetField: "status", Transform: &connector.Transform{
				Type:   connector.TransformMapping,
				Params: map[string]any{"map": map[string]any{"A": "ACTIVO"}},
			}},
			{SourceField: "moneda", TargetField: "currency", DefaultValue: "CLP"},
			{SourceField: "missing", TargetField: "dropped"},
		})

		assert.Equal(t, "76.123.456-7", GetPath(out, "supplier.taxId"))
		assert.Equal(t, "ACME", GetPath(out, "supplier.name"))
		assert.Equal(t, "15/03/2024", out["issueDate"])
		assert.Equal(t, "ACTIVO", out["status"])
		assert.Equal(t, "CLP", out["currency"])
		assert.NotContains(t, out, "dropped")
	})

	t.Run("failed transform keeps raw value", func(t *testing.T) {
		out := m.Apply(map[string]any{"fecha": "not a date"}, []connector.FieldMapping{
			{SourceField: "fecha", TargetField: "date", Transform: &connector.Transform{Type: connector.TransformDateFormat}},
		})
		assert.Equal(t, "not a date", out["date"])
	})
}

func TestMapper_Transform(t *testing.T) {
	m := NewMapper(NewExpressionEngine(true), nil)

	tests := []struct {
		name  string
		value any
		t     connector.Transform
		want  any
	}{
		{"date dmy to iso date", "15/03/2024", connector.Transform{Type: connector.TransformDateFormat, Params: map[string]any{"from": DateDMY, "to": DateYMD}}, "2024-03-15"},
		{"date compact to mdy", "20240315", connector.Transform{Type: connector.TransformDateFormat, Params: map[string]any{"from": DateComp, "to": DateMDY}}, "03/15/2024"},
		{"date to iso", "2024-03-15T10:00:00Z", connector.Transform{Type: connector.TransformDateFormat, Params: map[string]any{"to": DateISO}}, "2024-03-15T10:00:00.000Z"},
		{"lowercase", "ÁRBOL", connector.Transform{Type: connector.TransformLowercase}, "árbol"},
		{"replace all", "1.234.567", connector.Transform{Type: connector.TransformReplace, Params: map[string]any{"search": `\.`, "replace": ""}}, "1234567"},
		{"number prefix", "12.5kg", connector.Transform{Type: connector.TransformNumber}, 12.5},
		{"number fallback", "abc", connector.Transform{Type: connector.TransformNumber, Params: map[string]any{"default": float64(-1)}}, float64(-1)},
		{"number zero", "abc", connector.Transform{Type: connector.TransformNumber}, float64(0)},
		{"boolean empty", "", connector.Transform{Type: connector.TransformBoolean}, false},
		{"boolean text", "no", connector.Transform{Type: connector.TransformBoolean}, true},
		{"concat", map[string]any{"a": "x", "b": float64(2)}, connector.Transform{Type: connector.TransformConcat, Params: map[string]any{"fields": []any{"a", "b", "c"}, "separator": "-"}}, "x-2-"},
		{"mapping default", "Z", connector.Transform{Type: connector.TransformMapping, Params: map[string]any{"map": map[string]any{"A": "ACTIVO"}, "default": "OTRO"}}, "OTRO"},
		{"mapping passthrough", "Z", connector.Transform{Type: connector.TransformMapping, Params: map[string]any{"map": map[string]any{}}}, "Z"},
		{"custom", float64(10), connector.Transform{Type: connector.TransformCustom, Params: map[string]any{"expression": "value * 2"}}, float64(20)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Transform(tt.value, tt.t, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapper_CustomExpressionsDisabled(t *testing.T) {
	m := NewMapper(NewExpressionEngine(false), nil)

	_, err := m.Transform("x", connector.Transform{Type: connector.TransformCustom, Params: map[string]any{"expression": "value"}}, nil)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestMapper_ApplyPush(t *testing.T) {
	m := NewMapper(nil, nil)
	record := map[string]any{"number": "F-1", "supplier": map[string]any{"taxId": "1-9"}}

	out := m.ApplyPush(record, map[string]string{"folio": "number", "emisor.rut": "supplier.taxId", "x": "absent"})
	assert.Equal(t, map[string]any{"folio": "F-1", "emisor": map[string]any{"rut": "1-9"}}, out)
	assert.Equal(t, record, m.ApplyPush(record, nil))
}
