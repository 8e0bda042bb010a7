package uispec

import (
	"encoding/json"
	"math"
	"strings"
)

const maxStringLen = 10000

// cinemaDimensions maps the orientation/format vocabulary used by cinema
// style models onto explicit pixel dimensions.
var cinemaDimensions = map[string][2]int64{
	"landscape":  {1920, 1080},
	"portrait":   {1080, 1920},
	"square":     {1080, 1080},
	"widescreen": {2048, 858},
	"vertical":   {1080, 1920},
}

// NormalizeInput filters and coerces a raw input map against the resolved
// spec. Unknown keys are dropped; known keys are coerced to the parameter's
// type or replaced by its default. Prompt text is always preserved.
func NormalizeInput(spec *ModelUISpec, input map[string]any) map[string]any {
	out := make(map[string]any, len(spec.Parameters))
	if input == nil {
		input = map[string]any{}
	}

	applyCinemaPrePass(spec, input)

	for i := range spec.Parameters {
		param := &spec.Parameters[i]
		raw, present := input[param.ID]

		if param.ID == "prompt" {
			s := strings.TrimSpace(valueString(raw))
			if s == "" && param.Default != nil {
				s = strings.TrimSpace(valueString(param.Default))
			}
			out[param.ID] = truncate(s)
			continue
		}

		if present {
			if v, ok := normalizeValue(param, raw); ok {
				out[param.ID] = v
				continue
			}
			// An out-of-options select value is dropped, never replaced,
			// so the provider applies its own default.
			if param.Type == TypeSelect {
				continue
			}
		}
		if param.Default != nil {
			out[param.ID] = param.Default
		}
	}

	return out
}

// StrictViolations lists inputs the UI would never produce: missing required
// fields and enum values outside the parameter's options. NormalizeInput
// alone would drop or default these silently; the API edge rejects them
// before any debit.
func StrictViolations(spec *ModelUISpec, input map[string]any) []string {
	var violations []string
	for i := range spec.Parameters {
		param := &spec.Parameters[i]
		raw, present := input[param.ID]

		if param.Required && param.Default == nil {
			if !present || strings.TrimSpace(valueString(raw)) == "" {
				violations = append(violations, param.ID)
				continue
			}
		}
		if !present || raw == nil {
			continue
		}
		if param.Type == TypeSelect && !param.Multiple && len(param.Options) > 0 {
			if _, ok := normalizeEnum(param, raw); !ok {
				violations = append(violations, param.ID)
			}
		}
	}
	return violations
}

// applyCinemaPrePass rewrites orientation/format keywords into width and
// height when the spec exposes explicit dimensions but no aspect_ratio.
func applyCinemaPrePass(spec *ModelUISpec, input map[string]any) {
	if spec.Parameter("width") == nil || spec.Parameter("height") == nil || spec.Parameter("aspect_ratio") != nil {
		return
	}

	for _, key := range []string{"orientation", "format"} {
		raw, ok := input[key]
		if !ok {
			continue
		}
		dims, ok := cinemaDimensions[strings.ToLower(strings.TrimSpace(valueString(raw)))]
		if !ok {
			continue
		}
		if _, set := input["width"]; !set {
			input["width"] = dims[0]
		}
		if _, set := input["height"]; !set {
			input["height"] = dims[1]
		}
		return
	}
}

func normalizeValue(param *UIParameter, raw any) (any, bool) {
	if raw == nil {
		return nil, false
	}

	if param.Multiple {
		return normalizeArray(param, raw)
	}
	if param.File {
		return normalizeFile(raw)
	}

	switch param.Type {
	case TypeSelect:
		return normalizeEnum(param, raw)
	case TypeNumber, TypeSlider:
		return normalizeNumeric(param, raw)
	case TypeBoolean:
		return normalizeBool(raw)
	default:
		s := strings.TrimSpace(valueString(raw))
		if s == "" {
			return nil, false
		}
		return truncate(s), true
	}
}

func normalizeArray(param *UIParameter, raw any) (any, bool) {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") {
			var decoded []any
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				items = decoded
				break
			}
		}
		items = []any{v}
	default:
		items = []any{raw}
	}

	elem := *param
	elem.Multiple = false
	out := make([]any, 0, len(items))
	for _, item := range items {
		if v, ok := normalizeValue(&elem, item); ok {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func normalizeFile(raw any) (any, bool) {
	s := strings.TrimSpace(valueString(raw))
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "data:") {
		return s, true
	}
	return nil, false
}

// normalizeEnum matches in three passes: exact value, string equality,
// then case-insensitive string equality.
func normalizeEnum(param *UIParameter, raw any) (any, bool) {
	for _, opt := range param.Options {
		if opt.Value == raw {
			return opt.Value, true
		}
	}
	rawStr := valueString(raw)
	for _, opt := range param.Options {
		if valueString(opt.Value) == rawStr {
			return opt.Value, true
		}
	}
	lower := strings.ToLower(rawStr)
	for _, opt := range param.Options {
		if strings.ToLower(valueString(opt.Value)) == lower {
			return opt.Value, true
		}
	}
	return nil, false
}

func normalizeNumeric(param *UIParameter, raw any) (any, bool) {
	f, ok := toFloat(raw)
	if !ok {
		return nil, false
	}

	integer := param.IsInteger || (param.Step != nil && *param.Step == 1)

	// seed -1 conventionally requests a random seed and skips clamping.
	if param.ID == "seed" && f == -1 {
		return int64(-1), true
	}

	if integer {
		f = math.Floor(f)
	}
	if param.Min != nil && f < *param.Min {
		f = *param.Min
	}
	if param.Max != nil && f > *param.Max {
		f = *param.Max
	}
	if param.Step != nil && *param.Step > 0 {
		anchor := 0.0
		if param.Min != nil {
			anchor = *param.Min
		}
		steps := math.Round((f - anchor) / *param.Step)
		f = anchor + steps**param.Step
		if param.Max != nil && f > *param.Max {
			f = *param.Max
		}
		if param.Min != nil && f < *param.Min {
			f = *param.Min
		}
	}

	if integer {
		return int64(f), true
	}
	return math.Round(f*1e5) / 1e5, true
}

func normalizeBool(raw any) (any, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "on":
			return true, true
		case "false", "0", "no", "off":
			return false, true
		}
		return nil, false
	case json.Number:
		if v.String() == "1" {
			return true, true
		}
		if v.String() == "0" {
			return false, true
		}
		return nil, false
	case float64, int, int64:
		f, _ := toFloat(v)
		if f == 1 {
			return true, true
		}
		if f == 0 {
			return false, true
		}
		return nil, false
	default:
		return nil, false
	}
}

func truncate(s string) string {
	if len(s) <= maxStringLen {
		return s
	}
	return s[:maxStringLen]
}
