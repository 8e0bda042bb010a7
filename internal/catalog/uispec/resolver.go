package uispec

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
)

// parameterPriority orders the well-known generation parameters ahead of
// everything else; the first four belong to the basic group.
var parameterPriority = []string{
	"prompt",
	"aspect_ratio",
	"width",
	"height",
	"output_quality",
	"num_outputs",
	"num_inference_steps",
	"guidance_scale",
	"seed",
}

const basicGroupSize = 4

var defaultAspectRatios = []string{"1:1", "16:9", "9:16", "4:3", "3:4"}

var longTextKeys = map[string]bool{
	"prompt":          true,
	"negative_prompt": true,
}

// Resolve derives the tier-filtered parameter spec from a provider schema
// and the operator overlay. It is a pure function: identical inputs yield a
// bit-identical spec.
func Resolve(modelID string, rawSchema, uiConfig []byte, tier identitydomain.Tier) *ModelUISpec {
	raw := decodeObject(rawSchema)
	overlay := flattenOverlay(decodeObject(uiConfig))

	props := extractInputProperties(raw)

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		pi, pj := priorityIndex(keys[i]), priorityIndex(keys[j])
		if pi != pj {
			return pi < pj
		}
		return keys[i] < keys[j]
	})

	params := make([]UIParameter, 0, len(keys))
	for _, key := range keys {
		prop, ok := asMap(props[key])
		if !ok {
			continue
		}
		params = append(params, schemaParameter(key, resolveProperty(raw, prop)))
	}

	// Overlay entries without a schema counterpart become synthesized
	// parameters appended after the schema-derived list.
	overlayKeys := make([]string, 0, len(overlay))
	for k := range overlay {
		overlayKeys = append(overlayKeys, k)
	}
	sort.Strings(overlayKeys)
	for _, key := range overlayKeys {
		if containsParam(params, key) {
			continue
		}
		params = append(params, synthesizeParameter(key, overlay[key]))
	}

	spec := &ModelUISpec{
		ModelID: modelID,
		Groups: []Group{
			{ID: GroupBasic, Label: "Basic"},
			{ID: GroupAdvanced, Label: "Advanced"},
		},
		Parameters:   make([]UIParameter, 0, len(params)),
		PricingRules: []PricingRule{},
	}

	for _, param := range params {
		cfg := overlay[param.ID]
		if cfg != nil && !tierAllowed(cfg, tier) {
			continue
		}
		applyOverrides(&param, cfg, tier, spec)
		spec.Parameters = append(spec.Parameters, param)
	}

	return spec
}

func priorityIndex(key string) int {
	for i, k := range parameterPriority {
		if k == key {
			return i
		}
	}
	return len(parameterPriority)
}

func groupFor(key string) string {
	idx := priorityIndex(key)
	if idx < basicGroupSize {
		return GroupBasic
	}
	return GroupAdvanced
}

func containsParam(params []UIParameter, id string) bool {
	for i := range params {
		if params[i].ID == id {
			return true
		}
	}
	return false
}

func decodeObject(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil || doc == nil {
		return map[string]any{}
	}
	return doc
}

// extractInputProperties locates the input property map inside an
// OpenAPI-like blob, trying the known shapes in order.
func extractInputProperties(raw map[string]any) map[string]any {
	if components, ok := getMap(raw, "components"); ok {
		if schemas, ok := getMap(components, "schemas"); ok {
			if input, ok := getMap(schemas, "Input"); ok {
				if props, ok := getMap(input, "properties"); ok {
					return props
				}
			}
		}
	}

	if props, ok := getMap(raw, "properties"); ok {
		if parameters, ok := getMap(props, "parameters"); ok {
			parameters = resolveRef(raw, parameters)
			if inner, ok := getMap(parameters, "properties"); ok {
				return inner
			}
		}
		if input, ok := getMap(props, "input"); ok {
			if inner, ok := getMap(input, "properties"); ok {
				return inner
			}
		}
		return props
	}

	return map[string]any{}
}

// resolveRef follows a local $ref one hop. Deeper chains are treated as
// carrying no further information, which keeps reference cycles harmless.
func resolveRef(root, prop map[string]any) map[string]any {
	ref, ok := getString(prop, "$ref")
	if !ok || !strings.HasPrefix(ref, "#/") {
		return prop
	}

	target := walkPointer(root, ref)
	if target == nil {
		return prop
	}

	merged := make(map[string]any, len(target)+len(prop))
	for k, v := range target {
		merged[k] = v
	}
	for k, v := range prop {
		if k == "$ref" {
			continue
		}
		merged[k] = v
	}
	return merged
}

func walkPointer(root map[string]any, ref string) map[string]any {
	segments := strings.Split(strings.TrimPrefix(ref, "#/"), "/")
	var current any = root
	for _, seg := range segments {
		m, ok := asMap(current)
		if !ok {
			return nil
		}
		current = m[seg]
	}
	target, _ := asMap(current)
	return target
}

// resolveProperty applies $ref, allOf, and anyOf/oneOf handling to a single
// property map.
func resolveProperty(root, prop map[string]any) map[string]any {
	prop = resolveRef(root, prop)

	if members, ok := asSlice(prop["allOf"]); ok {
		merged := map[string]any{}
		for _, member := range members {
			m, ok := asMap(member)
			if !ok {
				continue
			}
			for k, v := range resolveRef(root, m) {
				merged[k] = v
			}
		}
		for k, v := range prop {
			if k == "allOf" {
				continue
			}
			merged[k] = v
		}
		prop = merged
	}

	for _, key := range []string{"anyOf", "oneOf"} {
		members, ok := asSlice(prop[key])
		if !ok {
			continue
		}
		var collected []any
		for _, member := range members {
			m, ok := asMap(member)
			if !ok {
				continue
			}
			m = resolveRef(root, m)
			if enum, ok := asSlice(m["enum"]); ok {
				collected = append(collected, enum...)
			} else if c, exists := m["const"]; exists {
				collected = append(collected, c)
			}
		}
		if len(collected) > 0 {
			if _, exists := prop["enum"]; !exists {
				clone := make(map[string]any, len(prop)+1)
				for k, v := range prop {
					clone[k] = v
				}
				clone["enum"] = collected
				prop = clone
			}
		}
	}

	return prop
}

// schemaParameter maps a resolved OpenAPI property onto a UI parameter.
func schemaParameter(key string, prop map[string]any) UIParameter {
	param := UIParameter{
		ID:      key,
		Label:   humanize(key),
		GroupID: groupFor(key),
	}

	if title, ok := getString(prop, "title"); ok && strings.TrimSpace(title) != "" {
		param.Label = title
	}
	if desc, ok := getString(prop, "description"); ok {
		param.Description = desc
	}
	if def, exists := prop["default"]; exists {
		param.Default = def
	}

	schemaType, _ := getString(prop, "type")
	if schemaType == "array" {
		param.Multiple = true
		if items, ok := getMap(prop, "items"); ok {
			prop = items
			schemaType, _ = getString(prop, "type")
		}
	}
	if format, ok := getString(prop, "format"); ok && (format == "uri" || format == "binary") {
		param.File = true
	}
	enum, hasEnum := asSlice(prop["enum"])

	switch {
	case hasEnum:
		param.Type = TypeSelect
		param.Options = enumOptions(enum)
	case schemaType == "integer":
		param.Type = TypeNumber
		param.IsInteger = true
		step := 1.0
		param.Step = &step
	case schemaType == "number":
		param.Type = TypeNumber
	case schemaType == "boolean":
		param.Type = TypeBoolean
	case longTextKeys[key]:
		param.Type = TypeTextarea
	default:
		param.Type = TypeText
	}

	if min, ok := getFloat(prop, "minimum"); ok {
		param.Min = &min
	}
	if max, ok := getFloat(prop, "maximum"); ok {
		param.Max = &max
	}

	// aspect_ratio is always a select; without an enum the conventional
	// ratio set is injected.
	if key == "aspect_ratio" {
		param.Type = TypeSelect
		if len(param.Options) == 0 {
			for _, ratio := range defaultAspectRatios {
				param.Options = append(param.Options, Option{Label: ratio, Value: ratio})
			}
		}
	}

	if key == "prompt" {
		param.Required = true
	}

	return param
}

func enumOptions(enum []any) []Option {
	options := make([]Option, 0, len(enum))
	for _, v := range enum {
		options = append(options, Option{Label: valueString(v), Value: v})
	}
	return options
}

// synthesizeParameter builds a parameter that exists only in the overlay,
// inferring its type from the configured default or value list.
func synthesizeParameter(key string, cfg map[string]any) UIParameter {
	param := UIParameter{
		ID:      key,
		Label:   humanize(key),
		Type:    TypeText,
		GroupID: groupFor(key),
	}

	if _, hasValues := cfg["values"]; hasValues {
		param.Type = TypeSelect
	} else if def, exists := cfg["default"]; exists {
		switch def.(type) {
		case bool:
			param.Type = TypeBoolean
		case json.Number, float64, int, int64:
			param.Type = TypeNumber
		}
	}

	return param
}

// flattenOverlay normalizes the accepted overlay shapes into a flat
// param_id -> config map.
func flattenOverlay(overlay map[string]any) map[string]map[string]any {
	out := map[string]map[string]any{}
	if len(overlay) == 0 {
		return out
	}

	if params, ok := getMap(overlay, "parameters"); ok {
		for k, v := range params {
			if cfg, ok := asMap(v); ok {
				out[k] = cfg
			}
		}
		return out
	}

	if rawConfigs, exists := overlay["parameter_configs"]; exists {
		if list, ok := asSlice(rawConfigs); ok {
			for _, item := range list {
				cfg, ok := asMap(item)
				if !ok {
					continue
				}
				if id, ok := getString(cfg, "parameter_id"); ok && id != "" {
					out[id] = cfg
				}
			}
			return out
		}
		if byKey, ok := asMap(rawConfigs); ok {
			for k, v := range byKey {
				cfg, ok := asMap(v)
				if !ok {
					continue
				}
				if id, ok := getString(cfg, "parameter_id"); ok && id != "" {
					out[id] = cfg
				} else {
					out[k] = cfg
				}
			}
			return out
		}
	}

	// Bare map: treat every object value as a parameter config.
	for k, v := range overlay {
		if cfg, ok := asMap(v); ok {
			out[k] = cfg
		}
	}
	return out
}

// tierAllowed evaluates the access rules for a parameter or value config:
// hidden denies unconditionally; an absent or empty access list allows;
// admin always passes; "all" is a wildcard; otherwise set membership.
func tierAllowed(cfg map[string]any, tier identitydomain.Tier) bool {
	if hidden, ok := getBool(cfg, "hidden"); ok && hidden {
		return false
	}

	tiers, exists := cfg["access_tiers"]
	if !exists {
		return true
	}
	list, ok := asSlice(tiers)
	if !ok || len(list) == 0 {
		return true
	}
	if tier == identitydomain.TierAdmin {
		return true
	}
	for _, entry := range list {
		s, ok := entry.(string)
		if !ok {
			continue
		}
		if s == identitydomain.TierAll || s == string(tier) {
			return true
		}
	}
	return false
}

// applyOverrides mutates a parameter with its overlay config and collects
// pricing rules for surcharged values.
func applyOverrides(param *UIParameter, cfg map[string]any, tier identitydomain.Tier, spec *ModelUISpec) {
	if cfg == nil {
		return
	}

	if label, ok := getString(cfg, "label"); ok && strings.TrimSpace(label) != "" {
		param.Label = label
	}
	if def, exists := cfg["default"]; exists {
		param.Default = def
	}
	if group, ok := getString(cfg, "group"); ok && group != "" {
		param.GroupID = group
	}
	if desc, ok := getString(cfg, "description"); ok && desc != "" {
		param.Description = desc
	}
	if t, ok := getString(cfg, "type"); ok {
		switch ParamType(t) {
		case TypeText, TypeTextarea, TypeNumber, TypeSelect, TypeBoolean, TypeSlider:
			param.Type = ParamType(t)
		}
	}
	if min, ok := getFloat(cfg, "min"); ok {
		param.Min = &min
	}
	if max, ok := getFloat(cfg, "max"); ok {
		param.Max = &max
	}
	if step, ok := getFloat(cfg, "step"); ok {
		param.Step = &step
	}
	if required, ok := getBool(cfg, "required"); ok {
		param.Required = required
	}

	values, ok := asSlice(cfg["values"])
	if !ok {
		return
	}

	var options []Option
	for _, raw := range values {
		value, label, surcharge, isDefault, allowed := parseValueConfig(raw, tier)
		if !allowed {
			continue
		}
		options = append(options, Option{Label: label, Value: value, Surcharge: surcharge})
		if isDefault {
			param.Default = value
		}
		if surcharge > 0 {
			spec.PricingRules = append(spec.PricingRules, PricingRule{
				ID:        "pr_" + param.ID + "_" + valueString(value),
				ParamID:   param.ID,
				Operator:  "eq",
				Value:     value,
				Surcharge: surcharge,
				Label:     label,
			})
		}
	}

	if len(options) > 0 {
		param.Options = options
		param.Type = TypeSelect
	}
}

// parseValueConfig accepts either a bare scalar or an object of the form
// {value, label, price, is_default, access_tiers, hidden}.
func parseValueConfig(raw any, tier identitydomain.Tier) (value any, label string, surcharge int64, isDefault, allowed bool) {
	cfg, ok := asMap(raw)
	if !ok {
		return raw, valueString(raw), 0, false, true
	}

	if !tierAllowed(cfg, tier) {
		return nil, "", 0, false, false
	}

	value = cfg["value"]
	label = valueString(value)
	if l, ok := getString(cfg, "label"); ok && l != "" {
		label = l
	}
	if price, ok := getFloat(cfg, "price"); ok && price > 0 {
		surcharge = int64(price)
	}
	if d, ok := getBool(cfg, "is_default"); ok {
		isDefault = d
	}
	return value, label, surcharge, isDefault, true
}

func humanize(key string) string {
	words := strings.Split(strings.ReplaceAll(key, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
