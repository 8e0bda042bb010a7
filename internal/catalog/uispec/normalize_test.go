package uispec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
)

func fluxSpec(t *testing.T) *ModelUISpec {
	t.Helper()
	spec := Resolve("flux-dev", []byte(fluxSchema), nil, identitydomain.TierStarter)
	require.NotNil(t, spec)
	return spec
}

func TestNormalizeDropsUnknownKeys(t *testing.T) {
	spec := fluxSpec(t)
	out := NormalizeInput(spec, map[string]any{
		"prompt":    "a cat",
		"not_a_key": "ignored",
	})
	assert.Equal(t, "a cat", out["prompt"])
	assert.NotContains(t, out, "not_a_key")
}

func TestNormalizePromptAlwaysPreserved(t *testing.T) {
	spec := fluxSpec(t)

	out := NormalizeInput(spec, map[string]any{"prompt": "  padded  "})
	assert.Equal(t, "padded", out["prompt"])

	long := strings.Repeat("x", maxStringLen+500)
	out = NormalizeInput(spec, map[string]any{"prompt": long})
	assert.Len(t, out["prompt"], maxStringLen)

	out = NormalizeInput(spec, map[string]any{})
	assert.Equal(t, "", out["prompt"])
}

func TestNormalizeInteger(t *testing.T) {
	spec := fluxSpec(t)

	t.Run("floors floats", func(t *testing.T) {
		out := NormalizeInput(spec, map[string]any{"num_outputs": 2.9})
		assert.Equal(t, int64(2), out["num_outputs"])
	})

	t.Run("clamps to range", func(t *testing.T) {
		out := NormalizeInput(spec, map[string]any{"num_outputs": 99})
		assert.Equal(t, int64(4), out["num_outputs"])

		out = NormalizeInput(spec, map[string]any{"num_outputs": 0})
		assert.Equal(t, int64(1), out["num_outputs"])
	})

	t.Run("accepts numeric strings", func(t *testing.T) {
		out := NormalizeInput(spec, map[string]any{"num_outputs": "3"})
		assert.Equal(t, int64(3), out["num_outputs"])
	})

	t.Run("seed minus one skips clamping", func(t *testing.T) {
		out := NormalizeInput(spec, map[string]any{"seed": -1})
		assert.Equal(t, int64(-1), out["seed"])
	})
}

func TestNormalizeIntegerStepRounding(t *testing.T) {
	raw := `{"properties": {
	  "prompt": {"type": "string"},
	  "width": {"type": "integer", "minimum": 256, "maximum": 1440}
	}}`
	overlay := `{"parameter_configs": [{"parameter_id": "width", "step": 64}]}`
	spec := Resolve("m", []byte(raw), []byte(overlay), identitydomain.TierStarter)
	require.NotNil(t, spec.Parameter("width").Step)

	out := NormalizeInput(spec, map[string]any{"width": 700})
	assert.Equal(t, int64(704), out["width"])

	out = NormalizeInput(spec, map[string]any{"width": 1000.9})
	assert.Equal(t, int64(1024), out["width"])
}

func TestNormalizeNumberRounding(t *testing.T) {
	spec := fluxSpec(t)

	out := NormalizeInput(spec, map[string]any{"guidance_scale": 7.1234567})
	assert.Equal(t, 7.12346, out["guidance_scale"])

	out = NormalizeInput(spec, map[string]any{"guidance_scale": 25.0})
	assert.Equal(t, 20.0, out["guidance_scale"])

	out = NormalizeInput(spec, map[string]any{"guidance_scale": "not a number"})
	assert.Equal(t, 7.5, mustFloat(t, out["guidance_scale"]))
}

func mustFloat(t *testing.T, v any) float64 {
	t.Helper()
	f, ok := toFloat(v)
	require.True(t, ok)
	return f
}

func TestNormalizeEnum(t *testing.T) {
	spec := fluxSpec(t)

	t.Run("exact match", func(t *testing.T) {
		out := NormalizeInput(spec, map[string]any{"output_format": "png"})
		assert.Equal(t, "png", out["output_format"])
	})

	t.Run("case insensitive match", func(t *testing.T) {
		out := NormalizeInput(spec, map[string]any{"output_format": "PNG"})
		assert.Equal(t, "png", out["output_format"])
	})

	t.Run("no match drops the field", func(t *testing.T) {
		out := NormalizeInput(spec, map[string]any{"output_format": "gif"})
		assert.NotContains(t, out, "output_format")
	})

	t.Run("absent still fills default", func(t *testing.T) {
		out := NormalizeInput(spec, map[string]any{"prompt": "p"})
		assert.Equal(t, "webp", out["output_format"])
	})
}

func TestNormalizeBoolean(t *testing.T) {
	spec := fluxSpec(t)

	for raw, want := range map[any]bool{
		"true":  true,
		"FALSE": false,
		"1":     true,
		"no":    false,
		true:    true,
	} {
		out := NormalizeInput(spec, map[string]any{"disable_safety_checker": raw})
		assert.Equal(t, want, out["disable_safety_checker"], "raw %v", raw)
	}

	out := NormalizeInput(spec, map[string]any{"disable_safety_checker": "maybe"})
	assert.Equal(t, false, out["disable_safety_checker"])
}

func TestNormalizeDropsWhenNoDefault(t *testing.T) {
	spec := fluxSpec(t)
	out := NormalizeInput(spec, map[string]any{"aspect_ratio": 42})
	_, present := out["aspect_ratio"]
	assert.False(t, present)
}

func TestNormalizeArray(t *testing.T) {
	raw := `{"properties": {"prompt": {"type": "string"}, "styles": {"type": "array", "items": {"type": "string"}}}}`
	spec := Resolve("m", []byte(raw), nil, identitydomain.TierStarter)
	require.True(t, spec.Parameter("styles").Multiple)

	t.Run("wraps single value", func(t *testing.T) {
		out := NormalizeInput(spec, map[string]any{"styles": "noir"})
		assert.Equal(t, []any{"noir"}, out["styles"])
	})

	t.Run("decodes json string", func(t *testing.T) {
		out := NormalizeInput(spec, map[string]any{"styles": `["noir", "vivid"]`})
		assert.Equal(t, []any{"noir", "vivid"}, out["styles"])
	})

	t.Run("passes arrays through", func(t *testing.T) {
		out := NormalizeInput(spec, map[string]any{"styles": []any{"noir"}})
		assert.Equal(t, []any{"noir"}, out["styles"])
	})
}

func TestNormalizeFile(t *testing.T) {
	raw := `{"properties": {"prompt": {"type": "string"}, "image": {"type": "string", "format": "uri"}}}`
	spec := Resolve("m", []byte(raw), nil, identitydomain.TierStarter)
	require.True(t, spec.Parameter("image").File)

	out := NormalizeInput(spec, map[string]any{"image": "https://example.com/in.png"})
	assert.Equal(t, "https://example.com/in.png", out["image"])

	out = NormalizeInput(spec, map[string]any{"image": "data:image/png;base64,AAAA"})
	assert.Equal(t, "data:image/png;base64,AAAA", out["image"])

	out = NormalizeInput(spec, map[string]any{"image": "ftp://example.com/in.png"})
	assert.NotContains(t, out, "image")
}

func TestNormalizeCinemaPrePass(t *testing.T) {
	raw := `{"properties": {
	  "prompt": {"type": "string"},
	  "width": {"type": "integer", "minimum": 64, "maximum": 4096},
	  "height": {"type": "integer", "minimum": 64, "maximum": 4096}
	}}`
	spec := Resolve("m", []byte(raw), nil, identitydomain.TierStarter)

	t.Run("orientation maps to dimensions", func(t *testing.T) {
		out := NormalizeInput(spec, map[string]any{"prompt": "p", "orientation": "portrait"})
		assert.Equal(t, int64(1080), out["width"])
		assert.Equal(t, int64(1920), out["height"])
	})

	t.Run("explicit dimensions win", func(t *testing.T) {
		out := NormalizeInput(spec, map[string]any{"prompt": "p", "format": "landscape", "width": 512})
		assert.Equal(t, int64(512), out["width"])
		assert.Equal(t, int64(1080), out["height"])
	})

	t.Run("skipped when aspect_ratio exists", func(t *testing.T) {
		arSpec := Resolve("flux-dev", []byte(fluxSchema), nil, identitydomain.TierStarter)
		out := NormalizeInput(arSpec, map[string]any{"prompt": "p", "orientation": "portrait"})
		assert.NotContains(t, out, "width")
	})
}
