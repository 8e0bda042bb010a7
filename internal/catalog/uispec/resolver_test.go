package uispec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
)

const fluxSchema = `{
  "components": {
    "schemas": {
      "Input": {
        "properties": {
          "prompt": {"type": "string", "title": "Prompt", "description": "Text prompt"},
          "seed": {"type": "integer", "minimum": -1},
          "guidance_scale": {"type": "number", "minimum": 0, "maximum": 20, "default": 7.5},
          "num_outputs": {"type": "integer", "minimum": 1, "maximum": 4, "default": 1},
          "output_format": {"type": "string", "enum": ["webp", "jpg", "png"], "default": "webp"},
          "aspect_ratio": {"type": "string"},
          "disable_safety_checker": {"type": "boolean", "default": false}
        }
      }
    }
  }
}`

func TestResolveSchemaShapes(t *testing.T) {
	t.Run("openapi components input", func(t *testing.T) {
		spec := Resolve("flux-dev", []byte(fluxSchema), nil, identitydomain.TierStarter)
		require.NotNil(t, spec)
		assert.Equal(t, "flux-dev", spec.ModelID)
		assert.Len(t, spec.Parameters, 7)
	})

	t.Run("nested parameters with ref", func(t *testing.T) {
		raw := `{
		  "definitions": {
		    "GenParams": {
		      "properties": {
		        "prompt": {"type": "string"},
		        "steps": {"type": "integer", "minimum": 1, "maximum": 50}
		      }
		    }
		  },
		  "properties": {
		    "parameters": {"$ref": "#/definitions/GenParams"}
		  }
		}`
		spec := Resolve("m", []byte(raw), nil, identitydomain.TierStarter)
		require.NotNil(t, spec.Parameter("steps"))
		assert.Equal(t, TypeNumber, spec.Parameter("steps").Type)
	})

	t.Run("root properties fallback", func(t *testing.T) {
		raw := `{"properties": {"prompt": {"type": "string"}}}`
		spec := Resolve("m", []byte(raw), nil, identitydomain.TierStarter)
		require.NotNil(t, spec.Parameter("prompt"))
	})

	t.Run("empty schema yields empty spec", func(t *testing.T) {
		spec := Resolve("m", []byte(`{}`), nil, identitydomain.TierStarter)
		assert.Empty(t, spec.Parameters)
		assert.Len(t, spec.Groups, 2)
	})
}

func TestResolveTypeMapping(t *testing.T) {
	spec := Resolve("flux-dev", []byte(fluxSchema), nil, identitydomain.TierStarter)

	prompt := spec.Parameter("prompt")
	require.NotNil(t, prompt)
	assert.Equal(t, TypeTextarea, prompt.Type)
	assert.True(t, prompt.Required)
	assert.Equal(t, "Prompt", prompt.Label)

	seed := spec.Parameter("seed")
	require.NotNil(t, seed)
	assert.Equal(t, TypeNumber, seed.Type)
	require.NotNil(t, seed.Step)
	assert.Equal(t, 1.0, *seed.Step)

	guidance := spec.Parameter("guidance_scale")
	require.NotNil(t, guidance)
	assert.Equal(t, TypeNumber, guidance.Type)
	assert.Nil(t, guidance.Step)
	assert.Equal(t, 0.0, *guidance.Min)
	assert.Equal(t, 20.0, *guidance.Max)

	format := spec.Parameter("output_format")
	require.NotNil(t, format)
	assert.Equal(t, TypeSelect, format.Type)
	require.Len(t, format.Options, 3)
	assert.Equal(t, "webp", format.Options[0].Value)

	checker := spec.Parameter("disable_safety_checker")
	require.NotNil(t, checker)
	assert.Equal(t, TypeBoolean, checker.Type)
	assert.Equal(t, false, checker.Default)
}

func TestResolveAspectRatioInjection(t *testing.T) {
	spec := Resolve("flux-dev", []byte(fluxSchema), nil, identitydomain.TierStarter)

	ratio := spec.Parameter("aspect_ratio")
	require.NotNil(t, ratio)
	assert.Equal(t, TypeSelect, ratio.Type)
	require.Len(t, ratio.Options, 5)
	assert.Equal(t, "1:1", ratio.Options[0].Value)
	assert.Equal(t, "3:4", ratio.Options[4].Value)
}

func TestResolveOrderingAndGroups(t *testing.T) {
	spec := Resolve("flux-dev", []byte(fluxSchema), nil, identitydomain.TierStarter)

	require.GreaterOrEqual(t, len(spec.Parameters), 4)
	assert.Equal(t, "prompt", spec.Parameters[0].ID)
	assert.Equal(t, "aspect_ratio", spec.Parameters[1].ID)

	assert.Equal(t, GroupBasic, spec.Parameter("prompt").GroupID)
	assert.Equal(t, GroupBasic, spec.Parameter("aspect_ratio").GroupID)
	assert.Equal(t, GroupAdvanced, spec.Parameter("guidance_scale").GroupID)
	assert.Equal(t, GroupAdvanced, spec.Parameter("seed").GroupID)
}

func TestResolveCompositeSchemas(t *testing.T) {
	t.Run("allOf merge outer wins", func(t *testing.T) {
		raw := `{
		  "$defs": {"Base": {"type": "integer", "minimum": 1, "maximum": 10}},
		  "properties": {
		    "steps": {"allOf": [{"$ref": "#/$defs/Base"}], "maximum": 50, "default": 25}
		  }
		}`
		spec := Resolve("m", []byte(raw), nil, identitydomain.TierStarter)
		steps := spec.Parameter("steps")
		require.NotNil(t, steps)
		assert.Equal(t, TypeNumber, steps.Type)
		assert.Equal(t, 1.0, *steps.Min)
		assert.Equal(t, 50.0, *steps.Max)
	})

	t.Run("anyOf enum collection", func(t *testing.T) {
		raw := `{
		  "properties": {
		    "style": {"anyOf": [{"enum": ["vivid", "natural"]}, {"const": "raw"}]}
		  }
		}`
		spec := Resolve("m", []byte(raw), nil, identitydomain.TierStarter)
		style := spec.Parameter("style")
		require.NotNil(t, style)
		assert.Equal(t, TypeSelect, style.Type)
		require.Len(t, style.Options, 3)
		assert.Equal(t, "raw", style.Options[2].Value)
	})
}

func TestResolveOverlayAccessControl(t *testing.T) {
	overlay := `{
	  "parameters": {
	    "seed": {"hidden": true},
	    "guidance_scale": {"access_tiers": ["pro", "studio"]},
	    "num_outputs": {"access_tiers": []},
	    "output_format": {"access_tiers": ["all"]}
	  }
	}`

	t.Run("starter", func(t *testing.T) {
		spec := Resolve("flux-dev", []byte(fluxSchema), []byte(overlay), identitydomain.TierStarter)
		assert.Nil(t, spec.Parameter("seed"))
		assert.Nil(t, spec.Parameter("guidance_scale"))
		assert.NotNil(t, spec.Parameter("num_outputs"))
		assert.NotNil(t, spec.Parameter("output_format"))
	})

	t.Run("pro", func(t *testing.T) {
		spec := Resolve("flux-dev", []byte(fluxSchema), []byte(overlay), identitydomain.TierPro)
		assert.NotNil(t, spec.Parameter("guidance_scale"))
	})

	t.Run("admin bypasses tier lists but not hidden", func(t *testing.T) {
		spec := Resolve("flux-dev", []byte(fluxSchema), []byte(overlay), identitydomain.TierAdmin)
		assert.Nil(t, spec.Parameter("seed"))
		assert.NotNil(t, spec.Parameter("guidance_scale"))
	})
}

func TestResolveOverlayOverrides(t *testing.T) {
	overlay := `{
	  "parameter_configs": [
	    {
	      "parameter_id": "guidance_scale",
	      "label": "Creativity",
	      "type": "slider",
	      "min": 1,
	      "max": 15,
	      "step": 0.5,
	      "default": 5,
	      "group": "basic"
	    },
	    {
	      "parameter_id": "output_format",
	      "values": [
	        {"value": "webp", "is_default": true},
	        {"value": "png", "label": "PNG (lossless)", "price": 2},
	        {"value": "tiff", "access_tiers": ["studio"]}
	      ]
	    },
	    {
	      "parameter_id": "upscale",
	      "default": false
	    }
	  ]
	}`

	spec := Resolve("flux-dev", []byte(fluxSchema), []byte(overlay), identitydomain.TierPro)

	guidance := spec.Parameter("guidance_scale")
	require.NotNil(t, guidance)
	assert.Equal(t, "Creativity", guidance.Label)
	assert.Equal(t, TypeSlider, guidance.Type)
	assert.Equal(t, 1.0, *guidance.Min)
	assert.Equal(t, 0.5, *guidance.Step)
	assert.Equal(t, GroupBasic, guidance.GroupID)

	format := spec.Parameter("output_format")
	require.NotNil(t, format)
	require.Len(t, format.Options, 2)
	assert.Equal(t, "webp", format.Default)
	assert.Equal(t, "PNG (lossless)", format.Options[1].Label)
	assert.Equal(t, int64(2), format.Options[1].Surcharge)

	require.Len(t, spec.PricingRules, 1)
	rule := spec.PricingRules[0]
	assert.Equal(t, "pr_output_format_png", rule.ID)
	assert.Equal(t, "output_format", rule.ParamID)
	assert.Equal(t, "eq", rule.Operator)
	assert.Equal(t, int64(2), rule.Surcharge)

	// Overlay-only parameter is synthesized after schema parameters.
	upscale := spec.Parameter("upscale")
	require.NotNil(t, upscale)
	assert.Equal(t, TypeBoolean, upscale.Type)
	assert.Equal(t, false, upscale.Default)
}

func TestResolveValueAccessPerTier(t *testing.T) {
	overlay := `{
	  "parameters": {
	    "output_format": {
	      "values": [
	        {"value": "webp"},
	        {"value": "tiff", "access_tiers": ["studio"]}
	      ]
	    }
	  }
	}`

	starter := Resolve("flux-dev", []byte(fluxSchema), []byte(overlay), identitydomain.TierStarter)
	require.Len(t, starter.Parameter("output_format").Options, 1)

	studio := Resolve("flux-dev", []byte(fluxSchema), []byte(overlay), identitydomain.TierStudio)
	require.Len(t, studio.Parameter("output_format").Options, 2)
}

func TestResolveDeterminism(t *testing.T) {
	overlay := `{"parameters": {"output_format": {"values": [{"value": "png", "price": 2}, {"value": "webp", "is_default": true}]}}}`

	first, err := json.Marshal(Resolve("flux-dev", []byte(fluxSchema), []byte(overlay), identitydomain.TierPro))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		next, err := json.Marshal(Resolve("flux-dev", []byte(fluxSchema), []byte(overlay), identitydomain.TierPro))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(next))
	}
}

func TestHashIgnoresKeyOrder(t *testing.T) {
	a := []byte(`{"b": 1, "a": {"y": true, "x": [1, 2]}}`)
	b := []byte(`{"a": {"x": [1, 2], "y": true}, "b": 1}`)
	c := []byte(`{"a": {"x": [2, 1], "y": true}, "b": 1}`)

	assert.Equal(t, Hash(a, nil), Hash(b, nil))
	assert.NotEqual(t, Hash(a, nil), Hash(c, nil))
}
