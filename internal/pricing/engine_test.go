package pricing_test

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	catalogdomain "github.com/smallbiznis/artline/internal/catalog/domain"
	"github.com/smallbiznis/artline/internal/catalog/uispec"
	"github.com/smallbiznis/artline/internal/clock"
	"github.com/smallbiznis/artline/internal/pricing"
)

func newEngine(t *testing.T) (*pricing.Engine, *snowflake.Node) {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	return pricing.New(pricing.Params{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
	}), node
}

func emptySpec() *uispec.ModelUISpec {
	return &uispec.ModelUISpec{}
}

func TestQuoteBaseByKind(t *testing.T) {
	engine, _ := newEngine(t)

	image := &catalogdomain.AIModel{Kind: catalogdomain.KindImage, ProviderModel: "stability-ai/sdxl"}
	assert.Equal(t, int64(10), engine.Quote(image, emptySpec(), nil).Total)

	video := &catalogdomain.AIModel{Kind: catalogdomain.KindVideo, ProviderModel: "some/video-model"}
	assert.Equal(t, int64(50), engine.Quote(video, emptySpec(), nil).Total)
}

func TestQuoteIgnoresCatalogRate(t *testing.T) {
	engine, _ := newEngine(t)

	model := &catalogdomain.AIModel{
		Kind:                 catalogdomain.KindImage,
		ProviderModel:        "stability-ai/sdxl",
		CreditsPerGeneration: 25,
	}
	quote := engine.Quote(model, emptySpec(), nil)
	assert.Equal(t, int64(10), quote.BaseCost)
	assert.Equal(t, int64(10), quote.Total)
}

func TestQuoteProviderAdjustments(t *testing.T) {
	engine, _ := newEngine(t)

	t.Run("runway ceil 30 percent", func(t *testing.T) {
		model := &catalogdomain.AIModel{Kind: catalogdomain.KindVideo, ProviderModel: "runwayml/gen-3"}
		assert.Equal(t, int64(65), engine.Quote(model, emptySpec(), nil).Total)
	})

	t.Run("luma ceil minus 20 percent", func(t *testing.T) {
		model := &catalogdomain.AIModel{Kind: catalogdomain.KindVideo, ProviderModel: "luma/dream-machine"}
		assert.Equal(t, int64(40), engine.Quote(model, emptySpec(), nil).Total)
	})

	t.Run("flux pro flat rate", func(t *testing.T) {
		model := &catalogdomain.AIModel{Kind: catalogdomain.KindImage, ProviderModel: "black-forest-labs/flux-pro"}
		assert.Equal(t, int64(55), engine.Quote(model, emptySpec(), nil).Total)
	})

	t.Run("ceil applies to odd totals", func(t *testing.T) {
		model := &catalogdomain.AIModel{Kind: catalogdomain.KindImage, ProviderModel: "runwayml/frames"}
		// ceil(10 * 1.3) = 13
		assert.Equal(t, int64(13), engine.Quote(model, emptySpec(), nil).Total)
	})
}

func TestQuoteValueSurcharges(t *testing.T) {
	engine, _ := newEngine(t)

	model := &catalogdomain.AIModel{Kind: catalogdomain.KindImage, ProviderModel: "stability-ai/sdxl"}
	spec := &uispec.ModelUISpec{
		PricingRules: []uispec.PricingRule{
			{ID: "pr_output_format_png", ParamID: "output_format", Operator: "eq", Value: "png", Surcharge: 2, Label: "PNG"},
			{ID: "pr_num_outputs_4", ParamID: "num_outputs", Operator: "eq", Value: 4, Surcharge: 8},
		},
	}

	t.Run("no matches", func(t *testing.T) {
		quote := engine.Quote(model, spec, map[string]any{"output_format": "webp"})
		assert.Equal(t, int64(10), quote.Total)
	})

	t.Run("string match", func(t *testing.T) {
		quote := engine.Quote(model, spec, map[string]any{"output_format": "png"})
		assert.Equal(t, int64(12), quote.Total)
	})

	t.Run("numeric match across representations", func(t *testing.T) {
		quote := engine.Quote(model, spec, map[string]any{"num_outputs": int64(4)})
		assert.Equal(t, int64(18), quote.Total)
	})

	t.Run("stacked surcharges", func(t *testing.T) {
		quote := engine.Quote(model, spec, map[string]any{
			"output_format": "png",
			"num_outputs":   int64(4),
		})
		assert.Equal(t, int64(20), quote.Total)
	})
}

func TestQuoteBreakdown(t *testing.T) {
	engine, _ := newEngine(t)

	model := &catalogdomain.AIModel{Kind: catalogdomain.KindVideo, ProviderModel: "runwayml/gen-3"}
	quote := engine.Quote(model, emptySpec(), nil)

	require.NotEmpty(t, quote.Breakdown)
	assert.Contains(t, string(quote.Breakdown), `"base"`)
	assert.Contains(t, string(quote.Breakdown), "runway premium")
	assert.NotZero(t, quote.ID)
}
