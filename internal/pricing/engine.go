package pricing

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	catalogdomain "github.com/smallbiznis/artline/internal/catalog/domain"
	"github.com/smallbiznis/artline/internal/catalog/uispec"
	"github.com/smallbiznis/artline/internal/clock"
)

const (
	BaseImageCost int64 = 10
	BaseVideoCost int64 = 50
)

// modelAdjustment tweaks the base cost for provider families whose upstream
// pricing diverges from the flat per-kind base.
type modelAdjustment struct {
	match      string
	multiplier float64
	fixed      int64
	label      string
}

var adjustments = []modelAdjustment{
	{match: "flux-pro", fixed: 55, label: "flux-pro flat rate"},
	{match: "runway", multiplier: 1.3, label: "runway premium"},
	{match: "luma", multiplier: 0.8, label: "luma discount"},
}

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

// Engine computes credit quotes from the catalog entry, the resolved spec,
// and the normalized input.
type Engine struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) *Engine {
	return &Engine{
		log:   p.Log.Named("pricing.engine"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

// BaseCost is the flat per-kind cost before adjustments and surcharges.
// A model's credits_per_generation is catalog metadata only and never
// replaces the kind base.
func BaseCost(model *catalogdomain.AIModel) int64 {
	if model.Kind == catalogdomain.KindVideo {
		return BaseVideoCost
	}
	return BaseImageCost
}

func (e *Engine) Quote(model *catalogdomain.AIModel, spec *uispec.ModelUISpec, input map[string]any) *Quote {
	base := BaseCost(model)

	items := []LineItem{{Label: "base", Amount: base}}
	total := base

	if adj := matchAdjustment(model.ProviderModel); adj != nil {
		adjusted := total
		if adj.fixed > 0 {
			adjusted = adj.fixed
		} else {
			adjusted = int64(math.Ceil(float64(total) * adj.multiplier))
		}
		if delta := adjusted - total; delta != 0 {
			items = append(items, LineItem{Label: adj.label, Amount: delta})
		}
		total = adjusted
	}

	for _, rule := range spec.PricingRules {
		if rule.Operator != "eq" || rule.Surcharge <= 0 {
			continue
		}
		raw, ok := input[rule.ParamID]
		if !ok || !valueEqual(raw, rule.Value) {
			continue
		}
		label := rule.Label
		if label == "" {
			label = rule.ID
		}
		items = append(items, LineItem{Label: label, Amount: rule.Surcharge})
		total += rule.Surcharge
	}

	if total < 0 {
		total = 0
	}

	breakdown, _ := json.Marshal(items)
	return &Quote{
		ID:        e.genID.Generate(),
		ModelID:   model.ID,
		BaseCost:  base,
		Total:     total,
		Breakdown: datatypes.JSON(breakdown),
		CreatedAt: e.clock.Now(),
	}
}

func matchAdjustment(providerModel string) *modelAdjustment {
	name := strings.ToLower(providerModel)
	for i := range adjustments {
		if strings.Contains(name, adjustments[i].match) {
			return &adjustments[i]
		}
	}
	return nil
}

// valueEqual compares a normalized input value with a rule value across the
// numeric and string representations JSON decoding can produce.
func valueEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := toComparableFloat(a)
	bf, bok := toComparableFloat(b)
	if aok && bok {
		return af == bf
	}
	return stringify(a) == stringify(b)
}

func toComparableFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

var Module = fx.Module("pricing.engine",
	fx.Provide(New),
)
