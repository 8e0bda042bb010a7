package uispec

// ParamType is the UI control rendered for a parameter.
type ParamType string

const (
	TypeText     ParamType = "text"
	TypeTextarea ParamType = "textarea"
	TypeNumber   ParamType = "number"
	TypeSelect   ParamType = "select"
	TypeBoolean  ParamType = "boolean"
	TypeSlider   ParamType = "slider"
)

const (
	GroupBasic    = "basic"
	GroupAdvanced = "advanced"
)

// Option is a selectable value, optionally carrying a credit surcharge.
type Option struct {
	Label     string `json:"label"`
	Value     any    `json:"value"`
	Surcharge int64  `json:"surcharge,omitempty"`
}

type UIParameter struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Type        ParamType `json:"type"`
	Default     any       `json:"default,omitempty"`
	Required    bool      `json:"required"`
	Min         *float64  `json:"min,omitempty"`
	Max         *float64  `json:"max,omitempty"`
	Step        *float64  `json:"step,omitempty"`
	Options     []Option  `json:"options,omitempty"`
	Description string    `json:"description,omitempty"`
	GroupID     string    `json:"group_id"`
	Hidden      bool      `json:"hidden,omitempty"`
	Multiple    bool      `json:"multiple,omitempty"`
	File        bool      `json:"file,omitempty"`
	IsInteger   bool      `json:"-"`
}

type Group struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// PricingRule surcharges the quote when a parameter equals a value.
type PricingRule struct {
	ID        string `json:"id"`
	ParamID   string `json:"param_id"`
	Operator  string `json:"operator"`
	Value     any    `json:"value"`
	Surcharge int64  `json:"surcharge"`
	Label     string `json:"label,omitempty"`
}

// ModelUISpec is the tier-filtered parameter specification for one model.
type ModelUISpec struct {
	ModelID      string        `json:"model_id"`
	Groups       []Group       `json:"groups"`
	Parameters   []UIParameter `json:"parameters"`
	PricingRules []PricingRule `json:"pricing_rules"`
}

// Parameter returns the parameter with the given id, or nil.
func (s *ModelUISpec) Parameter(id string) *UIParameter {
	for i := range s.Parameters {
		if s.Parameters[i].ID == id {
			return &s.Parameters[i]
		}
	}
	return nil
}
