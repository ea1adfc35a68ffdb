package narrative

import "time"

// TemplateContext is the read-only variable environment a template is
// resolved against. Values may be nested map[string]any, numbers, strings,
// or booleans. Processors never mutate it.
type TemplateContext map[string]any

// FormatTag selects how a numeric value is rendered.
type FormatTag string

const (
	FormatPlain    FormatTag = "plain"
	FormatPercent  FormatTag = "percent"
	FormatCurrency FormatTag = "currency"
	FormatCompact  FormatTag = "compact"
)

// ConditionalValue is either a literal string or a condition with two
// branches. ElseValue may itself be a conditional, forming a chain.
type ConditionalValue struct {
	Literal   string            `json:"literal,omitempty"`
	Condition string            `json:"condition,omitempty"`
	ThenValue string            `json:"thenValue,omitempty"`
	ElseValue *ConditionalValue `json:"elseValue,omitempty"`
}

// Template is a headline/body pair with optional conditional variable
// definitions. Placeholders use {{path}} syntax; a placeholder may carry a
// format tag as {{path|percent}}.
type Template struct {
	Headline  string                      `json:"headline"`
	Body      string                      `json:"body"`
	Variables map[string]ConditionalValue `json:"variables,omitempty"`
}

// ResolvedNarrative is the processor's only output.
type ResolvedNarrative struct {
	Headline  string `json:"headline"`
	Narrative string `json:"narrative"`
}

// Impact levels for a hero insight.
const (
	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"
)

// Trend directions for a hero insight.
const (
	TrendPositive = "positive"
	TrendNegative = "negative"
	TrendNeutral  = "neutral"
)

// HeroInsight is the single headline insight summarizing a run.
type HeroInsight struct {
	KeyInsight     string  `json:"keyInsight"`
	Impact         string  `json:"impact"`
	Trend          string  `json:"trend"`
	Confidence     float64 `json:"confidence"`
	DataQuality    float64 `json:"dataQuality"`
	Recommendation string  `json:"recommendation"`
	Context        string  `json:"context,omitempty"`
}

// MondayAction is a recommended next step derived from a run.
type MondayAction struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Priority       string `json:"priority"` // immediate, high, medium
	Effort         string `json:"effort"`   // low, medium, high
	ExpectedImpact string `json:"expectedImpact"`
	Owner          string `json:"owner,omitempty"`
}

// Metrics are the quantitative inputs to insight synthesis.
type Metrics struct {
	DataQualityScore float64 `json:"dataQualityScore"` // 0-100
	Confidence       float64 `json:"confidence"`       // 0-100
	AnomalyCount     int     `json:"anomalyCount"`
	RecordsProcessed int     `json:"recordsProcessed"`
	ModelFit         float64 `json:"modelFit"` // negative indicates a poor fit
}

// Anomaly is one flagged irregularity from the upstream run.
type Anomaly struct {
	Field       string `json:"field"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// SynthesisResult is either a suppression marker or an evaluated insight
// with its actions. Exactly one of the two is populated; callers check
// Suppressed before reading Insight.
type SynthesisResult struct {
	Suppressed       bool           `json:"suppressed"`
	SuppressedReason string         `json:"suppressedReason,omitempty"`
	Insight          *HeroInsight   `json:"insight,omitempty"`
	Actions          []MondayAction `json:"actions,omitempty"`
}

// SegmentType labels a segment for presentation.
type SegmentType struct {
	Label      string `json:"label"`
	Icon       string `json:"icon"`
	ColorClass string `json:"colorClass"`
}

// SegmentRecord is one classified cluster extracted from a narrative
// document. SizePercent values across one extraction sum to ~100.
type SegmentRecord struct {
	Name              string      `json:"name"`
	DisplayName       string      `json:"displayName"`
	SegmentType       SegmentType `json:"segmentType"`
	Size              int         `json:"size"`
	SizePercent       float64     `json:"sizePercent"`
	AvgValue          float64     `json:"avgValue"`
	RiskLevel         string      `json:"riskLevel"` // low, medium, high
	KeyTrait          string      `json:"keyTrait"`
	Differentiator    string      `json:"differentiator"`
	KeyBehavior       string      `json:"keyBehavior"`
	RecommendedAction string      `json:"recommendedAction"` // Retain, Upsell, Re-engage, Monitor, Acquire
}

// NarrativeTemplate is a stored, named template scoped to a workspace.
type NarrativeTemplate struct {
	ID          string                      `json:"id"`
	WorkspaceID string                      `json:"workspaceId"`
	Name        string                      `json:"name"`
	Headline    string                      `json:"headline"`
	Body        string                      `json:"body"`
	Variables   map[string]ConditionalValue `json:"variables,omitempty"`
	Active      bool                        `json:"active"`
	CreatedAt   time.Time                   `json:"createdAt"`
	UpdatedAt   time.Time                   `json:"updatedAt"`
}

// Template returns the renderable template held by a stored record.
func (t *NarrativeTemplate) Template() Template {
	return Template{Headline: t.Headline, Body: t.Body, Variables: t.Variables}
}
