package main

import (
	"github.com/datapulse/narrative/insightrules"
	"github.com/datapulse/narrative/narrative"
)

// API request and response models.

// CreateWorkspaceRequest creates a workspace with its metric schema.
type CreateWorkspaceRequest struct {
	Name   string                    `json:"name" example:"Acme Analytics"`
	Schema insightrules.MetricSchema `json:"schema"`
} // @name CreateWorkspaceRequest

// UpdateSchemaRequest replaces a workspace's metric schema.
type UpdateSchemaRequest struct {
	Schema insightrules.MetricSchema `json:"schema"`
} // @name UpdateSchemaRequest

// RenderRequest resolves a template against a context. Exactly one of
// TemplateID and Template must be set.
type RenderRequest struct {
	WorkspaceID string              `json:"workspaceId,omitempty"`
	TemplateID  string              `json:"templateId,omitempty"`
	Template    *narrative.Template `json:"template,omitempty"`
	Context     map[string]any      `json:"context"`
} // @name RenderRequest

// SynthesizeRequest runs insight synthesis over a run's narrative and
// metrics. When WorkspaceID is set, the workspace's custom rules are
// evaluated as well.
type SynthesizeRequest struct {
	WorkspaceID string              `json:"workspaceId,omitempty"`
	Narrative   string              `json:"narrative"`
	Metrics     narrative.Metrics   `json:"metrics"`
	Anomalies   []narrative.Anomaly `json:"anomalies,omitempty"`
} // @name SynthesizeRequest

// SynthesizeResponse carries the built-in synthesis result plus any
// custom rule hits.
type SynthesizeResponse struct {
	Result   narrative.SynthesisResult `json:"result"`
	RuleHits []RuleHitResponse         `json:"ruleHits,omitempty"`
} // @name SynthesizeResponse

// RuleHitResponse is one custom rule outcome.
type RuleHitResponse struct {
	RuleID   string `json:"ruleId"`
	RuleName string `json:"ruleName"`
	Matched  bool   `json:"matched"`
	Message  string `json:"message,omitempty"`
	Impact   string `json:"impact,omitempty"`
	Error    string `json:"error,omitempty"`
} // @name RuleHitResponse

// ExtractSegmentsRequest parses a narrative document into segments.
type ExtractSegmentsRequest struct {
	Document string `json:"document"`
} // @name ExtractSegmentsRequest

// CreateTemplateRequest stores a new narrative template.
type CreateTemplateRequest struct {
	Name      string                                `json:"name" example:"Weekly revenue recap"`
	Headline  string                                `json:"headline" example:"Revenue grew {{pct|percent}}"`
	Body      string                                `json:"body"`
	Variables map[string]narrative.ConditionalValue `json:"variables,omitempty"`
	Active    bool                                  `json:"active"`
} // @name CreateTemplateRequest

// CreateRuleRequest stores a new insight rule.
type CreateRuleRequest struct {
	Name       string `json:"name" example:"High anomaly alert"`
	Expression string `json:"expression" example:"Metrics.anomalyCount > 100"`
	Message    string `json:"message"`
	Impact     string `json:"impact" example:"high"`
	Active     bool   `json:"active"`
} // @name CreateRuleRequest

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
} // @name ErrorResponse
