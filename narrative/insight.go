package narrative

import (
	"fmt"
	"strings"

	"github.com/datapulse/narrative/internal/logger"
)

// limitationMarkers are the phrases an upstream generator plants in the
// narrative when a run's conclusions should not be presented. Matching is
// case-insensitive over the whole document.
var limitationMarkers = []string{
	"suppressed due to confidence",
	"confidence below threshold",
	"insufficient data to conclude",
	"blocked by policy",
	"governance hold",
}

// lowConfidenceThreshold activates limitations mode regardless of the
// narrative text.
const lowConfidenceThreshold = 30.0

// Synthesize runs the limitations gate, then the hero-insight decision
// table and the action triggers. When suppressed, the result carries a
// fixed neutral insight pointing at governance review and no actions;
// no further rules are evaluated.
func Synthesize(narrativeText string, m Metrics, anomalies []Anomaly) SynthesisResult {
	if reason, limited := limitationsMode(narrativeText, m); limited {
		logger.SuppressedRun(reason)
		return SynthesisResult{
			Suppressed:       true,
			SuppressedReason: reason,
			Insight: &HeroInsight{
				KeyInsight:     "Results withheld pending review",
				Impact:         ImpactLow,
				Trend:          TrendNeutral,
				Confidence:     m.Confidence,
				DataQuality:    m.DataQualityScore,
				Recommendation: "Resolve the underlying confidence or policy condition before acting on this run.",
				Context:        "This run is under governance review; insights and actions are suppressed.",
			},
		}
	}

	insight := SynthesizeHeroInsight(narrativeText, m)
	return SynthesisResult{
		Insight: &insight,
		Actions: SynthesizeActions(narrativeText, m, anomalies),
	}
}

// limitationsMode reports whether synthesis must be suppressed, either by
// a marker phrase in the narrative or by a confidence score at or below
// the threshold.
func limitationsMode(narrativeText string, m Metrics) (string, bool) {
	lower := strings.ToLower(narrativeText)
	for _, marker := range limitationMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Sprintf("narrative contains %q", marker), true
		}
	}
	if m.Confidence <= lowConfidenceThreshold {
		return fmt.Sprintf("confidence %.0f at or below threshold %.0f", m.Confidence, lowConfidenceThreshold), true
	}
	return "", false
}

// SynthesizeHeroInsight applies the ordered decision table over anomaly
// rate and data quality. Branches are mutually exclusive; the first match
// fires. Callers in limitations mode must not reach this.
func SynthesizeHeroInsight(narrativeText string, m Metrics) HeroInsight {
	rate := anomalyRate(m)
	confidence := blendConfidence(m, rate)

	base := HeroInsight{
		Confidence:  confidence,
		DataQuality: m.DataQualityScore,
	}

	switch {
	case rate > 0.10:
		base.KeyInsight = fmt.Sprintf("%s anomalies detected across %s records (%.1f%% of the run)",
			groupThousands(int64(m.AnomalyCount)), groupThousands(int64(m.RecordsProcessed)), rate*100)
		base.Impact = ImpactHigh
		base.Trend = TrendNegative
		base.Recommendation = "Triage the anomalous records before relying on downstream aggregates."

	case rate > 0.05:
		base.KeyInsight = fmt.Sprintf("Notable anomalies: %s of %s records flagged (%.1f%%)",
			groupThousands(int64(m.AnomalyCount)), groupThousands(int64(m.RecordsProcessed)), rate*100)
		base.Impact = ImpactMedium
		base.Trend = TrendNegative
		base.Recommendation = "Review flagged records; results are usable with caveats."

	case m.DataQualityScore >= 90:
		base.KeyInsight = fmt.Sprintf("Excellent data quality (%.0f/100) with a clean anomaly profile", m.DataQualityScore)
		base.Impact = ImpactLow
		base.Trend = TrendPositive
		base.Recommendation = "Results are reliable; proceed with the recommended actions."

	case m.DataQualityScore >= 70:
		base.KeyInsight = fmt.Sprintf("Good analytical foundation at %.0f/100 data quality", m.DataQualityScore)
		base.Impact = ImpactMedium
		base.Trend = TrendNeutral
		base.Recommendation = "Results are directionally sound; close the remaining quality gaps."

	default:
		base.KeyInsight = fmt.Sprintf("Data quality concerns: %.0f/100 undermines this run's conclusions", m.DataQualityScore)
		base.Impact = ImpactHigh
		base.Trend = TrendNegative
		base.Recommendation = "Fix source data quality before acting on these results."
	}

	return base
}

// SynthesizeActions checks each trigger independently and appends one
// action per hit, in trigger order, capped at four.
func SynthesizeActions(narrativeText string, m Metrics, anomalies []Anomaly) []MondayAction {
	rate := anomalyRate(m)
	lower := strings.ToLower(narrativeText)
	actions := make([]MondayAction, 0, 4)

	if rate > 0.10 {
		desc := fmt.Sprintf("%s records (%.1f%%) were flagged as anomalous; isolate the affected sources.",
			groupThousands(int64(m.AnomalyCount)), rate*100)
		if len(anomalies) > 0 {
			desc += fmt.Sprintf(" Start with %q.", anomalies[0].Field)
		}
		actions = append(actions, MondayAction{
			Title:          "Investigate anomaly sources",
			Description:    desc,
			Priority:       "immediate",
			Effort:         "medium",
			ExpectedImpact: "Restores trust in downstream aggregates",
			Owner:          "Data engineering",
		})
	}

	if m.DataQualityScore < 80 {
		actions = append(actions, MondayAction{
			Title:          "Raise data quality above 80",
			Description:    fmt.Sprintf("Quality score is %.0f/100; profile the worst offending fields and add validation upstream.", m.DataQualityScore),
			Priority:       "high",
			Effort:         "medium",
			ExpectedImpact: "Fewer caveats on every future run",
			Owner:          "Data engineering",
		})
	}

	if containsAny(lower, "segment", "cluster", "persona", "cohort") {
		actions = append(actions, MondayAction{
			Title:          "Activate segment playbooks",
			Description:    "The run identified distinct segments; route each to its matching retention or growth playbook.",
			Priority:       "medium",
			Effort:         "low",
			ExpectedImpact: "Targeted outreach instead of broadcast messaging",
			Owner:          "Lifecycle marketing",
		})
	}

	if containsAny(lower, "regression", "model", "forecast", "r²", "r2") {
		if m.ModelFit < 0 {
			actions = append(actions, MondayAction{
				Title:          "Revisit modeling assumptions",
				Description:    "The fitted model explains less than a naive baseline; audit feature selection and leakage before reuse.",
				Priority:       "high",
				Effort:         "high",
				ExpectedImpact: "Prevents decisions based on a misleading model",
				Owner:          "Data science",
			})
		} else {
			actions = append(actions, MondayAction{
				Title:          "Operationalize model outputs",
				Description:    "Model results look stable; schedule the scoring job and wire outputs into the activation layer.",
				Priority:       "medium",
				Effort:         "medium",
				ExpectedImpact: "Analysis becomes a repeatable input to operations",
				Owner:          "Data science",
			})
		}
	}

	if len(actions) > 4 {
		actions = actions[:4]
	}
	return actions
}

func anomalyRate(m Metrics) float64 {
	if m.RecordsProcessed <= 0 {
		return 0
	}
	return float64(m.AnomalyCount) / float64(m.RecordsProcessed)
}

// blendConfidence mixes data quality with the anomaly picture, clamped to
// [50, 95] for runs that passed the limitations gate.
func blendConfidence(m Metrics, rate float64) float64 {
	c := 0.7*m.DataQualityScore + 0.3*(100-rate*100)
	if c < 50 {
		return 50
	}
	if c > 95 {
		return 95
	}
	return c
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
