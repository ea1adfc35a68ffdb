package narrative

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"

	"github.com/datapulse/narrative/internal/logger"
)

var (
	headingPattern       = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	clusterIndexPattern  = regexp.MustCompile(`(?i)\b(?:cluster|segment|group)[\s_-]*#?\d+\b[:.]?`)
	parentheticalPattern = regexp.MustCompile(`\([^)]*\)`)
	sizeFieldPattern     = regexp.MustCompile(`(?im)^[\s*-]*(?:\*\*)?size(?:\*\*)?\s*[:=]\s*\**\s*([0-9][0-9,]*)`)
	summaryFieldPattern  = regexp.MustCompile(`(?im)^[\s*-]*(?:\*\*)?(?:summary|description|profile)(?:\*\*)?\s*[:=]\s*\**\s*(.+)$`)
	motivationPattern    = regexp.MustCompile(`(?im)^[\s*-]*(?:\*\*)?(?:motivation|drivers?|why)(?:\*\*)?\s*[:=]\s*\**\s*(.+)$`)
	whitespaceRun        = regexp.MustCompile(`\s+`)
)

// valueTier couples a risk level with the numeric range avgValue is drawn
// from for a segment class.
type valueTier struct {
	risk string
	min  float64
	max  float64
}

// segmentTypeRule classifies a segment by keyword search over its
// normalized name and summary. Rules are evaluated in order; the first
// match wins.
type segmentTypeRule struct {
	keywords []string
	segType  SegmentType
	tier     valueTier
}

var segmentTypeRules = []segmentTypeRule{
	{
		keywords: []string{"value", "premium", "vip", "top spender"},
		segType:  SegmentType{Label: "High Value", Icon: "💎", ColorClass: "text-purple-600"},
		tier:     valueTier{risk: "low", min: 1000, max: 2500},
	},
	{
		keywords: []string{"budget", "price-conscious", "price conscious", "discount", "bargain"},
		segType:  SegmentType{Label: "Value Seeker", Icon: "💰", ColorClass: "text-amber-600"},
		tier:     valueTier{risk: "medium", min: 100, max: 400},
	},
	{
		keywords: []string{"growth", "potential", "emerging", "rising"},
		segType:  SegmentType{Label: "Growth Potential", Icon: "🚀", ColorClass: "text-emerald-600"},
		tier:     valueTier{risk: "medium", min: 300, max: 800},
	},
	{
		keywords: []string{"risk", "churn", "inactive", "lapsed", "dormant"},
		segType:  SegmentType{Label: "At Risk", Icon: "⚠️", ColorClass: "text-red-600"},
		tier:     valueTier{risk: "high", min: 50, max: 250},
	},
	{
		keywords: []string{"new", "recent", "first-time", "onboard"},
		segType:  SegmentType{Label: "New Customer", Icon: "✨", ColorClass: "text-blue-600"},
		tier:     valueTier{risk: "medium", min: 150, max: 500},
	},
}

var defaultSegmentRule = segmentTypeRule{
	segType: SegmentType{Label: "Standard", Icon: "👤", ColorClass: "text-gray-600"},
	tier:    valueTier{risk: "low", min: 200, max: 600},
}

// behaviorRule derives the key behavior from summary + motivation text.
type behaviorRule struct {
	keywords []string
	behavior string
}

var behaviorRules = []behaviorRule{
	{[]string{"engage", "active", "interact"}, "Highly engaged"},
	{[]string{"price", "discount", "cost", "cheap"}, "Price sensitive"},
	{[]string{"quality", "premium", "craft"}, "Quality focused"},
	{[]string{"frequent", "often", "regular", "weekly"}, "Frequent purchaser"},
	{[]string{"loyal", "retention", "repeat"}, "Brand loyal"},
	{[]string{"declin", "drop", "decreas", "reduc", "fading"}, "Declining activity"},
}

const defaultBehavior = "Mixed behavior"

// actionRule maps keyword hits on name + summary to a recommended action.
type actionRule struct {
	keywords []string
	action   string
}

var actionRules = []actionRule{
	{[]string{"churn", "risk", "inactive", "lapsed"}, "Re-engage"},
	{[]string{"loyal", "premium", "vip"}, "Retain"},
	{[]string{"growth", "potential", "upsell"}, "Upsell"},
	{[]string{"new", "acquisition", "prospect"}, "Acquire"},
}

// ExtractSegments parses a heading-delimited narrative document into
// segment records. Blocks without a parseable size field are skipped;
// duplicate names (after normalization) keep only the first occurrence.
// SizePercent is computed once all retained blocks are known and sums
// to ~100. Two identical calls produce identical output.
func ExtractSegments(document string) []SegmentRecord {
	blocks := splitBlocks(document)

	var records []SegmentRecord
	seen := make(map[string]bool)

	for i, block := range blocks {
		name := normalizeName(block.rawName, i+1)

		key := strings.ToLower(name)
		if seen[key] {
			logger.SkippedBlock(name, "duplicate name")
			continue
		}
		seen[key] = true

		size, ok := extractSize(block.body)
		if !ok {
			logger.SkippedBlock(name, "missing size field")
			continue
		}

		summary := firstMatch(summaryFieldPattern, block.body)
		motivation := firstMatch(motivationPattern, block.body)

		rule := classifySegmentType(name, summary)
		avgValue := sampleTierValue(rule.tier, name, size)

		keyTrait := summary
		if keyTrait == "" {
			keyTrait = rule.segType.Label + " segment"
		}
		differentiator := motivation
		if differentiator == "" {
			differentiator = "No distinguishing driver identified"
		}

		records = append(records, SegmentRecord{
			Name:              name,
			DisplayName:       name,
			SegmentType:       rule.segType,
			Size:              size,
			AvgValue:          avgValue,
			RiskLevel:         rule.tier.risk,
			KeyTrait:          keyTrait,
			Differentiator:    differentiator,
			KeyBehavior:       classifyBehavior(summary + " " + motivation),
			RecommendedAction: classifyAction(name, summary, avgValue, rule.tier.risk),
		})
	}

	total := 0
	for _, r := range records {
		total += r.Size
	}
	if total > 0 {
		for i := range records {
			records[i].SizePercent = float64(records[i].Size) / float64(total) * 100
		}
	}

	return records
}

type segmentBlock struct {
	rawName string
	body    string
}

// splitBlocks cuts the document at heading markers. The first line of each
// block is the raw candidate name; everything before the first heading is
// preamble and ignored.
func splitBlocks(document string) []segmentBlock {
	locs := headingPattern.FindAllStringIndex(document, -1)

	var blocks []segmentBlock
	for i, loc := range locs {
		end := len(document)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		chunk := document[loc[1]:end]

		rawName := chunk
		body := ""
		if nl := strings.IndexByte(chunk, '\n'); nl >= 0 {
			rawName = chunk[:nl]
			body = chunk[nl+1:]
		}
		blocks = append(blocks, segmentBlock{rawName: strings.TrimSpace(rawName), body: body})
	}
	return blocks
}

// normalizeName strips cluster indices and parenthetical annotations,
// collapses repeated consecutive words case-insensitively, and falls back
// to a generated placeholder when too little survives.
func normalizeName(raw string, ordinal int) string {
	s := clusterIndexPattern.ReplaceAllString(raw, " ")
	s = parentheticalPattern.ReplaceAllString(s, " ")
	s = strings.Trim(s, " \t:-–—*#")
	s = whitespaceRun.ReplaceAllString(s, " ")

	words := strings.Fields(s)
	var kept []string
	for _, w := range words {
		if len(kept) > 0 && strings.EqualFold(kept[len(kept)-1], w) {
			continue
		}
		kept = append(kept, w)
	}
	s = strings.Join(kept, " ")

	if len(s) < 3 {
		return fmt.Sprintf("Segment %d", ordinal)
	}
	return s
}

func extractSize(body string) (int, bool) {
	m := sizeFieldPattern.FindStringSubmatch(body)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func firstMatch(re *regexp.Regexp, body string) string {
	m := re.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(m[1], "*"))
}

func classifySegmentType(name, summary string) segmentTypeRule {
	haystack := strings.ToLower(name + " " + summary)
	for _, rule := range segmentTypeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule
			}
		}
	}
	return defaultSegmentRule
}

func classifyBehavior(text string) string {
	haystack := strings.ToLower(text)
	for _, rule := range behaviorRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.behavior
			}
		}
	}
	return defaultBehavior
}

// classifyAction applies keyword rules first, then numeric thresholds on
// the derived value and risk.
func classifyAction(name, summary string, avgValue float64, riskLevel string) string {
	haystack := strings.ToLower(name + " " + summary)
	for _, rule := range actionRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.action
			}
		}
	}

	switch {
	case riskLevel == "high":
		return "Re-engage"
	case avgValue >= 800:
		return "Retain"
	case avgValue >= 400:
		return "Upsell"
	default:
		return "Monitor"
	}
}

// sampleTierValue picks a value inside the tier range deterministically
// from the segment's name and size, so repeated extraction of the same
// document is byte-identical.
func sampleTierValue(tier valueTier, name string, size int) float64 {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(name)))
	h.Write([]byte(strconv.Itoa(size)))

	span := tier.max - tier.min
	frac := float64(h.Sum64()%10000) / 10000
	v := tier.min + span*frac
	// Round to cents so JSON round-trips cleanly.
	return float64(int(v*100)) / 100
}
