// Package insightrules evaluates operator-authored boolean rules over run
// metrics. Rules are CEL expressions compiled per workspace against the
// workspace's metric schema; a matching rule surfaces its message as an
// extra insight alongside the built-in decision table.
package insightrules

import "time"

// Rule is one operator-authored insight rule.
type Rule struct {
	ID         string
	Name       string
	Expression string
	Message    string // insight text surfaced when the rule matches
	Impact     string // high, medium, low
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RuleHit is the outcome of evaluating one rule.
type RuleHit struct {
	RuleID   string
	RuleName string
	Matched  bool
	Message  string
	Impact   string
	Error    error
}
