package narrative

import (
	"errors"
	"testing"
)

func TestEvaluateConditionComparisons(t *testing.T) {
	testCases := []struct {
		name string
		expr string
		want bool
	}{
		{"Greater than true", "12 > 5", true},
		{"Greater than false", "5 > 12", false},
		{"Less or equal", "5 <= 5", true},
		{"Equality", "3.5 == 3.5", true},
		{"Inequality", "3.5 != 3.5", false},
		{"String equality", `"high" == "high"`, true},
		{"String inequality", `"high" != "low"`, true},
		{"String ordering", `"apple" < "banana"`, true},
		{"Single-quoted strings", `'a' == 'a'`, true},
		{"Boolean literal", "true", true},
		{"Negated literal", "!false", true},
		{"Arithmetic", "2 + 3 * 4 > 13", true},
		{"Arithmetic precedence", "(2 + 3) * 4 > 13", true},
		{"Division", "10 / 4 == 2.5", true},
		{"Unary minus", "-5 < 0", true},
		{"And composition", "1 < 2 && 3 < 4", true},
		{"And short side false", "1 < 2 && 4 < 3", false},
		{"Or composition", "1 > 2 || 3 < 4", true},
		{"Nested parens", "((1 < 2) && (2 < 3)) || false", true},
		{"Bool equality", "true == true", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EvaluateCondition(tc.expr)
			if err != nil {
				t.Fatalf("EvaluateCondition(%q) failed: %v", tc.expr, err)
			}
			if got != tc.want {
				t.Errorf("EvaluateCondition(%q) = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

// Anything outside the whitelist must be rejected before evaluation, with
// the ErrUnsafeExpression marker.
func TestEvaluateConditionRejectsUnsafeInput(t *testing.T) {
	testCases := []struct {
		name string
		expr string
	}{
		{"Semicolon", "1 > 0; 2 > 1"},
		{"Identifier", "alert > 1"},
		{"Function call shape", "alert(1) > 0"},
		{"Bracket access", "a[0] > 1"},
		{"Comma", "1, 2"},
		{"Backtick", "`cmd` == 1"},
		{"Percent", "5 % 2 == 1"},
		{"Unterminated string", `"open == 1`},
		{"Braces", "{1} > 0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := EvaluateCondition(tc.expr)
			if err == nil {
				t.Fatalf("EvaluateCondition(%q) should be rejected", tc.expr)
			}
			if !errors.Is(err, ErrUnsafeExpression) {
				t.Errorf("EvaluateCondition(%q) error = %v, want ErrUnsafeExpression", tc.expr, err)
			}
		})
	}
}

// Letters inside quoted string literals are fine; the same letters bare
// are not.
func TestWhitelistQuoteHandling(t *testing.T) {
	if _, err := EvaluateCondition(`"premium" == "premium"`); err != nil {
		t.Errorf("quoted letters should pass the whitelist: %v", err)
	}
	if _, err := EvaluateCondition(`premium == premium`); !errors.Is(err, ErrUnsafeExpression) {
		t.Errorf("bare identifiers should be rejected, got %v", err)
	}
}

// Expressions that pass the whitelist but fail to parse or evaluate return
// an error distinct from ErrUnsafeExpression; callers downgrade either to
// a false condition.
func TestEvaluateConditionMalformed(t *testing.T) {
	testCases := []struct {
		name string
		expr string
	}{
		{"Unbalanced parens", "(1 > 0"},
		{"Dangling operator", "1 >"},
		{"Double operator", "1 > > 2"},
		{"Empty", ""},
		{"Lone operator", "&&"},
		{"Single ampersand", "1 > 0 & 2 > 1"},
		{"Single pipe", "1 > 0 | 2 > 1"},
		{"Single equals", "1 = 1"},
		{"Non-boolean result", "1 + 2"},
		{"Mixed type comparison", `1 == "1"`},
		{"Bool ordering", "true < false"},
		{"Division by zero", "1 / 0 > 1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EvaluateCondition(tc.expr)
			if err == nil {
				t.Fatalf("EvaluateCondition(%q) should fail, got %v", tc.expr, got)
			}
			if errors.Is(err, ErrUnsafeExpression) {
				t.Errorf("EvaluateCondition(%q) should be a parse/eval fault, not a whitelist rejection", tc.expr)
			}
			if got {
				t.Errorf("failed evaluation must report false")
			}
		})
	}
}

// Repeated evaluation of the same expression is deterministic.
func TestEvaluateConditionIdempotent(t *testing.T) {
	const expr = `12.5 > 10 && "a" < "b"`
	first, err := EvaluateCondition(expr)
	if err != nil {
		t.Fatalf("EvaluateCondition failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		got, err := EvaluateCondition(expr)
		if err != nil || got != first {
			t.Fatalf("iteration %d: got (%v, %v), want (%v, nil)", i, got, err, first)
		}
	}
}
