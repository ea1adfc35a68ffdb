package insightrules

import (
	"fmt"
	"regexp"
	"strings"
)

// MetricSchema maps fact object names to field-name -> type-name maps.
// It defines the CEL variables a workspace's rules can reference.
type MetricSchema map[string]map[string]string

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateSchema checks a metric schema definition before an environment
// is built from it.
func ValidateSchema(schema MetricSchema) error {
	if len(schema) == 0 {
		return fmt.Errorf("schema cannot be empty, must contain at least one object definition")
	}
	if len(schema) > 100 {
		return fmt.Errorf("schema contains %d objects, maximum allowed is 100", len(schema))
	}

	for objectName, fields := range schema {
		if err := validateIdentifier(objectName); err != nil {
			return fmt.Errorf("invalid object name %q: %w", objectName, err)
		}

		if len(fields) == 0 {
			return fmt.Errorf("object %q must contain at least one field", objectName)
		}
		if len(fields) > 200 {
			return fmt.Errorf("object %q contains %d fields, maximum allowed is 200", objectName, len(fields))
		}

		for fieldName, typeName := range fields {
			if err := validateIdentifier(fieldName); err != nil {
				return fmt.Errorf("invalid field name %q in object %q: %w", fieldName, objectName, err)
			}
			if typeName == "" {
				return fmt.Errorf("field %q in object %q has empty type name", fieldName, objectName)
			}
			if strings.TrimSpace(typeName) != typeName {
				return fmt.Errorf("field %q in object %q has type with leading/trailing whitespace: %q", fieldName, objectName, typeName)
			}
			if !isValidCELType(typeName) {
				return fmt.Errorf("field %q in object %q has invalid type %q (must be one of: int, int64, float64, string, bool, bytes, timestamp, duration)", fieldName, objectName, typeName)
			}
		}
	}

	return nil
}

func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 100 {
		return fmt.Errorf("identifier length %d exceeds maximum of 100 characters", len(name))
	}
	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$ (start with letter or underscore, followed by letters, digits, or underscores)")
	}
	if isReservedKeyword(name) {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}
	return nil
}

func isValidCELType(typeName string) bool {
	switch typeName {
	case "int", "int64", "float64", "string", "bool", "bytes", "timestamp", "duration":
		return true
	}
	return false
}

// isReservedKeyword checks against CEL reserved words.
func isReservedKeyword(name string) bool {
	reserved := map[string]bool{
		"true": true, "false": true, "null": true,
		"if": true, "else": true, "for": true, "while": true,
		"break": true, "continue": true, "return": true,
		"var": true, "let": true, "const": true, "function": true,
		"in": true, "as": true, "import": true, "package": true,
		"namespace": true, "loop": true, "void": true,
	}
	return reserved[name]
}
