package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FieldViolation is one failed constraint on one config field.
type FieldViolation struct {
	Path  string      // dotted field namespace, e.g. Config.Server.Port
	Rule  string      // the constraint tag that failed
	Param string      // the constraint parameter, if any
	Value interface{} // the offending value
}

func (v FieldViolation) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", v.Path, describeRule(v.Rule, v.Param), v.Value)
}

// InvalidConfigError aggregates every violation found in one pass, so
// a bad config file is fixed in one round trip instead of several.
type InvalidConfigError struct {
	Violations []FieldViolation
}

func (e *InvalidConfigError) Error() string {
	lines := make([]string, 0, len(e.Violations)+1)
	lines = append(lines, "configuration validation failed:")
	for _, v := range e.Violations {
		lines = append(lines, "  - "+v.Error())
	}
	return strings.Join(lines, "\n")
}

// ValidateWithDetails checks cfg against its struct tags and reports
// every violation rather than stopping at the first.
func ValidateWithDetails(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &InvalidConfigError{Violations: make([]FieldViolation, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Violations = append(out.Violations, FieldViolation{
			Path:  fe.Namespace(),
			Rule:  fe.Tag(),
			Param: fe.Param(),
			Value: fe.Value(),
		})
	}
	return out
}

func describeRule(rule, param string) string {
	switch rule {
	case "required":
		return "value is required"
	case "min", "gte":
		return "must be at least " + param
	case "max", "lte":
		return "must be at most " + param
	case "oneof":
		return "must be one of " + param
	}
	return "violates constraint " + rule
}
