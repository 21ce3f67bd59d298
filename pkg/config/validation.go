package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// ValidationError represents a single configuration validation failure.
type ValidationError struct {
	Field string
	Tag   string
	Value interface{}
}

func (e *ValidationError) Error() string {
	switch e.Tag {
	case "required":
		return fmt.Sprintf("%s is required", e.Field)
	case "min":
		return fmt.Sprintf("%s is below the allowed minimum", e.Field)
	case "max":
		return fmt.Sprintf("%s is above the allowed maximum", e.Field)
	case "oneof":
		return fmt.Sprintf("%s has an unsupported value %q", e.Field, fmt.Sprint(e.Value))
	default:
		return fmt.Sprintf("%s failed validation (%s)", e.Field, e.Tag)
	}
}

// ValidationErrors aggregates every failure found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	messages := make([]string, 0, len(e))
	for i := range e {
		messages = append(messages, e[i].Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks the configuration against its struct tags and returns all
// failures at once, wrapped under an InvalidInput code.
func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Wrap(err, errors.InvalidInput, "config validation failed")
	}

	var verrs ValidationErrors
	for _, fe := range fieldErrs {
		// Trim the "Config." prefix so messages read as file paths
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		verrs = append(verrs, ValidationError{
			Field: field,
			Tag:   fe.Tag(),
			Value: fe.Value(),
		})
	}

	return errors.Wrap(verrs, errors.InvalidInput, "invalid configuration")
}
