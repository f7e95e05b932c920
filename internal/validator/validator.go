// Package validator checks request DTOs with go-playground/validator and the
// gallery rules registered on top of it.
//
// Besides the built-in tags, DTOs may use:
//
//	sortfield   a domain.SortField accepted by gallery listings
//	provider    a supported provider name (ex or jm)
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"favorites-sync-service/internal/domain"
)

// Validator wraps the go-playground validator with the gallery rules.
type Validator struct {
	v *validator.Validate
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error joins the messages of every failed field.
func (ve ValidationErrors) Error() string {
	msgs := make([]string, len(ve))
	for i, e := range ve {
		msgs[i] = e.Message
	}

	return strings.Join(msgs, "; ")
}

// rules are the custom tags; each checks a string field.
var rules = map[string]func(string) bool{
	"sortfield": func(s string) bool { return domain.SortField(s).Valid() },
	"provider":  domain.IsProvider,
}

// messages render a FieldError per tag. Tags without an entry fall back to
// a generic message.
var messages = map[string]func(field string, e validator.FieldError) string{
	"required": func(f string, _ validator.FieldError) string {
		return f + " is required"
	},
	"min": func(f string, e validator.FieldError) string {
		return fmt.Sprintf("%s must be at least %s", f, e.Param())
	},
	"max": func(f string, e validator.FieldError) string {
		return fmt.Sprintf("%s must be at most %s", f, e.Param())
	},
	"oneof": func(f string, e validator.FieldError) string {
		return fmt.Sprintf("%s must be one of: %s", f, e.Param())
	},
	"url": func(f string, _ validator.FieldError) string {
		return f + " must be a valid URL"
	},
	"alpha": func(f string, _ validator.FieldError) string {
		return f + " must contain only letters"
	},
	"sortfield": func(f string, _ validator.FieldError) string {
		names := make([]string, len(domain.SortFields))
		for i, s := range domain.SortFields {
			names[i] = string(s)
		}
		return fmt.Sprintf("%s must be one of: %s", f, strings.Join(names, " "))
	},
	"provider": func(f string, _ validator.FieldError) string {
		return fmt.Sprintf("%s must be one of: %s %s", f, domain.ProviderEx, domain.ProviderJM)
	},
}

// New creates a Validator. Errors name fields by their json tag, or by
// their query tag for query-string DTOs.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(fieldName)

	for tag, check := range rules {
		// registration only fails on empty or reserved tags
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return check(fl.Field().String())
		})
	}

	return &Validator{v: v}
}

func fieldName(fld reflect.StructField) string {
	for _, key := range []string{"json", "query"} {
		name, _, _ := strings.Cut(fld.Tag.Get(key), ",")
		switch name {
		case "":
			continue
		case "-":
			return fld.Name
		default:
			return name
		}
	}

	return fld.Name
}

// Validate validates the given struct and returns ValidationErrors if invalid.
func (v *Validator) Validate(i any) error {
	err := v.v.Struct(i)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	errs := make(ValidationErrors, 0, len(verrs))
	for _, e := range verrs {
		errs = append(errs, ValidationError{
			Field:   e.Field(),
			Tag:     e.Tag(),
			Value:   fmt.Sprintf("%v", e.Value()),
			Message: message(e),
		})
	}

	return errs
}

func message(e validator.FieldError) string {
	if render, ok := messages[e.Tag()]; ok {
		return render(e.Field(), e)
	}

	return fmt.Sprintf("%s failed %s validation", e.Field(), e.Tag())
}
