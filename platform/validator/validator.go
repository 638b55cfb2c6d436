// Package validator wraps go-playground/validator with the custom tags and
// error shape used by the HTTP handlers.
package validator

import (
	"errors"
	"reflect"
	"strings"

	"chable_leads_backend/platform/phone"

	"github.com/go-playground/validator/v10"
)

// Validator validates request structs. Field names in errors are the
// json (or form) tag names.
type Validator struct {
	v *validator.Validate
}

// New registers:
//
//	e164able: the value normalizes to an E.164 phone number
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(tagName)
	_ = v.RegisterValidation("e164able", func(fl validator.FieldLevel) bool {
		normalized := phone.NormalizeE164(fl.Field().String())
		return len(normalized) > 1 && normalized[0] == '+'
	})
	return &Validator{v: v}
}

func (val *Validator) Struct(s any) error {
	return val.v.Struct(s)
}

func (val *Validator) Var(field any, tag string) error {
	return val.v.Var(field, tag)
}

// Fields flattens validation errors into field -> failed tag, e.g.
// {"sender": "e164able"}. Other errors yield nil.
func Fields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if name == "" {
			name = "value"
		}
		out[name] = fe.Tag()
	}
	return out
}

func tagName(f reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}
