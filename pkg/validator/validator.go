// Package validator configures go-playground/validator with the family domain tags.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
)

// FieldError is one failed rule, named by its JSON field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var messages = map[string]string{
	"required":    "is required",
	"email":       "must be a valid email address",
	"min":         "is too short",
	"max":         "is too long",
	"dive":        "is invalid",
	"family_role": "must be one of account_owner, co_admin, caregiver, viewer",
	"capability":  "is not a known capability",
}

// New returns a validator with the domain tags registered.
func New() *validator.Validate {
	v := validator.New()
	if err := Register(v); err != nil {
		panic(err)
	}
	return v
}

// Register adds the domain tags and JSON field naming to v.
func Register(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("family_role", func(fl validator.FieldLevel) bool {
		return model.FamilyRole(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("capability", func(fl validator.FieldLevel) bool {
		return model.Capability(fl.Field().String()).Valid()
	})
}

// RegisterGinBinding installs the domain tags on gin's default binding engine.
func RegisterGinBinding() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
	}
	return Register(v)
}

// Fields flattens validation failures. Other errors produce nil.
func Fields(err error) []FieldError {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return nil
	}
	out := make([]FieldError, 0, len(errs))
	for _, e := range errs {
		msg, ok := messages[e.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed %s", e.Tag())
		}
		out = append(out, FieldError{Field: e.Field(), Message: msg})
	}
	return out
}

// Describe renders err as a single human readable line.
func Describe(err error) string {
	fields := Fields(err)
	if len(fields) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return strings.Join(parts, "; ")
}
