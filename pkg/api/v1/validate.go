package v1

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator. It reads the same binding tags
// gin enforces on the server.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.SetTagName("binding")
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// FieldError describes the first failing field of a payload.
type FieldError struct {
	Field string
	Rule  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s failed %s", e.Field, e.Rule)
}

// Validate checks a struct (or pointer to one) against its binding tags
// and returns a *FieldError for the first violation.
func Validate(v interface{}) error {
	if v == nil {
		return &FieldError{Field: "payload", Rule: "required"}
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return &FieldError{Field: "payload", Rule: "required"}
	}
	return firstFieldError(Validator().Struct(v), "")
}

// ValidateEach validates every element of a decoded array payload.
// Nil elements are rejected.
func ValidateEach[T any](items []T) error {
	for i, item := range items {
		if err := Validate(item); err != nil {
			var fe *FieldError
			if errors.As(err, &fe) {
				return &FieldError{Field: fmt.Sprintf("[%d].%s", i, fe.Field), Rule: fe.Rule}
			}
			return err
		}
	}
	return nil
}

func firstFieldError(err error, prefix string) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		ns := verrs[0].Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		return &FieldError{Field: prefix + ns, Rule: verrs[0].Tag()}
	}
	return err
}
