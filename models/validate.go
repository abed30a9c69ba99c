package models

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/shopdash_backend/utils"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator with the dashboard's custom tags registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
			return utils.IsIdentifier(fl.Field().String())
		})
	})
	return validate
}

// ValidationError is a boundary-validation failure, reported to the caller and never cached.
type ValidationError struct {
	Fields map[string]string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	parts := make([]string, 0, len(e.Fields))
	for field, tag := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, tag))
	}
	return "invalid input (" + strings.Join(parts, ", ") + ")"
}

func validationFailure(reason string) error {
	return &ValidationError{Reason: reason}
}

// validateStruct runs the tag validations on obj and flattens the result into a ValidationError.
func validateStruct(obj any) error {
	err := Validator().Struct(obj)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, ve := range verrs {
		fields[ve.Namespace()] = ve.Tag()
	}
	return &ValidationError{Fields: fields}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
