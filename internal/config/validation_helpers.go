package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	jgerrors "github.com/alexisbeaulieu97/jumpgate/pkg/errors"
)

// convertValidationError normalizes validator errors into jumpgate validation errors.
func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return jgerrors.NewValidationError(field, msg, err)
	}

	return jgerrors.NewValidationError("config", err.Error(), err)
}

// yamlishFieldName maps a struct namespace like Config.Limits.RetryInterval
// onto the yaml keys limits.retry_interval.
func yamlishFieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}

	var names []string
	typ := reflect.TypeOf(Config{})
	for _, part := range parts {
		if typ == nil || typ.Kind() != reflect.Struct {
			names = append(names, strings.ToLower(part))
			continue
		}
		field, ok := typ.FieldByName(part)
		if !ok {
			names = append(names, strings.ToLower(part))
			typ = nil
			continue
		}
		names = append(names, yamlKey(field))
		typ = field.Type
	}
	return strings.Join(names, ".")
}

func yamlKey(field reflect.StructField) string {
	tag := field.Tag.Get("yaml")
	if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
		return name
	}
	return strings.ToLower(field.Name)
}
