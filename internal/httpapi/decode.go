package httpapi

import (
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
)

// DecodeRemoteCall checks a JSON remote call body against the request schema
// and struct rules and decodes it. Every front end that accepts a remote call
// goes through here so they reject the same inputs.
func DecodeRemoteCall(body []byte, validate *validator.Validate) (remotecall.Input, *remotecall.DomainError) {
	var in remotecall.Input
	if !json.Valid(body) {
		return in, remotecall.NewValidationError("body", "request body must be a JSON object")
	}

	if err := validateSchema(body); err != nil {
		var violation *schemaViolation
		if errors.As(err, &violation) {
			return in, remotecall.NewValidationError(violation.fields[0], violation.Error()).
				WithContext(map[string]interface{}{"fields": violation.fields})
		}
		return in, remotecall.NewInternalError("schema validation", err)
	}

	if err := json.Unmarshal(body, &in); err != nil {
		return in, remotecall.NewValidationError("body", err.Error())
	}
	if validate == nil {
		validate = validator.New()
	}
	if err := validate.Struct(in); err != nil {
		return in, fieldError(err)
	}
	return in, nil
}
