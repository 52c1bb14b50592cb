package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

const phoneNumberRule = "len=11,number"

// ValidationOptions tunes record validation.
type ValidationOptions struct {
	// Strict rejects unknown top-level fields. The contents of features are never checked.
	Strict bool
}

// DefaultValidationOptions rejects unknown fields.
var DefaultValidationOptions = ValidationOptions{Strict: true}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidatePhoneNumber fails unless value is exactly 11 ASCII digits.
func ValidatePhoneNumber(value string) error {
	if err := validate.Var(value, phoneNumberRule); err != nil {
		return &ValidationError{Field: "phoneNumber", Message: "must be 11 digits long"}
	}
	return nil
}

// ValidateRecord decodes a JSON subscriber payload and validates every field present in it.
// Keys must match the field table exactly, and a present key may not be null.
func ValidateRecord(payload []byte, opts ValidationOptions) (*SubscriberPatch, error) {
	patch := &SubscriberPatch{}
	if len(bytes.TrimSpace(payload)) == 0 {
		return patch, nil
	}

	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&raw); err != nil {
		return nil, decodeError(err)
	}
	if raw == nil {
		return nil, &ValidationError{Message: "payload must be of type object"}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ValidationError{Message: "payload must contain a single JSON object"}
	}

	var errs ValidationErrors
	if opts.Strict {
		for _, key := range unknownKeys(raw) {
			errs = append(errs, &ValidationError{Field: key, Message: "is not allowed"})
		}
	}

	for _, f := range Fields {
		value, ok := raw[f.JSON]
		if !ok {
			continue
		}
		if isJSONNull(value) {
			errs = append(errs, &ValidationError{Field: f.JSON, Message: "must be of type " + expectedType(f.JSON)})
			continue
		}
		if err := patch.set(f.JSON, value); err != nil {
			errs = append(errs, &ValidationError{Field: f.JSON, Message: "must be of type " + expectedType(f.JSON)})
		}
	}

	if err := patch.Validate(); err != nil {
		var fieldErrs ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, err
		}
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return patch, nil
}

func (p *SubscriberPatch) set(field string, value json.RawMessage) error {
	switch field {
	case "phoneNumber":
		return json.Unmarshal(value, &p.PhoneNumber)
	case "username":
		return json.Unmarshal(value, &p.Username)
	case "password":
		return json.Unmarshal(value, &p.Password)
	case "domain":
		return json.Unmarshal(value, &p.Domain)
	case "status":
		return json.Unmarshal(value, &p.Status)
	case "features":
		p.Features = append(json.RawMessage(nil), value...)
		return nil
	default:
		return fmt.Errorf("unknown field %q", field)
	}
}

func unknownKeys(raw map[string]json.RawMessage) []string {
	var unknown []string
	for key := range raw {
		if !slices.ContainsFunc(Fields, func(f Field) bool { return f.JSON == key }) {
			unknown = append(unknown, key)
		}
	}
	slices.Sort(unknown)
	return unknown
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Validate checks the field rules on an already decoded patch.
func (p *SubscriberPatch) Validate() error {
	var errs ValidationErrors

	if err := validate.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return &ValidationError{Message: err.Error()}
		}
		for _, fe := range fieldErrs {
			errs = append(errs, &ValidationError{Field: fe.Field(), Message: ruleMessage(fe)})
		}
	}

	if p.Features != nil && !isJSONObject(p.Features) {
		errs = append(errs, &ValidationError{Field: "features", Message: "must be of type object"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "len", "number":
		return "must be 11 digits long"
	case "fqdn":
		return "must contain a valid domain name"
	case "min":
		return "is not allowed to be empty"
	default:
		return fmt.Sprintf("failed on the '%s' rule", fe.Tag())
	}
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		if typeErr.Field == "" {
			return &ValidationError{Message: "payload must be of type object"}
		}
		return &ValidationError{Field: typeErr.Field, Message: "must be of type " + expectedType(typeErr.Field)}
	case errors.As(err, &syntaxErr):
		return &ValidationError{Message: fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)}
	default:
		return &ValidationError{Message: err.Error()}
	}
}

func expectedType(field string) string {
	switch field {
	case "status":
		return "boolean"
	case "features":
		return "object"
	default:
		return "string"
	}
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
