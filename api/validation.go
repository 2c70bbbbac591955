package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"hermannm.dev/wrap"
)

const maxRequestBodyBytes = 1 << 20

type requestValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func newRequestValidator() requestValidator {
	english := en.New()
	translator, _ := ut.New(english, english).GetTranslator("en")

	validate := validator.New(validator.WithRequiredStructEnabled())

	// Use JSON field names in messages, since those are what the client sent
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	// Only fails if the translator is misconfigured, in which case messages fall back to the
	// validator's own
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	return requestValidator{validate: validate, translator: translator}
}

// Decodes the JSON body of the request into target, and validates it against its struct tags.
// Returned errors are fit to be shown to the client.
func (validation requestValidator) decodeBody(req *http.Request, target any) error {
	decoder := json.NewDecoder(io.LimitReader(req.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return wrap.Error(err, "invalid JSON in request body")
	}
	if decoder.More() {
		return errors.New("unexpected data after JSON in request body")
	}

	return validation.validateStruct(target)
}

func (validation requestValidator) validateStruct(target any) error {
	err := validation.validate.Struct(target)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	messages := make([]error, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		messages = append(messages, errors.New(fieldErr.Translate(validation.translator)))
	}

	if len(messages) == 1 {
		return messages[0]
	}
	return wrap.Errors(fmt.Sprintf("%d invalid fields in request body", len(messages)), messages...)
}
