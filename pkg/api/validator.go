package api

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate     *validator.Validate
	trans        ut.Translator
	validateOnce sync.Once
)

// initValidator configures the validator engine to read the same `binding`
// tags the gateway binds requests with, naming fields by their json tag.
func initValidator() {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	locale := en.New()
	uni := ut.New(locale, locale)
	trans, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	validate = v
}

// Validate checks the request shape. It returns nil or a *ValidationError.
func (r *ChatRequest) Validate() error {
	if r == nil {
		return &ValidationError{Fields: map[string]string{"body": "request is required"}}
	}

	validateOnce.Do(initValidator)

	if err := validate.Struct(r); err != nil {
		return &ValidationError{Fields: parseValidationError(err)}
	}
	return nil
}

// parseValidationError converts raw validator errors into field → message.
func parseValidationError(err error) map[string]string {
	errMap := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			// Namespace is "ChatRequest.messages[0].role"; drop the struct name
			field := e.Namespace()
			if idx := strings.Index(field, "."); idx != -1 {
				field = field[idx+1:]
			}
			errMap[field] = e.Translate(trans)
		}
		return errMap
	}

	errMap["body"] = err.Error()
	return errMap
}
