package validate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// PlaygroundV10 Validator implementation using go-playground
type PlaygroundV10 struct {
	core  *validator.Validate
	trans ut.Translator
}

var _ Validator = &PlaygroundV10{}

// NewValidator create a new Validator, messages are translated with the given locale ("en" when unknown)
func NewValidator(locale ...string) *PlaygroundV10 {
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale, zh.New())
	name := "en"
	if len(locale) > 0 && locale[0] != "" {
		name = locale[0]
	}
	trans, found := uni.GetTranslator(name)
	if !found {
		trans, _ = uni.GetTranslator("en")
	}

	validate := validator.New()
	en_translations.RegisterDefaultTranslations(validate, trans)
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			name = fld.Tag.Get("query")
			if name == "-" || name == "" {
				return ""
			}
		}
		return name
	})
	return &PlaygroundV10{
		core:  validate,
		trans: trans,
	}
}

// Struct validate struct
func (v PlaygroundV10) Struct(s interface{}) []*FieldError {
	return v.translate(v.core.Struct(s), "")
}

// Var validate a single value against tag
func (v PlaygroundV10) Var(name string, value interface{}, tag string) []*FieldError {
	return v.translate(v.core.Var(value, tag), name)
}

func (v PlaygroundV10) translate(err error, name string) []*FieldError {
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []*FieldError{NewFieldError(name, err.Error())}
	}
	var result []*FieldError
	for _, item := range errs {
		domain := item.Field()
		if domain == "" {
			domain = name
		}
		reason := item.Translate(v.trans)
		if name != "" {
			reason = name + strings.TrimPrefix(reason, item.Field())
		}
		result = append(result, NewFieldError(domain, reason))
	}
	return result
}

// Empty check if value is empty
func (v PlaygroundV10) Empty(varName string, s interface{}) []*FieldError {
	if err := v.core.Var(s, "required"); err != nil {
		return []*FieldError{NewFieldError(varName, fmt.Sprintf("%s is required", varName))}
	}
	return nil
}

// AllEmpty check if all fields are empty
//
// names and fields have one to one relationship respect to the order
func (v PlaygroundV10) AllEmpty(names []string, fields ...interface{}) *FieldError {
	if len(names) != len(fields) {
		panic(fmt.Errorf("number of name: %d, fields: %d", len(names), len(fields)))
	}

	validate := v.core
	for _, s := range fields {
		if err := validate.Var(s, "required"); err == nil {
			return nil
		}
	}
	return NewFieldError(strings.Join(names, ","), "One of the fields should not be empty")
}
