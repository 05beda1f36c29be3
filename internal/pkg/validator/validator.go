package validator

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Validator instance
var validate *validator.Validate

var (
	enumsMu sync.RWMutex
	enums   = map[string]map[string]struct{}{}
)

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Money travels as decimal.Decimal; validate its canonical string form.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	registerCustomValidations()
}

func registerCustomValidations() {
	validate.RegisterValidation("iso_currency", func(fl validator.FieldLevel) bool {
		return isUpperAlpha(fl.Field().String(), 3)
	})

	validate.RegisterValidation("iso_country", func(fl validator.FieldLevel) bool {
		return isUpperAlpha(fl.Field().String(), 2)
	})

	validate.RegisterValidation("decimal_positive", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		return d.IsPositive()
	})
}

// RegisterEnum registers a tag that accepts exactly the given values.
// Domains call it from init to expose their closed vocabularies.
func RegisterEnum(tag string, values ...string) {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}

	enumsMu.Lock()
	_, registered := enums[tag]
	enums[tag] = set
	enumsMu.Unlock()

	if registered {
		return
	}
	validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		enumsMu.RLock()
		defer enumsMu.RUnlock()
		_, ok := enums[tag][fl.Field().String()]
		return ok
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errors := make(map[string]string)
	for _, err := range validationErrors {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "email":
			errors[field] = "Invalid email format"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "iso_currency":
			errors[field] = "Must be an ISO 4217 currency code (e.g. USD)"
		case "iso_country":
			errors[field] = "Must be an ISO 3166-1 alpha-2 country code (e.g. CO)"
		case "decimal_positive":
			errors[field] = "Must be a positive decimal amount"
		case "payment_method":
			errors[field] = "Unknown payment method"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}

func isUpperAlpha(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
