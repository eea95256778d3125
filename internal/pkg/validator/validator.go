package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

var (
	payoutMethods = []string{"CONNECT_TRANSFER", "AGGREGATOR_PAYOUT", "MANUAL_BANK", "PLATFORM_BALANCE"}
	cardTypes     = []string{"AMAZON", "VISA", "APPLE", "GOOGLE_PLAY"}
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

	registerCustomValidations()
}

func registerCustomValidations() {
	validate.RegisterValidation("payout_method", func(fl validator.FieldLevel) bool {
		return contains(payoutMethods, fl.Field().String())
	})

	validate.RegisterValidation("card_type", func(fl validator.FieldLevel) bool {
		return contains(cardTypes, fl.Field().String())
	})

	// ISO 4217 code, any case
	validate.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		code := fl.Field().String()
		if len(code) != 3 {
			return false
		}
		for _, c := range strings.ToLower(code) {
			if c < 'a' || c > 'z' {
				return false
			}
		}
		return true
	})
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
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
		case "gt":
			errors[field] = "Value must be greater than " + err.Param()
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "oneof":
			errors[field] = "Value must be one of: " + err.Param()
		case "payout_method":
			errors[field] = "Invalid payout method. Must be: " + strings.Join(payoutMethods, ", ")
		case "card_type":
			errors[field] = "Invalid card type. Must be: " + strings.Join(cardTypes, ", ")
		case "currency":
			errors[field] = "Invalid currency code"
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
