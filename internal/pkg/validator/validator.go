package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

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

func oneOf(values ...string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		v := strings.ToLower(strings.TrimSpace(fl.Field().String()))
		for _, allowed := range values {
			if v == allowed {
				return true
			}
		}
		return false
	}
}

func registerCustomValidations() {
	validate.RegisterValidation("ledger_kind", oneOf("add", "subtract", "set"))
	validate.RegisterValidation("sub_status", oneOf("inactive", "active", "cancelled", "expired"))
	validate.RegisterValidation("purpose", oneOf("credits", "subscription"))
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errors := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "email":
			errors[field] = "Invalid email format"
		case "min":
			errors[field] = "Value is too short (min: " + fe.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + fe.Param() + ")"
		case "gte":
			errors[field] = "Value must be at least " + fe.Param()
		case "gt":
			errors[field] = "Value must be greater than " + fe.Param()
		case "lte":
			errors[field] = "Value must be at most " + fe.Param()
		case "url":
			errors[field] = "Invalid URL format"
		case "uuid", "uuid4":
			errors[field] = "Invalid UUID"
		case "ledger_kind":
			errors[field] = "Invalid action. Must be: add, subtract, or set"
		case "sub_status":
			errors[field] = "Invalid status. Must be: inactive, active, cancelled, or expired"
		case "purpose":
			errors[field] = "Invalid purpose. Must be: credits or subscription"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}
