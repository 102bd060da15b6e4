package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
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

	// Register custom validations
	registerCustomValidations()
}

// Roles accepted by the balance ledger.
var ledgerRoles = []string{"user", "agent", "admin"}

func registerCustomValidations() {
	// Role validation
	validate.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		role := fl.Field().String()
		for _, r := range ledgerRoles {
			if role == r {
				return true
			}
		}
		return false
	})

	// Referral code validation. Codes are upper-cased before lookup, so only
	// the alphabet matters here.
	validate.RegisterValidation("refcode", func(fl validator.FieldLevel) bool {
		code := strings.TrimSpace(fl.Field().String())
		if code == "" || len(code) > 32 {
			return false
		}
		for _, c := range code {
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
				return false
			}
		}
		return true
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errors := make(map[string]string)
	for _, err := range fieldErrs {
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
		case "role":
			errors[field] = "Invalid role. Must be: user, agent, or admin"
		case "refcode":
			errors[field] = "Invalid referral code format"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}
