package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/company-ingest/internal/apperror"
)

// passwordSpecials are the symbols a password may (and must at least once)
// contain besides letters and digits.
const passwordSpecials = "_$&+,:;=?@#|'<>.^*()%!-"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON names ("first_name") instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	must(v.RegisterValidation("alphaname", isAlphaName))
	must(v.RegisterValidation("password_policy", isStrongPassword))
	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// isAlphaName accepts ASCII letters only.
func isAlphaName(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return false
	}
	for _, r := range s {
		if !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z') {
			return false
		}
	}
	return true
}

// isStrongPassword: 8 to 16 characters drawn from letters, digits and
// passwordSpecials, with at least one of each class plus both cases.
func isStrongPassword(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) < 8 || len(s) > 16 {
		return false
	}

	var lower, upper, digit, special bool
	for _, r := range s {
		switch {
		case 'a' <= r && r <= 'z':
			lower = true
		case 'A' <= r && r <= 'Z':
			upper = true
		case '0' <= r && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		default:
			return false
		}
	}
	return lower && upper && digit && special
}

// validateInput runs struct validation and converts the first failure into
// an apperror.ValidationFailed naming the offending JSON field.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("service: validating input: %w", err)
	}

	fe := verrs[0]
	return apperror.ValidationFailed(fe.Field(), validationMessage(fe))
}

func validationMessage(fe validator.FieldError) string {
	label := fieldLabel(fe.Field())

	switch fe.Tag() {
	case "required":
		return label + " should not be empty"
	case "min":
		return fmt.Sprintf("%s should be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s should be at most %s characters", label, fe.Param())
	case "email":
		return "Invalid Email Format"
	case "alphaname":
		return label + " should only contain alphabets"
	case "password_policy":
		return "Password must be 8 to 16 characters with upper and lower case letters, a digit and a symbol"
	case "eqfield":
		return "Passwords do not match"
	default:
		return label + " is invalid"
	}
}

// fieldLabel turns "first_name" into "First name".
func fieldLabel(field string) string {
	s := strings.ReplaceAll(field, "_", " ")
	if s == "" {
		return "Field"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
