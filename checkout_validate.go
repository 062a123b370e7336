package ucp

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sumup/ucp/ledger"
)

var (
	countryPattern = regexp.MustCompile(`^[A-Z]{2}$`)
	skuPattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)
	validate       = newValidator()
)

// Validate ensures CheckoutSessionCreateRequest satisfies schema constraints.
func (r CheckoutSessionCreateRequest) Validate() error {
	return validateStruct(r)
}

// Validate ensures AddItemsRequest satisfies schema constraints.
func (r AddItemsRequest) Validate() error {
	return validateStruct(r)
}

// Validate ensures ApplyDiscountRequest satisfies schema constraints.
func (r ApplyDiscountRequest) Validate() error {
	return validateStruct(r)
}

// Validate ensures SelectFulfillmentRequest satisfies schema constraints.
func (r SelectFulfillmentRequest) Validate() error {
	return validateStruct(r)
}

// Validate ensures SelectPaymentMethodRequest satisfies schema constraints.
func (r SelectPaymentMethodRequest) Validate() error {
	return validateStruct(r)
}

// Validate ensures exactly one payment pointer is present.
func (r SubmitPaymentRequest) Validate() error {
	return validateStruct(r)
}

// Validate ensures CancelRequest satisfies schema constraints.
func (r CancelRequest) Validate() error {
	return validateStruct(r)
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return normalizeValidationError(err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	for tag, pattern := range map[string]*regexp.Regexp{
		"country": countryPattern,
		"sku":     skuPattern,
	} {
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			value, ok := fl.Field().Interface().(string)
			if !ok {
				return false
			}
			return pattern.MatchString(value)
		}); err != nil {
			panic(err)
		}
	}

	// Empty ids are left to required_without.
	if err := v.RegisterValidation("transaction_id", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(string)
		return ok && (value == "" || ledger.ValidateReference(value) == nil)
	}); err != nil {
		panic(err)
	}

	return v
}

// validationError carries the JSON path of the offending field.
type validationError struct {
	param   string
	message string
}

func (e *validationError) Error() string {
	return e.param + " " + e.message
}

func normalizeValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	first := validationErrs[0]
	return &validationError{param: jsonPath(first), message: validationMessage(first)}
}

func jsonPath(fe validator.FieldError) string {
	path := fe.Namespace()
	if idx := strings.Index(path, "."); idx >= 0 {
		path = path[idx+1:]
	}
	if path == "" {
		return fe.Field()
	}
	return path
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return fmt.Sprintf("is required when %s is absent", toSnake(fe.Param()))
	case "excluded_with":
		return fmt.Sprintf("cannot be combined with %s", toSnake(fe.Param()))
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "max":
		return fmt.Sprintf("cannot exceed %s characters", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "email":
		return "must be a valid email address"
	case "base64":
		return "must be base64 encoded"
	case "country":
		return "must be an uppercase ISO-3166 alpha-2 code"
	case "sku":
		return "must be 1-64 letters, digits, '.', '_' or '-'"
	case "transaction_id":
		return "must be a transaction id such as 0.0.1234@1700000000.123456789"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// toSnake maps a Go field name used as a tag parameter to its JSON name.
func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
