package services

import (
	// Go Internal Packages
	stderrors "errors"
	"reflect"
	"regexp"
	"strings"

	// Local Packages
	errors "github.com/markjakearzadon/momopay-gobackend/internal/errors"

	// External Packages
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var msisdnPattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

// Amount bounds. ISO 4217 currencies use at most 4 minor-unit digits.
const (
	maxAmountLength   = 32
	maxAmountScale    = 4
	maxAmountExponent = 12
)

var maxAmount = decimal.New(1, maxAmountExponent)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		return msisdnPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("positive_decimal", func(fl validator.FieldLevel) bool {
		return validAmount(fl.Field().String())
	})
	return v
}

// validateStruct maps validator failures onto the error taxonomy: any
// missing required field yields MissingParamsErr, anything else a
// field-by-field ValidationFailedErr.
func validateStruct(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.ValidationFailedErr(err)
	}

	var missing []string
	ve := errors.ValidationErrs()
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
			continue
		}
		ve.Add(fe.Field(), problemFor(fe.Tag()))
	}
	if len(missing) > 0 {
		return errors.MissingParamsErr(missing...)
	}
	return errors.ValidationFailedErr(ve.Err())
}

// validAmount accepts a positive decimal below maxAmount with at most
// maxAmountScale fractional digits. The exponent is checked before any
// arithmetic so inputs like 1e999999999 are never expanded.
func validAmount(s string) bool {
	if len(s) > maxAmountLength {
		return false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return false
	}
	exp := d.Exponent()
	if exp < -maxAmountScale || exp > maxAmountExponent {
		return false
	}
	return d.LessThan(maxAmount)
}

func problemFor(tag string) string {
	switch tag {
	case "msisdn":
		return "must be a mobile number of 8 to 15 digits"
	case "positive_decimal":
		return "must be a positive decimal below 10^12 with at most 4 decimal places"
	case "iso4217":
		return "must be a 3 letter ISO 4217 code"
	}
	return "is invalid"
}

// canonicalAmount renders an already validated amount without exponent or
// trailing zeros.
func canonicalAmount(s string) string {
	return decimal.RequireFromString(s).String()
}
