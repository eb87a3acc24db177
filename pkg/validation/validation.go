package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"taskmarket-ledger/pkg/errutil"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

// Struct validates obj against its `binding` tags using the same engine gin
// uses for request binding.
func Struct(obj any) error {
	if err := binding.Validator.ValidateStruct(obj); err != nil {
		return ToError(err)
	}
	return nil
}

// ToError converts binding and validation failures into a BadRequest carrying
// one detail per offending field.
func ToError(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]errutil.Detail, 0, len(verrs))
		for _, e := range verrs {
			details = append(details, errutil.Detail{Field: e.Field(), Message: FormatFieldError(e)})
		}
		return errutil.BadRequest("validation failed", nil, errutil.WithDetails(details...))
	}

	var be errutil.BaseError
	if errors.As(err, &be) {
		return err
	}

	return errutil.BadRequest("malformed request body", err)
}

func FormatFieldError(e validator.FieldError) string {
	field := e.Field()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_if":
		return fmt.Sprintf("%s is required when %s", field, strings.Replace(e.Param(), " ", " is ", 1))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, e.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "gtefield":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, e.Tag())
	}
}
