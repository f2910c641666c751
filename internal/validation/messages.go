package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// message renders a constraint violation in the wording the dashboard expects.
// present reports whether the field was supplied at all.
func message(fe validator.FieldError, present bool) string {
	kind := fe.Kind()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		if present && kind == reflect.String {
			return "String must contain at least 1 character(s)"
		}
		return "Required"
	case "min", "gte":
		return lowerBound(kind, param, true)
	case "gt":
		return lowerBound(kind, param, false)
	case "max", "lte":
		return upperBound(kind, param, true)
	case "lt":
		return upperBound(kind, param, false)
	case "len":
		if kind == reflect.String {
			return fmt.Sprintf("String must contain exactly %s character(s)", param)
		}
		return fmt.Sprintf("Array must contain exactly %s element(s)", param)
	case "oneof":
		options := strings.Fields(param)
		for i, o := range options {
			options[i] = "'" + o + "'"
		}
		return fmt.Sprintf("Invalid enum value. Expected %s, received '%v'",
			strings.Join(options, " | "), fe.Value())
	case "uuid", "uuid4":
		return "Invalid uuid"
	case "email":
		return "Invalid email"
	case "url", "http_url":
		return "Invalid url"
	case "startswith":
		return fmt.Sprintf(`Invalid input: must start with "%s"`, param)
	case "awsregion":
		return "Invalid AWS region"
	case "commitsha":
		return "Invalid commit SHA"
	}
	return "Invalid input"
}

func lowerBound(kind reflect.Kind, param string, inclusive bool) string {
	switch kind {
	case reflect.String:
		return fmt.Sprintf("String must contain at least %s character(s)", param)
	case reflect.Slice, reflect.Array, reflect.Map:
		return fmt.Sprintf("Array must contain at least %s element(s)", param)
	}
	if inclusive {
		return "Number must be greater than or equal to " + param
	}
	return "Number must be greater than " + param
}

func upperBound(kind reflect.Kind, param string, inclusive bool) string {
	switch kind {
	case reflect.String:
		return fmt.Sprintf("String must contain at most %s character(s)", param)
	case reflect.Slice, reflect.Array, reflect.Map:
		return fmt.Sprintf("Array must contain at most %s element(s)", param)
	}
	if inclusive {
		return "Number must be less than or equal to " + param
	}
	return "Number must be less than " + param
}
