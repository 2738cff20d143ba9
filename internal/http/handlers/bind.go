package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/expensehub/expensehub/internal/domain/expense"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// The validator cannot see inside custom types with unexported fields, so
// without this registration `required` on an expense.Date field never fires
// and an absent date binds as the zero value.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterCustomTypeFunc(dateValuer, expense.Date{})
	}
}

func dateValuer(field reflect.Value) interface{} {
	if d, ok := field.Interface().(expense.Date); ok {
		return d.Time()
	}
	return nil
}

// BindJSON binds and validates the request body. On failure it writes the
// 422 validation response itself and returns false; handlers just return.
func BindJSON(ctx *gin.Context, out interface{}) bool {
	err := ctx.ShouldBindJSON(out)

	if err != nil {
		RespondValidation(ctx, parseBindError(err, out))

		return false
	}

	return true
}

func parseBindError(err error, out interface{}) map[string][]string {
	fields := make(map[string][]string)

	// validator errors (struct binding tags)
	var validatorErrors validator.ValidationErrors

	if errors.As(err, &validatorErrors) {
		rootType := baseStructType(out)

		for _, fieldError := range validatorErrors {
			name := jsonFieldName(rootType, fieldError.StructField())
			fields[name] = append(fields[name], validationMessage(fieldError.Tag(), fieldError.Param()))
		}
		return fields
	}

	// type mismatch on one field
	var typeError *json.UnmarshalTypeError

	if errors.As(err, &typeError) {
		name := strings.TrimSpace(typeError.Field)
		if name == "" {
			name = "body"
		}

		fields[name] = append(fields[name], fmt.Sprintf("must be of type %s", typeError.Type.String()))
		return fields
	}

	// custom UnmarshalJSON failures (e.g. the date codec) and bad syntax
	fields["body"] = append(fields["body"], err.Error())
	return fields
}

func baseStructType(v interface{}) reflect.Type {
	t := reflect.TypeOf(v)

	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t != nil && t.Kind() == reflect.Struct {
		return t
	}

	return nil
}

func jsonFieldName(rootType reflect.Type, structField string) string {
	if rootType == nil {
		return structField
	}

	sf, ok := rootType.FieldByName(structField)
	if !ok {
		return structField
	}

	tag := sf.Tag.Get("json")
	if tag == "" {
		return structField
	}

	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return structField
	}

	return name
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
