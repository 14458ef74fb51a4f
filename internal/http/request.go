package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/timecard-works/timecard/internal/apierr"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// BindJSON decodes the request body into dst. Unknown fields, trailing data
// and fields tagged binding:"required" but absent are validation errors.
func BindJSON(c *gin.Context, dst any) error {
	if c.Request.Body == nil {
		return apierr.Validation("invalid_json", "request body is required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if errDecode := dec.Decode(dst); errDecode != nil {
		if errors.Is(errDecode, io.EOF) {
			return apierr.Validation("invalid_json", "request body is required")
		}
		return apierr.Validation("invalid_json", jsonErrorMessage(errDecode))
	}
	if _, errTrailing := dec.Token(); !errors.Is(errTrailing, io.EOF) {
		return apierr.Validation("invalid_json", "request body must hold a single JSON object")
	}
	if errValidate := binding.Validator.ValidateStruct(dst); errValidate != nil {
		return apierr.Validation("missing_field", validationMessage(errValidate))
	}
	return nil
}

// QueryInt parses a required integer query parameter.
func QueryInt(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, apierr.Validation("missing_field", name+" is required")
	}
	value, errParse := strconv.Atoi(raw)
	if errParse != nil {
		return 0, apierr.Validation("invalid_query", name+" must be an integer")
	}
	return value, nil
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(c *gin.Context, name string) (bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return false, nil
	}
	value, errParse := strconv.ParseBool(raw)
	if errParse != nil {
		return false, apierr.Validation("invalid_query", name+" must be true or false")
	}
	return value, nil
}

func jsonErrorMessage(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %s has the wrong type", typeErr.Field)
	case errors.As(err, &maxErr):
		return "request body too large"
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return "unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field ")
	default:
		return "malformed JSON"
	}
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		names := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			names = append(names, fe.Field())
		}
		return "missing or invalid fields: " + strings.Join(names, ", ")
	}
	return "invalid request"
}
