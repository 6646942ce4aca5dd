package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"larder/internal/apperr"
	"larder/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// 错误码
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeVerification = "VERIFICATION_FAILED"
	CodeNotFound     = "NOT_FOUND"
	CodeStorage      = "STORAGE_ERROR"
	CodeRateLimited  = "RATE_LIMITED"
	CodeForbidden    = "FORBIDDEN"
	CodeInternal     = "INTERNAL_ERROR"
)

// handleServiceError maps service errors onto HTTP status codes and the error envelope.
func handleServiceError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		ve  *apperr.ValidationError
		vfe *apperr.VerificationError
		nfe *apperr.NotFoundError
		se  *apperr.StorageError
	)

	switch {
	case errors.As(err, &ve):
		abortJSON(c, http.StatusBadRequest, CodeValidation, ve.Error(), gin.H{"field": ve.Field, "reason": ve.Reason})
	case errors.As(err, &vfe):
		abortJSON(c, http.StatusForbidden, CodeVerification, services.VerificationMessage(vfe.Code), gin.H{"reason": vfe.Code})
	case errors.As(err, &nfe):
		abortJSON(c, http.StatusNotFound, CodeNotFound, nfe.Error(), nil)
	case errors.As(err, &se):
		logger.Error("storage failure", zap.String("op", se.Op), zap.String("provider_code", se.Code), zap.Error(se.Err))
		extra := gin.H{}
		if se.Code != "" {
			extra["provider_code"] = se.Code
		}
		abortJSON(c, http.StatusInternalServerError, CodeStorage, "The comment store is unavailable. Please try again later.", extra)
	default:
		logger.Error("unexpected error", zap.Error(err))
		abortJSON(c, http.StatusInternalServerError, CodeInternal, "Internal server error", nil)
	}
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(wireFieldName)
	}
}

// wireFieldName reports struct fields by their json (or form) name.
func wireFieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// bindingError turns a gin binding failure into a ValidationError naming the
// offending wire field.
func bindingError(err error) *apperr.ValidationError {
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		fe := fields[0]
		return apperr.Invalid(fe.Field(), bindingReason(fe))
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return apperr.Invalid(typeErr.Field, "has the wrong type")
	}
	return apperr.Invalid("", "malformed request body")
}

func bindingReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "email":
		return "must be a valid email address"
	default:
		return "is invalid"
	}
}
