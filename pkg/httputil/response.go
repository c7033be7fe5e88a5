package httputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/letter-api/pkg/errors"
)

// RespondWithData sends {"data": ...} with the given status.
func RespondWithData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"data": data})
}

// RespondWithMessage sends a message alongside the payload, the way the
// letter endpoints report the outcome of a send or transition.
func RespondWithMessage(c *gin.Context, status int, message string, data interface{}) {
	body := gin.H{"message": message}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// RespondWithError sends {"error": message}, mapping AppError codes onto
// HTTP statuses. Anything else is a 500.
func RespondWithError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	message := "internal server error"

	if appErr, ok := apperrors.As(err); ok {
		statusCode = appErr.StatusCode()
		message = appErr.Message
	}

	if statusCode >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Msg("request failed")
	}

	c.AbortWithStatusJSON(statusCode, gin.H{"error": message})
}

// RespondWithBadRequest is a shorthand for binding and parameter errors.
func RespondWithBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message})
}

// FieldError is one failed binding rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var fieldMessages = map[string]string{
	"required":       "is required",
	"email":          "must be a valid email",
	"uuid":           "must be a valid id",
	"min":            "is too short",
	"max":            "is too long",
	"oneof":          "has an unsupported value",
	"letterpriority": "must be normal, high or urgent",
}

// RespondWithBindError renders a request binding failure as a 400. Validator
// failures are listed per field.
func RespondWithBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		RespondWithBadRequest(c, err.Error())
		return
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		fields = append(fields, FieldError{Field: fe.Field(), Message: msg})
	}
	message := "invalid request"
	if len(fields) > 0 {
		message = fields[0].Field + " " + fields[0].Message
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message, "errors": fields})
}
