package ops

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docassist/docassist-platform/pkg/errors"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents an API error
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func requestID(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// ErrorResponseFromError sends an error response based on the error kind
func ErrorResponseFromError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	apiError := &APIError{Code: "INTERNAL_ERROR", Message: "An internal error occurred"}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		apiError.Code = appErr.Code
		apiError.Message = appErr.Message

		switch appErr.Kind {
		case errors.KindValidation:
			statusCode = http.StatusBadRequest
		case errors.KindAuthentication:
			statusCode = http.StatusUnauthorized
		case errors.KindAuthorization:
			statusCode = http.StatusForbidden
		case errors.KindNotFound:
			statusCode = http.StatusNotFound
		case errors.KindConflict:
			statusCode = http.StatusConflict
		case errors.KindRateLimit:
			statusCode = http.StatusTooManyRequests
		case errors.KindTimeout:
			statusCode = http.StatusGatewayTimeout
		case errors.KindUnavailable, errors.KindExternal:
			statusCode = http.StatusServiceUnavailable
		default:
			statusCode = http.StatusInternalServerError
		}
	}

	c.JSON(statusCode, APIResponse{
		Success:   false,
		Error:     apiError,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// BadRequestResponse sends a 400 response with the given message
func BadRequestResponse(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, APIResponse{
		Success:   false,
		Error:     &APIError{Code: "VALIDATION_ERROR", Message: message},
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// NotFoundResponse sends a 404 response with the given message
func NotFoundResponse(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, APIResponse{
		Success:   false,
		Error:     &APIError{Code: "NOT_FOUND", Message: message},
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}
