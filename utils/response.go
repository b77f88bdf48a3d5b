package utils

import (
	"net/http"
	"time"

	"trailsafe/models"

	"github.com/gin-gonic/gin"
)

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, models.APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// CreatedResponse sends a 201 created response
func CreatedResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, models.APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// AcceptedResponse sends a 202 accepted response
func AcceptedResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusAccepted, models.APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// ErrorResponse sends an error response with the given status code
func ErrorResponse(c *gin.Context, statusCode int, message string, details interface{}) {
	c.JSON(statusCode, models.APIResponse{
		Success: false,
		Message: message,
		Error: &models.APIError{
			Code:    getErrorCode(statusCode),
			Message: message,
			Details: details,
		},
		Timestamp: time.Now(),
	})
}

// ValidationErrorResponse sends a 400 with field-level validation errors
func ValidationErrorResponse(c *gin.Context, validationErrors []ValidationError) {
	c.JSON(http.StatusBadRequest, models.APIResponse{
		Success: false,
		Message: "Validation failed",
		Error: &models.APIError{
			Code:    ErrCodeValidation,
			Message: "One or more fields are invalid",
			Details: validationErrors,
		},
		Timestamp: time.Now(),
	})
}

// NotFoundResponse sends a 404 response
func NotFoundResponse(c *gin.Context, resource string) {
	ErrorResponse(c, http.StatusNotFound, resource+" not found", nil)
}

// BadRequestResponse sends a 400 response
func BadRequestResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, message, nil)
}

// RateLimitResponse sends a 429 response
func RateLimitResponse(c *gin.Context) {
	ErrorResponse(c, http.StatusTooManyRequests, "Rate limit exceeded, please try again later", nil)
}

// InternalServerErrorResponse sends a 500 response
func InternalServerErrorResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusInternalServerError, message, nil)
}

// HandleServiceError maps a ServiceError onto the right HTTP response.
func HandleServiceError(c *gin.Context, err error) {
	if se, ok := GetServiceError(err); ok {
		status := se.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		c.JSON(status, models.APIResponse{
			Success: false,
			Message: se.Message,
			Error: &models.APIError{
				Code:    se.Code,
				Message: se.Message,
				Details: se.Details,
			},
			Timestamp: time.Now(),
		})
		return
	}
	InternalServerErrorResponse(c, "An unexpected error occurred")
}

func getErrorCode(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return ErrCodeValidation
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case http.StatusServiceUnavailable:
		return ErrCodeTransient
	default:
		return ErrCodeInternal
	}
}
