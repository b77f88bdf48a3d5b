package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"trailsafe/models"
	"trailsafe/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorHandler provides centralized panic recovery and error responses.
type ErrorHandler struct {
	environment string
	logger      *logrus.Logger
}

func NewErrorHandler(environment string, logger *logrus.Logger) *ErrorHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ErrorHandler{
		environment: environment,
		logger:      logger,
	}
}

// Handle returns the error handling middleware.
func (eh *ErrorHandler) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				eh.handlePanic(c, err)
			}
		}()

		c.Next()

		// Errors attached by handlers that did not write a response.
		if len(c.Errors) > 0 && !c.Writer.Written() {
			utils.HandleServiceError(c, c.Errors.Last().Err)
		}
	}
}

func (eh *ErrorHandler) handlePanic(c *gin.Context, recovered interface{}) {
	eh.logger.WithFields(logrus.Fields{
		"panic":     recovered,
		"path":      c.Request.URL.Path,
		"method":    c.Request.Method,
		"requestId": c.GetString("requestID"),
	}).Error("Panic recovered")

	if eh.environment == "development" {
		eh.logger.Errorf("Stack trace:\n%s", debug.Stack())
	}

	if !c.Writer.Written() {
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Message: "Internal server error",
			Error: &models.APIError{
				Code:    utils.ErrCodeInternal,
				Message: "An unexpected error occurred",
			},
			Timestamp: time.Now(),
		})
	}
}
