package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ValidationService struct {
	validator *validator.Validate
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func NewValidationService() *ValidationService {
	v := validator.New()

	// Register custom validators
	v.RegisterValidation("phone", validatePhone)
	v.RegisterValidation("coordinate", validateCoordinate)
	v.RegisterValidation("channel", validateChannel)
	v.RegisterValidation("severity", validateSeverity)

	return &ValidationService{
		validator: v,
	}
}

func (vs *ValidationService) ValidateStruct(s interface{}) []ValidationError {
	var validationErrors []ValidationError

	err := vs.validator.Struct(s)
	if err != nil {
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, ValidationError{
				Field:   err.Field(),
				Tag:     err.Tag(),
				Value:   fmt.Sprintf("%v", err.Value()),
				Message: vs.getErrorMessage(err),
			})
		}
	}

	return validationErrors
}

func (vs *ValidationService) getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "phone":
		return "Invalid phone number format"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", fe.Field(), fe.Param())
	case "coordinate":
		return "Invalid coordinate value"
	case "channel":
		return "Invalid notification channel"
	case "severity":
		return "Invalid alert severity"
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// Custom validation functions
func validatePhone(fl validator.FieldLevel) bool {
	phone := fl.Field().String()
	cleaned := regexp.MustCompile(`\D`).ReplaceAllString(phone, "")

	if len(cleaned) < 10 || len(cleaned) > 15 {
		return false
	}

	phoneRegex := regexp.MustCompile(`^\+?[1-9]\d{9,14}$`)
	return phoneRegex.MatchString(phone)
}

func validateCoordinate(fl validator.FieldLevel) bool {
	coord := fl.Field().Float()
	fieldName := fl.FieldName()

	if strings.Contains(strings.ToLower(fieldName), "lat") {
		return coord >= -90 && coord <= 90
	}
	if strings.Contains(strings.ToLower(fieldName), "lon") || strings.Contains(strings.ToLower(fieldName), "lng") {
		return coord >= -180 && coord <= 180
	}

	return true
}

func validateChannel(fl validator.FieldLevel) bool {
	channel := fl.Field().String()
	validChannels := []string{"sms", "voice", "whatsapp", "push"}

	for _, valid := range validChannels {
		if channel == valid {
			return true
		}
	}
	return false
}

func validateSeverity(fl validator.FieldLevel) bool {
	severity := fl.Field().String()
	validSeverities := []string{"info", "warning", "critical"}

	for _, valid := range validSeverities {
		if severity == valid {
			return true
		}
	}
	return false
}

func SanitizeInput(input string) string {
	// Remove any potentially dangerous characters
	input = strings.TrimSpace(input)
	input = regexp.MustCompile(`[<>\"';&]`).ReplaceAllString(input, "")
	return input
}
