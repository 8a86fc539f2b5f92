// Package response defines the structured envelope returned by every API
// endpoint, plus canned responses for the common failure modes.
package response

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type Response struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
	Details []any  `json:"details,omitempty"`
	Data    any    `json:"data,omitempty"`
}

var EmptyRequestBodyResponse = Response{
	Status:  StatusError,
	Error:   "Empty Request Body",
	Message: "Request body is empty. Please provide necessary data.",
}

var BadRequestResponse = Response{
	Status:  StatusError,
	Error:   "Bad Request",
	Message: "Invalid request. Please check the provided data.",
}

var ResourceNotFoundResponse = Response{
	Status:  StatusError,
	Error:   "Resource Not Found",
	Message: "The requested resource was not found.",
}

var CodeConflictResponse = Response{
	Status:  StatusError,
	Error:   "Code Conflict",
	Message: "The requested short code is already in use.",
}

var RateLimitResponse = Response{
	Status:  StatusError,
	Error:   "Too Many Requests",
	Message: "Request rate limit exceeded. Please try again later.",
}

var ServerErrorResponse = Response{
	Status:  StatusError,
	Error:   "Server Error",
	Message: "An internal server error occurred. Please try again later.",
}

func SuccessResponse(msg string, data ...any) Response {
	resp := Response{
		Status:  StatusSuccess,
		Message: msg,
	}

	if len(data) > 0 {
		resp.Data = data[0]
	}

	return resp
}

func ErrorResponse(errText, msg string) Response {
	return Response{
		Status:  StatusError,
		Error:   errText,
		Message: msg,
	}
}

// ValidationErrorResponse converts validator errors into a client-facing
// response listing the offending fields.
func ValidationErrorResponse(err error) Response {
	resp := Response{
		Status:  StatusError,
		Error:   "Validation Error",
		Message: "The provided data is invalid.",
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			resp.Details = append(resp.Details, map[string]string{
				"field":   e.Field(),
				"message": fmt.Sprintf("failed on the '%s' rule", e.Tag()),
			})
		}
	}

	return resp
}
