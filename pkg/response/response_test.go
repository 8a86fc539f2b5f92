package response

import (
	"reflect"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestSuccessResponse(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		data []any
		want Response
	}{
		{
			name: "without data",
			msg:  "Operation successful.",
			want: Response{
				Status:  StatusSuccess,
				Message: "Operation successful.",
			},
		},
		{
			name: "with data",
			msg:  "Operation successful.",
			data: []any{map[string]any{"id": 1}},
			want: Response{
				Status:  StatusSuccess,
				Message: "Operation successful.",
				Data:    map[string]any{"id": 1},
			},
		},
		{
			name: "with multiple data",
			msg:  "Operation successful.",
			data: []any{
				map[string]any{"id": 1},
				map[string]any{"id": 2},
			},
			want: Response{
				Status:  StatusSuccess,
				Message: "Operation successful.",
				Data:    map[string]any{"id": 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SuccessResponse(tt.msg, tt.data...)

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestErrorResponse(t *testing.T) {
	got := ErrorResponse("Invalid URL", "The original URL must be an absolute http(s) URL.")

	assert.Equal(t, Response{
		Status:  StatusError,
		Error:   "Invalid URL",
		Message: "The original URL must be an absolute http(s) URL.",
	}, got)
}

func TestValidationErrorResponse(t *testing.T) {
	type req struct {
		Name string `json:"name" validate:"required"`
		URL  string `json:"url" validate:"required,url"`
	}

	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	t.Run("no details for non-validation error", func(t *testing.T) {
		got := ValidationErrorResponse(assert.AnError)

		assert.Equal(t, StatusError, got.Status)
		assert.Empty(t, got.Details)
	})

	t.Run("two errors", func(t *testing.T) {
		err := validate.Struct(req{Name: "", URL: "not url"})
		got := ValidationErrorResponse(err)

		assert.Equal(t, StatusError, got.Status)
		assert.Equal(t, []any{
			map[string]string{"field": "name", "message": "failed on the 'required' rule"},
			map[string]string{"field": "url", "message": "failed on the 'url' rule"},
		}, got.Details)
	})
}
