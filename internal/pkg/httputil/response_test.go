package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccess_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusCreated, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"id":"abc"}}`, rec.Body.String())
}

func TestError_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusNotFound, "subscription not found")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"subscription not found"}}`, rec.Body.String())
}

func TestValidationError(t *testing.T) {
	type request struct {
		Name  string `validate:"required"`
		Count int    `validate:"min=1"`
	}

	t.Run("validator errors become field details", func(t *testing.T) {
		err := validator.New().Struct(request{})
		require.Error(t, err)

		rec := httptest.NewRecorder()
		ValidationError(rec, err)

		var body struct {
			Error struct {
				Message string       `json:"message"`
				Details []FieldError `json:"details"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation error", body.Error.Message)
		assert.Equal(t, []FieldError{
			{Field: "Name", Message: "required"},
			{Field: "Count", Message: "min"},
		}, body.Error.Details)
	})

	t.Run("other errors become a message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ValidationError(rec, errors.New("invalid price"))

		assert.JSONEq(t, `{"error":{"message":"validation error","details":"invalid price"}}`, rec.Body.String())
	})
}

func TestDownload(t *testing.T) {
	rec := httptest.NewRecorder()
	Download(rec, "text/csv", "subscriptions_2026-03-01.csv", []byte("Name\n"))

	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="subscriptions_2026-03-01.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "Name\n", rec.Body.String())
}
