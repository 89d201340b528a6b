package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdash/fleetdash/internal/shared"
)

func TestRespondErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("get quote: %w", shared.ErrNotFound), http.StatusNotFound},
		{"validation", shared.NewValidationError("missing", "approvedBy"), http.StatusBadRequest},
		{"invalid status", &shared.InvalidStatusError{Value: "Shipped"}, http.StatusUnprocessableEntity},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, tt.err)
			assert.Equal(t, tt.status, rr.Code)

			var body ProblemDetail
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body.Status)
		})
	}
}

func TestRespondErrorIncludesFields(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.NewValidationError("missing", "licensePlate", "registrationNumber"))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, []string{"licensePlate", "registrationNumber"}, body.Fields)
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("pq: password authentication failed"))
	assert.NotContains(t, rr.Body.String(), "password")
}

func TestDecodeJSONMalformed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	var target map[string]any
	err := DecodeJSON(req, &target)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}
