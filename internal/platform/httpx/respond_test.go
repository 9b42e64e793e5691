package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestRespondErrorStatusMapping(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", shared.Validation("quantity must be positive"), http.StatusBadRequest, "quantity must be positive"},
		{"rule", fmt.Errorf("wrap: %w", shared.RuleViolation("cannot take over your own order")), http.StatusBadRequest, "cannot take over your own order"},
		{"not found", shared.NotFound("order"), http.StatusNotFound, "order not found"},
		{"unauthorized", shared.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"idempotency", shared.ErrIdempotencyConflict, http.StatusConflict, shared.ErrIdempotencyConflict.Error()},
		{"conflict", shared.Conflict("invoice collision"), http.StatusInternalServerError, genericFailure},
		{"raw", errors.New("pq: connection reset"), http.StatusInternalServerError, genericFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, logger, tc.err)
			require.Equal(t, tc.status, rec.Code)
			env := decodeEnvelope(t, rec)
			require.False(t, env.Success)
			require.Equal(t, tc.message, env.Message)
		})
	}
}

type adjustRequest struct {
	ProductID int64  `json:"product_id" validate:"required"`
	Type      string `json:"adjustmentType" validate:"required,oneof=in out"`
}

func TestBindReportsJSONFieldNames(t *testing.T) {
	v := NewValidator()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"adjustmentType":"sideways"}`))
	var body adjustRequest
	err := Bind(req, &body, v)
	require.ErrorIs(t, err, shared.ErrValidation)

	rec := httptest.NewRecorder()
	RespondError(rec, nil, err)
	env := decodeEnvelope(t, rec)
	require.Equal(t, "is required", env.Errors["product_id"])
	require.Equal(t, "must be one of in out", env.Errors["adjustmentType"])

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"product_id":3,"adjustmentType":"in"}`))
	require.NoError(t, Bind(req, &body, v))
	require.EqualValues(t, 3, body.ProductID)

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"unknown":1}`))
	require.ErrorIs(t, Bind(req, &body, v), shared.ErrValidation)
}

func TestOKEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, "done", map[string]int{"n": 1})
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)
	require.Equal(t, "done", env.Message)
}
