package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		kind   string
		status int
	}{
		{fmt.Errorf("%w: p1/M", shared.ErrInsufficientStock), KindInsufficientStock, http.StatusConflict},
		{fmt.Errorf("%w: already cancelled", shared.ErrInvalidTransition), KindInvalidTransition, http.StatusConflict},
		{shared.ErrLedgerImbalance, KindLedgerImbalance, http.StatusInternalServerError},
		{fmt.Errorf("%w: reason required", shared.ErrValidation), KindValidation, http.StatusBadRequest},
		{fmt.Errorf("%w: sale 9", shared.ErrNotFound), KindNotFound, http.StatusNotFound},
		{shared.ErrConflict, KindConflict, http.StatusConflict},
		{shared.ErrIdempotencyConflict, KindConflict, http.StatusConflict},
		{errors.New("db down"), KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		kind, status := Classify(tc.err)
		require.Equal(t, tc.kind, kind, tc.err.Error())
		require.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("password=secret"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body.Detail)
	require.Equal(t, KindInternal, body.Kind)
}

func TestValidateWrapsValidationErrors(t *testing.T) {
	type payload struct {
		Quantity int64 `validate:"gt=0"`
	}
	err := Validate(validator.New(), payload{})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "Quantity")
	require.NoError(t, Validate(validator.New(), payload{Quantity: 1}))
}

func TestParseID(t *testing.T) {
	id, err := ParseID("42", "id")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	_, err = ParseID("-1", "id")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = ParseID("abc", "id")
	require.ErrorIs(t, err, shared.ErrValidation)
}
