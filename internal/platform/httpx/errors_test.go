package httpx

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-resort/internal/shared"
)

func TestRespondErrorMapsKinds(t *testing.T) {
	notFound := shared.Classify("thing: missing", shared.ErrNotFound)
	cases := []struct {
		err    error
		status int
	}{
		{shared.Classify("thing: bad", shared.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: 42", notFound), http.StatusNotFound},
		{shared.Classify("thing: busy", shared.ErrConflict), http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}

func TestValidateFlattensFieldErrors(t *testing.T) {
	type payload struct {
		Name string `validate:"required"`
		Qty  int    `validate:"gt=0"`
	}
	err := Validate(validator.New(), payload{})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "Name failed required")
	require.Contains(t, err.Error(), "Qty failed gt")
}

func TestDecodeRejectsTrailingAndEmptyBodies(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}
	v := validator.New()

	var p payload
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"bar"}`))
	require.NoError(t, Decode(req, v, &p))
	require.Equal(t, "bar", p.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"bar"}{"name":"x"}`))
	require.ErrorIs(t, Decode(req, v, &payload{}), ErrBadRequest)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	err := Decode(req, v, &payload{})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "empty body")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	require.ErrorIs(t, Decode(req, v, &payload{}), ErrBadRequest)
}
