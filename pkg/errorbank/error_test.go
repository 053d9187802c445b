package errorbank

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		kind     Kind
		wantHTTP int
		wantGRPC codes.Code
	}{
		{KindBadRequest, http.StatusBadRequest, codes.InvalidArgument},
		{KindConflict, http.StatusConflict, codes.AlreadyExists},
		{KindNotFound, http.StatusNotFound, codes.NotFound},
		{KindUnprocessableEntity, http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{KindUnauthorized, http.StatusUnauthorized, codes.Unauthenticated},
		{KindBadGateway, http.StatusBadGateway, codes.Unavailable},
		{KindInternal, http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := New(tt.kind, "")
			assert.Equal(t, tt.wantHTTP, err.StatusCode())
			assert.Equal(t, tt.wantGRPC, err.GRPCCode())
			assert.Equal(t, string(tt.kind), err.Message())
		})
	}
}

func TestCauseIsReachable(t *testing.T) {
	sentinel := errors.New("out of stock")
	err := fmt.Errorf("reserve: %w", Conflict("insufficient stock", WithCause(sentinel), WithDetail("product_id", "P1")))

	assert.ErrorIs(t, err, sentinel)
	assert.True(t, IsKind(err, KindConflict))
	assert.False(t, IsKind(err, KindNotFound))

	appErr := From(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "P1", appErr.Details()["product_id"])
}

func TestFromWrapsUnknownErrors(t *testing.T) {
	appErr := From(errors.New("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, KindInternal, appErr.Kind())
	assert.Nil(t, From(nil))
}
