package errutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestInsufficientBalanceIsBadRequest(t *testing.T) {
	err := InsufficientBalance("insufficient balance", nil)

	require.True(t, Is(err, StatusInsufficientBalance))
	require.True(t, Is(err, StatusBadRequest))
	require.False(t, Is(err, StatusConflict))
	require.Equal(t, http.StatusBadRequest, StatusOf(err).HTTPStatus())
}

func TestWrappedCauseSurvivesErrorsIs(t *testing.T) {
	cause := errors.New("row gone")
	err := fmt.Errorf("load: %w", NotFound("transaction not found", cause))

	require.ErrorIs(t, err, cause)
	require.Equal(t, StatusNotFound, StatusOf(err))
	require.Equal(t, StatusUnknown, StatusOf(cause))
}

func TestBaseErrorJSONHidesCause(t *testing.T) {
	err := BadRequest("amount must be positive", errors.New("secret internals"),
		WithDetails(Detail{Field: "amount", Message: "amount must be greater than 0"}))

	b, mErr := json.Marshal(err)
	require.NoError(t, mErr)
	require.JSONEq(t, `{"code":"BAD_REQUEST","message":"amount must be positive","details":[{"field":"amount","message":"amount must be greater than 0"}]}`, string(b))
	require.Contains(t, err.Error(), "secret internals")
}

func TestToGRPCError(t *testing.T) {
	st, ok := status.FromError(ToGRPCError(Forbidden("kyc required", nil)))
	require.True(t, ok)
	require.Equal(t, codes.PermissionDenied, st.Code())
	require.Equal(t, "kyc required", st.Message())

	st, _ = status.FromError(ToGRPCError(errors.New("boom")))
	require.Equal(t, codes.Internal, st.Code())

	require.NoError(t, ToGRPCError(nil))
}
