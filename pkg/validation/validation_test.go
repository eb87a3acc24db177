package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"taskmarket-ledger/pkg/errutil"
)

type reviewInput struct {
	Status   string `json:"status" binding:"required,oneof=approved rejected"`
	Feedback string `json:"feedback" binding:"required_if=Status rejected"`
	Rating   *int   `json:"rating" binding:"omitempty,min=1,max=5"`
}

func details(t *testing.T, err error) map[string]string {
	t.Helper()
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusBadRequest, be.Code)
	out := map[string]string{}
	for _, d := range be.Details {
		out[d.Field] = d.Message
	}
	return out
}

func TestStructFieldMessages(t *testing.T) {
	six := 6
	err := Struct(&reviewInput{Status: "rejected", Rating: &six})

	got := details(t, err)
	require.Equal(t, "feedback is required when Status is rejected", got["feedback"])
	require.Equal(t, "rating must be at most 5", got["rating"])
}

func TestStructValid(t *testing.T) {
	four := 4
	require.NoError(t, Struct(&reviewInput{Status: "approved", Rating: &four}))
	require.NoError(t, Struct(&reviewInput{Status: "rejected", Feedback: "retry"}))
}

func TestToErrorWrapsDecodeFailures(t *testing.T) {
	err := ToError(errors.New("unexpected EOF"))
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))
	require.Nil(t, ToError(nil))
}
