package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfWrapped(t *testing.T) {
	base := E(Unavailable, "gateway unavailable", stderrors.New("dial tcp: refused"))
	wrapped := fmt.Errorf("submit payment: %w", base)

	assert.Equal(t, Unavailable, KindOf(wrapped))
	assert.True(t, Is(Unavailable, wrapped))
	assert.False(t, Is(Rejected, wrapped))
	assert.Equal(t, "gateway unavailable", MessageOf(wrapped))
	assert.Equal(t, Other, KindOf(stderrors.New("plain")))
	assert.False(t, Is(Other, nil))
}

func TestValidationErrs(t *testing.T) {
	ve := ValidationErrs()
	require.NoError(t, ve.Err())

	ve.Add("currency", "must be a 3 letter ISO 4217 code")
	ve.Add("amount", "cannot be empty")
	err := ve.Err()
	require.Error(t, err)
	assert.Equal(t, "amount cannot be empty; currency must be a 3 letter ISO 4217 code", err.Error())
}

func TestMissingParamsErr(t *testing.T) {
	err := MissingParamsErr("amount")
	assert.Equal(t, Invalid, KindOf(err))
	assert.Equal(t, MissingParamsMsg, MessageOf(err))

	var ve *ValidationErrors
	require.True(t, stderrors.As(err, &ve))
	assert.Contains(t, ve.Fields(), "amount")
}

func TestCauseOf(t *testing.T) {
	assert.Equal(t, "amount cannot be empty", CauseOf(MissingParamsErr("amount")))
	assert.Equal(t, "", CauseOf(E(Internal, "boom", nil)))
	assert.Equal(t, "", CauseOf(stderrors.New("plain")))
}
