package apperror

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCauseButHidesIt(t *testing.T) {
	err := Internal(sql.ErrConnDone, "insert payment")
	wrapped := fmt.Errorf("record payment: %w", err)

	got := As(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, CodeInternal, got.Code())
	assert.ErrorIs(t, wrapped, sql.ErrConnDone)
	assert.Equal(t, "internal server error", PublicMessage(wrapped))
}

func TestValidationDetails(t *testing.T) {
	err := Validation("packs", "must be at most 500")
	assert.Equal(t, CodeValidation, err.Code())
	assert.Equal(t, map[string]string{"packs": "must be at most 500"}, err.Details())
	assert.Equal(t, "must be at most 500", PublicMessage(err))
	assert.Equal(t, http.StatusUnprocessableEntity, MetadataFor(err.Code()).HTTPStatus)
}

func TestForeignErrorsAreInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("plain")))
	assert.Nil(t, As(nil))
	assert.Equal(t, http.StatusInternalServerError, MetadataFor("UNKNOWN").HTTPStatus)
}

func TestNotFoundMessage(t *testing.T) {
	err := NotFound("booking")
	assert.Equal(t, "booking not found", PublicMessage(err))
	assert.Equal(t, http.StatusNotFound, MetadataFor(err.Code()).HTTPStatus)
}
