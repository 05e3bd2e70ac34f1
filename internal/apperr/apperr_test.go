package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDoesNotMutateOriginal(t *testing.T) {
	base := BadRequest(CodeInvalidEmail, "bad email")
	withField := base.With("field", "email")

	assert.Nil(t, base.Details)
	assert.Equal(t, "email", withField.Details["field"])
}

func TestIsComparesCode(t *testing.T) {
	err := fmt.Errorf("placing: %w", New(http.StatusConflict, CodeInsufficientStock, "short"))

	assert.True(t, errors.Is(err, New(0, CodeInsufficientStock, "")))
	assert.False(t, errors.Is(err, New(0, CodePriceMismatch, "")))
	assert.Equal(t, CodeInsufficientStock, CodeOf(err))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestResponse(t *testing.T) {
	status, body := Response(BadRequest(CodeTotalMismatch, "total mismatch").With("receivedTotal", 10), true)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, CodeTotalMismatch, body["code"])
	assert.Equal(t, "total mismatch", body["error"])
	assert.Equal(t, 10, body["receivedTotal"])

	cause := errors.New("disk full")
	status, body = Response(cause, false)
	require.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", body["error"])
	assert.Equal(t, "disk full", body["detail"])

	_, body = Response(cause, true)
	assert.NotContains(t, body, "detail")
}
