package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageFormat(t *testing.T) {
	err := InvalidArgument("limit must be in [1,100], got %d", 500)
	assert.Equal(t, "[INVALID_ARGUMENT] limit must be in [1,100], got 500", err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(KindUnavailable, cause, "embedding model unreachable")
	require.NotNil(t, err)

	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, KindUnavailable, KindOf(err))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(KindInternal, nil, "ignored"))
}

func TestIsMatchesByKind(t *testing.T) {
	err := Conflict("slug %q already exists", "machine-learning")
	assert.True(t, stderrors.Is(err, &Error{Kind: KindConflict}))
	assert.False(t, stderrors.Is(err, &Error{Kind: KindNotFound}))
}

func TestKindOfUnknownError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("plain error")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid argument", InvalidArgument("bad"), http.StatusBadRequest},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"conflict", Conflict("clash"), http.StatusConflict},
		{"unavailable", Unavailable("down"), http.StatusServiceUnavailable},
		{"internal", Internal("boom"), http.StatusInternalServerError},
		{"plain", fmt.Errorf("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestWithDetail(t *testing.T) {
	err := NotFound("node not found").WithDetail("node_id", "abc")
	assert.Equal(t, "abc", err.Details["node_id"])
}
