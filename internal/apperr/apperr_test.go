package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	err := New(KindAlreadyPending, "request to %d already pending", 7)
	wrapped := fmt.Errorf("send request: %w", err)

	assert.ErrorIs(t, wrapped, ErrAlreadyPending)
	assert.NotErrorIs(t, wrapped, ErrAlreadyConnected)
	assert.Equal(t, KindAlreadyPending, KindOf(wrapped))
	assert.Equal(t, "request to 7 already pending", Message(wrapped))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		ErrEmptyContent:                  http.StatusBadRequest,
		ErrNotConnected:                  http.StatusForbidden,
		ErrNotAMember:                    http.StatusForbidden,
		ErrNotFound:                      http.StatusNotFound,
		ErrInvalidTransition:             http.StatusConflict,
		ErrTransportUnavailable:          http.StatusServiceUnavailable,
		errors.New("connection refused"): http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}

func TestFromCodeRoundTrip(t *testing.T) {
	err := FromCode(string(KindNotConnected), "users are not connected")
	assert.ErrorIs(t, err, ErrNotConnected)

	unknown := FromCode("internal", "boom")
	assert.Equal(t, KindInternal, KindOf(unknown))
	assert.Equal(t, "internal error", Message(errors.New("db down")))
}
