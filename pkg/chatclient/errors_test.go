package chatclient

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoteErrorCodes(t *testing.T) {
	err := remoteError(http.StatusUnauthorized, "UNAUTHENTICATED", "token expired")
	assert.ErrorIs(t, fmt.Errorf("send: %w", err), ErrUnauthenticated)
	assert.NotErrorIs(t, err, ErrTransport)

	var ce *Error
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, http.StatusUnauthorized, ce.Status)
	assert.Equal(t, "token expired", ce.Message)

	assert.Equal(t, CodeInternal, CodeOf(remoteError(http.StatusTeapot, "WHATEVER", "")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeTransport, CodeOf(transportError("dial failed", errors.New("refused"))))
	assert.Contains(t, transportError("dial failed", errors.New("refused")).Error(), "refused")
}
