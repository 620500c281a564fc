package imerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	t.Parallel()

	err := Wrap(StorageInsert, "insert message", errors.New("driver: broken pipe"))
	assert.Equal(t, StorageInsert, CodeOf(err))

	wrapped := fmt.Errorf("submit: %w", err)
	assert.Equal(t, StorageInsert, CodeOf(wrapped))

	assert.Equal(t, Internal, CodeOf(errors.New("plain")))
	assert.Equal(t, OK, CodeOf(nil))
}

func TestIsMatchesOnCode(t *testing.T) {
	t.Parallel()

	a := New(FriendRequestAccepted, "already handled")
	b := fmt.Errorf("handle: %w", New(FriendRequestAccepted, "different text"))

	assert.True(t, errors.Is(b, a))
	assert.False(t, errors.Is(b, New(FriendRequestRejected, "already handled")))
}

func TestMessageOfHidesInternalDetail(t *testing.T) {
	t.Parallel()

	err := Wrap(StorageFailed, "message store unavailable", errors.New("dial tcp: refused"))
	assert.Equal(t, "message store unavailable", MessageOf(err))
	assert.Equal(t, "internal error", MessageOf(errors.New("dial tcp: refused")))
}

func TestFamily(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Code(2000), Family(UserTokenExpired))
	assert.Equal(t, Code(5000), Family(MessageTooLong))
	assert.Equal(t, Code(13000), Family(SecurityUnauthorized))
	assert.Equal(t, OK, Family(OK))
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := map[Code]int{
		OK:                 http.StatusOK,
		UserTokenExpired:   http.StatusUnauthorized,
		PermissionDenied:   http.StatusForbidden,
		UserNotFound:       http.StatusNotFound,
		UserAlreadyExists:  http.StatusConflict,
		FriendRequestSelf:  http.StatusBadRequest,
		MessageTooLong:     http.StatusBadRequest,
		RateLimitExceeded:  http.StatusTooManyRequests,
		StorageFailed:      http.StatusInternalServerError,
		FileRequestHandled: http.StatusConflict,
	}
	for code, want := range cases {
		require.Equal(t, want, HTTPStatus(code), "code %d", code)
	}
}
