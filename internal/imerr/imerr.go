// Package imerr defines the numeric error codes shared by every transport
// surface. Codes are grouped by domain in blocks of 1000; the block determines
// how a failure maps to HTTP statuses and WebSocket error frames.
package imerr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code int

const (
	OK Code = 0

	// General 1000-1999.
	Unknown            Code = 1000
	InvalidParams      Code = 1001
	Internal           Code = 1002
	Timeout            Code = 1003
	NotFound           Code = 1004
	AlreadyExists      Code = 1005
	PermissionDenied   Code = 1006
	RateLimitExceeded  Code = 1007
	NotImplemented     Code = 1008
	ServiceUnavailable Code = 1009

	// User 2000-2999.
	UserNotFound       Code = 2000
	UserAlreadyExists  Code = 2001
	UserAuthFailed     Code = 2002
	UserTokenExpired   Code = 2003
	UserTokenInvalid   Code = 2004
	UserAccountLocked  Code = 2005
	UserPasswordWeak   Code = 2006
	UserPasswordWrong  Code = 2007
	UserVerifyFailed   Code = 2008
	UserVerifyExpired  Code = 2009
	UserStatusAbnormal Code = 2010

	// Friend 3000-3999.
	FriendNotFound         Code = 3000
	FriendAlreadyExists    Code = 3001
	FriendRequestNotFound  Code = 3002
	FriendRequestAccepted  Code = 3003
	FriendRequestRejected  Code = 3004
	FriendRequestDuplicate Code = 3005
	FriendRequestSelf      Code = 3006

	// Group 4000-4999.
	GroupNotFound       Code = 4000
	GroupMemberNotFound Code = 4002
	GroupPermission     Code = 4004

	// Message 5000-5999.
	MessageNotFound     Code = 5000
	MessageSendFailed   Code = 5001
	MessageInvalid      Code = 5004
	MessageTooLong      Code = 5005
	MessageKindInvalid  Code = 5006
	MessageReadFailed   Code = 5007
	MessageNoRecipient  Code = 5009

	// File 6000-6999.
	FileNotFound        Code = 6000
	FileRequestNotFound Code = 6005
	FileRequestHandled  Code = 6007

	// Storage 7000-7999.
	StorageFailed      Code = 7000
	StorageQuery       Code = 7001
	StorageInsert      Code = 7002
	StorageUpdate      Code = 7003
	StorageTransaction Code = 7005
	StorageDuplicate   Code = 7006

	// Cache 8000-8999.
	CacheFailed Code = 8000
	CacheMiss   Code = 8002

	// Event bus 9000-9999.
	EventBusFailed  Code = 9000
	EventBusPublish Code = 9003
	EventBusConsume Code = 9004

	// Network 10000-10999.
	NetworkFailed  Code = 10000
	NetworkTimeout Code = 10001

	// RPC 11000-11999.
	RPCFailed  Code = 11000
	RPCTimeout Code = 11003

	// WebSocket 12000-12999.
	WSFailed          Code = 12000
	WSSendFailed      Code = 12002
	WSAuthFailed      Code = 12004
	WSFrameInvalid    Code = 12008
	WSPayloadTooLarge Code = 12007

	// Security 13000-13999.
	SecurityTokenInvalid Code = 13000
	SecurityTokenExpired Code = 13001
	SecurityUnauthorized Code = 13010
)

// Error carries a stable code and user-visible message plus an internal cause
// that never crosses the transport boundary.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on code so sentinel-style comparisons work across wrapping.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the code from any error in the chain; plain errors map to
// Internal so transports never leak raw failure text.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// MessageOf returns the user-visible message for err, or a generic one for
// untyped errors.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// Family returns the 1000-block base of a code, used for coarse routing.
func Family(code Code) Code {
	if code <= 0 {
		return code
	}
	return code / 1000 * 1000
}

// HTTPStatus maps a code to the HTTP status the API surface responds with.
func HTTPStatus(code Code) int {
	switch code {
	case OK:
		return http.StatusOK
	case UserTokenExpired, UserTokenInvalid, UserAuthFailed, UserPasswordWrong,
		SecurityTokenInvalid, SecurityTokenExpired, SecurityUnauthorized, WSAuthFailed:
		return http.StatusUnauthorized
	case PermissionDenied, GroupPermission, UserAccountLocked, UserStatusAbnormal:
		return http.StatusForbidden
	case NotFound, UserNotFound, FriendNotFound, FriendRequestNotFound,
		GroupNotFound, GroupMemberNotFound, MessageNotFound, FileNotFound, FileRequestNotFound:
		return http.StatusNotFound
	case AlreadyExists, UserAlreadyExists, FriendAlreadyExists, StorageDuplicate:
		return http.StatusConflict
	case FriendRequestAccepted, FriendRequestRejected, FriendRequestDuplicate, FileRequestHandled:
		return http.StatusConflict
	case InvalidParams, MessageInvalid, MessageTooLong, MessageKindInvalid,
		UserPasswordWeak, UserVerifyFailed, UserVerifyExpired,
		FriendRequestSelf, WSFrameInvalid, WSPayloadTooLarge:
		return http.StatusBadRequest
	case RateLimitExceeded:
		return http.StatusTooManyRequests
	case Timeout, NetworkTimeout, RPCTimeout:
		return http.StatusGatewayTimeout
	case ServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
