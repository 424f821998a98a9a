/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both internally
within the gateway and in the error events sent to connected clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates an unparseable frame or an unsupported action type.
	ErrInvalidParams = 1001

	// ErrRateLimitExceeded indicates that the connection attempt rate has exceeded the set limit.
	ErrRateLimitExceeded = 1002

	// ErrValidationFailed indicates a malformed action payload (empty or over-length content, bad id format).
	ErrValidationFailed = 1003
)

// 2xxx: Channel, Conversation, and Message Business Logic Errors
const (
	// ErrChannelNotFound indicates that the target channel does not exist.
	ErrChannelNotFound = 2101

	// ErrChannelTypeInvalid indicates an operation that requires a different channel type
	// (e.g., joining voice on a TEXT channel).
	ErrChannelTypeInvalid = 2102

	// ErrConversationNotFound indicates that the target conversation does not exist
	// or the caller is not a participant.
	ErrConversationNotFound = 2103

	// ErrMessageNotFound indicates that the target message does not exist in the given channel.
	ErrMessageNotFound = 2201

	// ErrMessageDeleted indicates an edit or delete against a message that is already deleted.
	ErrMessageDeleted = 2202

	// ErrParentMismatch indicates a reply referencing a parent message outside the target channel.
	ErrParentMismatch = 2203

	// ErrSlowMode indicates the author must wait before sending another message in this channel.
	ErrSlowMode = 2301
)

// 3xxx: Authentication and Authorization Errors
const (
	// ErrAuthenticationFailed indicates a missing or invalid handshake credential.
	// This is the only error that terminates the connection.
	ErrAuthenticationFailed = 3001

	// ErrNotAMember indicates the caller is not a member of the target server.
	ErrNotAMember = 3101

	// ErrBanned indicates the caller is banned from the target server.
	ErrBanned = 3102

	// ErrPermissionDenied indicates the caller's effective permission does not allow the action.
	ErrPermissionDenied = 3103
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
