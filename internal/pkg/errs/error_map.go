/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
error events and HTTP responses.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:     {Code: ErrInvalidParams, Message: "Invalid request parameters."},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrValidationFailed:  {Code: ErrValidationFailed, Message: "Invalid payload."},

	// 2xxx: Channel, Conversation, and Message Business Logic Errors
	ErrChannelNotFound:      {Code: ErrChannelNotFound, Message: "Channel not found."},
	ErrChannelTypeInvalid:   {Code: ErrChannelTypeInvalid, Message: "This action is not supported on this channel type."},
	ErrConversationNotFound: {Code: ErrConversationNotFound, Message: "Conversation not found."},
	ErrMessageNotFound:      {Code: ErrMessageNotFound, Message: "Message not found."},
	ErrMessageDeleted:       {Code: ErrMessageDeleted, Message: "Message has been deleted."},
	ErrParentMismatch:       {Code: ErrParentMismatch, Message: "Reply target belongs to a different channel."},
	ErrSlowMode:             {Code: ErrSlowMode, Message: "Slow mode is enabled. Wait %d seconds.", Status: http.StatusTooManyRequests},

	// 3xxx: Authentication and Authorization Errors
	ErrAuthenticationFailed: {Code: ErrAuthenticationFailed, Message: "Authentication failed.", Status: http.StatusUnauthorized},
	ErrNotAMember:           {Code: ErrNotAMember, Message: "You are not a member of this server.", Status: http.StatusForbidden},
	ErrBanned:               {Code: ErrBanned, Message: "You are banned from this server.", Status: http.StatusForbidden},
	ErrPermissionDenied:     {Code: ErrPermissionDenied, Message: "You do not have permission to do that.", Status: http.StatusForbidden},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
