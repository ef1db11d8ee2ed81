/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system failures both internally
within the server and in responses sent to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1005
)

// 2xxx: Chat and Message Business Logic Errors
const (
	// ErrChatNotFound indicates that the referenced chat does not exist.
	ErrChatNotFound = 2101

	// ErrMessageNotFound indicates that the referenced message does not exist.
	ErrMessageNotFound = 2102

	// ErrMessageContentTooLong indicates that the message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2103

	// ErrReactionNotFound indicates that the referenced reaction does not exist.
	ErrReactionNotFound = 2104

	// ErrNotMessageSender indicates that the caller attempted to delete a message they did not send.
	ErrNotMessageSender = 2105
)

// 3xxx: Identity and Session Errors
const (
	// ErrUnauthorized indicates that the request lacks a valid identity.
	ErrUnauthorized = 3001

	// ErrUnknownIdentity indicates that an external identity could not be resolved to a user.
	ErrUnknownIdentity = 3002

	// ErrSessionReplaced indicates that the connection was closed in favor of a newer one.
	ErrSessionReplaced = 3003
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStoreFailed indicates that a message store operation failed.
	ErrStoreFailed = 5001
)
