/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1005
)

// 2xxx: Room and Content Business Logic Errors
const (
	// ErrRoomNotFound indicates that the requested conversation room does not exist.
	ErrRoomNotFound = 2101

	// ErrRoomResolveFailed indicates that the direct-conversation room could not be created or fetched.
	ErrRoomResolveFailed = 2102

	// ErrSelfConversation indicates an attempt to open a direct conversation with oneself.
	ErrSelfConversation = 2103

	// ErrMessageContentTooLong indicates that the message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2201

	// ErrHistoryUnavailable indicates that the message history for a room could not be loaded.
	ErrHistoryUnavailable = 2202
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnauthorized indicates that the operation requires an authenticated identity.
	ErrUnauthorized = 3001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
