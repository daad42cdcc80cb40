package protocol

import "fmt"

// Pusher-compatible numeric error codes carried on pusher:error payloads.
// Unknown app key (4001) and over capacity (4100) close the connection;
// subscription failures (4009, 4302) leave it open so the client can retry.
const (
	CodeUnknownAppKey    = 4001
	CodeInvalidSignature = 4009
	CodeOverCapacity     = 4100
	CodeInvalidAuthData  = 4302
)

// Error is a protocol violation that is visible to the client as a
// pusher:error payload. Whether the connection survives depends on the code:
// unknown app key and over capacity terminate it, subscription failures do not.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("pusher error %d: %s", e.Code, e.Message)
}

// Fatal reports whether the connection must be closed after transmitting
// the error payload.
func (e *Error) Fatal() bool {
	return e.Code == CodeUnknownAppKey || e.Code == CodeOverCapacity
}

func NewUnknownAppKeyError(appKey string) *Error {
	return &Error{
		Code:    CodeUnknownAppKey,
		Message: fmt.Sprintf("Could not find app key `%s`.", appKey),
	}
}

func NewInvalidSignatureError() *Error {
	return &Error{
		Code:    CodeInvalidSignature,
		Message: "Invalid signature.",
	}
}

func NewOverCapacityError() *Error {
	return &Error{
		Code:    CodeOverCapacity,
		Message: "Over capacity.",
	}
}

func NewInvalidAuthDataError(reason string) *Error {
	return &Error{
		Code:    CodeInvalidAuthData,
		Message: fmt.Sprintf("Invalid auth data: %s.", reason),
	}
}
