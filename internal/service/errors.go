package service

import "github.com/pkg/errors"

type ErrorCode string

const (
	ErrorCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrorCodeUserNotFound       ErrorCode = "USER_NOT_FOUND"
	ErrorCodeAlreadyRegistered  ErrorCode = "ALREADY_REGISTERED"
	ErrorCodeNotRegistered      ErrorCode = "NOT_REGISTERED"
	ErrorCodeNotMember          ErrorCode = "NOT_MEMBER"
	ErrorCodeRegistrationClosed ErrorCode = "REGISTRATION_CLOSED"
	ErrorCodeEventFull          ErrorCode = "EVENT_FULL"
	ErrorCodeTeamFull           ErrorCode = "TEAM_FULL"
	ErrorCodeLeaderMustTransfer ErrorCode = "LEADER_MUST_TRANSFER"
	ErrorCodeNotLeader          ErrorCode = "NOT_LEADER"
	ErrorCodeStorageFailure     ErrorCode = "STORAGE_FAILURE"
	ErrorCodeInvalidBody        ErrorCode = "INVALID_BODY"
	ErrorCodeUnspecified        ErrorCode = "UNSPECIFIED"
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func (e *Error) Error() string {
	return e.Message
}

// serviceError unwraps the typed error a transaction closure returned. Any
// other failure means the transaction itself could not begin or commit; no
// partial state was persisted and the whole operation is safe to retry.
func serviceError(err error) *Error {
	if err == nil {
		return nil
	}
	svcErr := &Error{}
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return NewError(ErrorCodeStorageFailure, "storage transaction failed")
}
