package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// Reason is a stable, machine readable sub-kind of an error code used for UI messaging.
type Reason string

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Reason  Reason    `json:"reason,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrConflict
	ErrExpired
	ErrUnavailable
	ErrRateLimited
)

const (
	ReasonInsufficientCapability Reason = "insufficient_capability"
	ReasonInsufficientAuthority  Reason = "insufficient_authority"
	ReasonNotTargetOfInvitation  Reason = "not_target_of_invitation"
	ReasonNotAMember             Reason = "not_a_member"
	ReasonCannotModifyOwner      Reason = "cannot_modify_owner"
	ReasonCannotElevateBeyond    Reason = "cannot_elevate_beyond_self"
	ReasonMemberNotFound         Reason = "member_not_found"
	ReasonPatientNotFound        Reason = "patient_not_found"
	ReasonInvitationNotFound     Reason = "invitation_not_found"
	ReasonAlreadyResolved        Reason = "already_resolved"
	ReasonAlreadyAMember         Reason = "already_a_member"
	ReasonInvitationExpired      Reason = "invitation_expired"
	ReasonUnknownRole            Reason = "unknown_role"
	ReasonValidationFailed       Reason = "validation_failed"
	ReasonDependencyUnavailable  Reason = "dependency_unavailable"
	ReasonRateLimited            Reason = "rate_limited"
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Reason:  ReasonValidationFailed,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Forbidden(reason Reason, message string) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Reason:  reason,
		Message: message,
	}
}

func Conflict(reason Reason, message string) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Reason:  reason,
		Message: message,
	}
}

// Family access taxonomy

func InsufficientCapability(capability string) *AppError {
	return Forbidden(ReasonInsufficientCapability, fmt.Sprintf("missing capability %q", capability))
}

func InsufficientAuthority(message string) *AppError {
	return Forbidden(ReasonInsufficientAuthority, message)
}

func NotTargetOfInvitation() *AppError {
	return Forbidden(ReasonNotTargetOfInvitation, "invitation was sent to a different email address")
}

func NotAMember() *AppError {
	return Forbidden(ReasonNotAMember, "not a member of this family")
}

func MemberNotFound(memberID string) *AppError {
	return &AppError{Code: ErrNotFound, Reason: ReasonMemberNotFound, Message: fmt.Sprintf("family member %s not found", memberID)}
}

func PatientNotFound(patientID string) *AppError {
	return &AppError{Code: ErrNotFound, Reason: ReasonPatientNotFound, Message: fmt.Sprintf("patient %s not found", patientID)}
}

func InvitationNotFound(invitationID string) *AppError {
	return &AppError{Code: ErrNotFound, Reason: ReasonInvitationNotFound, Message: fmt.Sprintf("invitation %s not found", invitationID)}
}

func AlreadyResolved(status string) *AppError {
	return Conflict(ReasonAlreadyResolved, fmt.Sprintf("invitation already %s", status))
}

func AlreadyAMember() *AppError {
	return Conflict(ReasonAlreadyAMember, "user is already a family member")
}

func Expired() *AppError {
	return &AppError{Code: ErrExpired, Reason: ReasonInvitationExpired, Message: "invitation has expired"}
}

func UnknownRole(role string) *AppError {
	return &AppError{Code: ErrBadRequest, Reason: ReasonUnknownRole, Message: fmt.Sprintf("unknown role %q", role)}
}

func Validation(message string) *AppError {
	return NewBadRequest(message, nil)
}

func DependencyUnavailable(dependency string, err error) *AppError {
	return &AppError{
		Code:    ErrUnavailable,
		Reason:  ReasonDependencyUnavailable,
		Message: fmt.Sprintf("%s unavailable", dependency),
		Err:     err,
	}
}

func RateLimited() *AppError {
	return &AppError{Code: ErrRateLimited, Reason: ReasonRateLimited, Message: "rate limit exceeded"}
}

// AsAppError extracts the first AppError in the chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// HasReason reports whether err carries the given reason.
func HasReason(err error, reason Reason) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Reason == reason
}
