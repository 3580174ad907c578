package types

import (
	"errors"
	"fmt"
)

const (
	ErrCodeRouteUnsupported = "route_unsupported"
	ErrCodeQuoteFailed      = "quote_failed"
	ErrCodeValidation       = "validation_failed"
	ErrCodeUserCancelled    = "user_cancelled"
	ErrCodeSubmission       = "submission_failed"
	ErrCodeTrackingTimeout  = "tracking_timeout"
	ErrCodeInvalidParams    = "invalid_params"
)

// sentinels for errors.Is, a TransferError with the same code matches them
var (
	ErrRouteUnsupported = &TransferError{Code: ErrCodeRouteUnsupported, Message: "no backend serves this route"}
	ErrQuoteFailed      = &TransferError{Code: ErrCodeQuoteFailed, Message: "fee quote failed"}
	ErrValidation       = &TransferError{Code: ErrCodeValidation, Message: "transfer would fail on chain"}
	ErrUserCancelled    = &TransferError{Code: ErrCodeUserCancelled, Message: "cancelled by user"}
	ErrSubmission       = &TransferError{Code: ErrCodeSubmission, Message: "submission failed"}
	ErrInvalidParams    = &TransferError{Code: ErrCodeInvalidParams, Message: "invalid transfer parameters"}
)

type TransferError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func (e *TransferError) Is(target error) bool {
	var t *TransferError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

func NewError(code, message string, err error) *TransferError {
	return &TransferError{Code: code, Message: message, Err: err}
}

// ErrorCode returns the TransferError code carried by err, or "" when none
func ErrorCode(err error) string {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}
