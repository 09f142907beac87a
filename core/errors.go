package core

import (
	"errors"
	"fmt"
)

// Code is a machine-readable failure reason returned by every engine operation.
type Code string

const (
	CodeInvalidParameters Code = "INVALID_PARAMETERS"
	CodeBidTooLow         Code = "BID_TOO_LOW"
	CodeAuctionExpired    Code = "AUCTION_EXPIRED"
	CodeAuctionNotEnded   Code = "AUCTION_NOT_ENDED"

	CodeNotOwner              Code = "NOT_OWNER"
	CodeTransferNotAuthorized Code = "TRANSFER_NOT_AUTHORIZED"
	CodeNotAdmin              Code = "NOT_ADMIN"

	CodeAuctionNotFound   Code = "AUCTION_NOT_FOUND"
	CodeAuctionNotActive  Code = "AUCTION_NOT_ACTIVE"
	CodePaused            Code = "PAUSED"
	CodeAssetInEscrow     Code = "ASSET_IN_ESCROW"
	CodeNothingToWithdraw Code = "NOTHING_TO_WITHDRAW"
	CodeAuctionActive     Code = "AUCTION_ACTIVE"
	CodeAssetReleased     Code = "ASSET_RELEASED"

	CodeTransferFailed Code = "TRANSFER_FAILED"
)

// Category groups codes into the error taxonomy.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryAuthorization Category = "authorization"
	CategoryState         Category = "state"
	CategoryTransfer      Category = "transfer"
)

// Category returns the taxonomy bucket for the code.
func (c Code) Category() Category {
	switch c {
	case CodeInvalidParameters, CodeBidTooLow, CodeAuctionExpired, CodeAuctionNotEnded:
		return CategoryValidation
	case CodeNotOwner, CodeTransferNotAuthorized, CodeNotAdmin:
		return CategoryAuthorization
	case CodeTransferFailed:
		return CategoryTransfer
	default:
		return CategoryState
	}
}

// Error is the error type returned by Engine operations.
type Error struct {
	Code      Code
	Message   string
	AuctionID AuctionID // zero when the failure is not tied to an auction
	Cause     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.AuctionID != 0 {
		msg = fmt.Sprintf("auction %d: %s", e.AuctionID, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrInvalidParameters     = &Error{Code: CodeInvalidParameters}
	ErrBidTooLow             = &Error{Code: CodeBidTooLow}
	ErrAuctionExpired        = &Error{Code: CodeAuctionExpired}
	ErrAuctionNotEnded       = &Error{Code: CodeAuctionNotEnded}
	ErrNotOwner              = &Error{Code: CodeNotOwner}
	ErrTransferNotAuthorized = &Error{Code: CodeTransferNotAuthorized}
	ErrNotAdmin              = &Error{Code: CodeNotAdmin}
	ErrAuctionNotFound       = &Error{Code: CodeAuctionNotFound}
	ErrAuctionNotActive      = &Error{Code: CodeAuctionNotActive}
	ErrPaused                = &Error{Code: CodePaused}
	ErrAssetInEscrow         = &Error{Code: CodeAssetInEscrow}
	ErrNothingToWithdraw     = &Error{Code: CodeNothingToWithdraw}
	ErrAuctionActive         = &Error{Code: CodeAuctionActive}
	ErrAssetReleased         = &Error{Code: CodeAssetReleased}
	ErrTransferFailed        = &Error{Code: CodeTransferFailed}
)

func newError(code Code, id AuctionID, format string, args ...any) *Error {
	return &Error{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		AuctionID: id,
	}
}

func wrapError(code Code, id AuctionID, cause error, format string, args ...any) *Error {
	return &Error{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		AuctionID: id,
		Cause:     cause,
	}
}

// CodeOf extracts the Code from err, or "" if err is not an engine error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
