// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents a failed call to the service.
type ClientError struct {
	Type    ErrorType
	Code    int // envelope code or HTTP status for ErrTypeAPI
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	msg := e.Message
	if e.Type == ErrTypeAPI && e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by type so errors.Is(err, ErrUnauthorized)
// holds for any unauthorized ClientError.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Code == 0 && t.Cause == nil
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	// ErrTypeTransport: the request never produced a usable response.
	ErrTypeTransport
	// ErrTypeAPI: the envelope carried a code other than 200.
	ErrTypeAPI
	// ErrTypeUnauthorized: missing token, HTTP 401 or envelope code 401.
	ErrTypeUnauthorized
	// ErrTypeStream: the chat stream reported an error event.
	ErrTypeStream
	// ErrTypeMalformed: a chat stream line was not valid JSON.
	ErrTypeMalformed
	// ErrTypeDecode: the envelope or its payload could not be decoded.
	ErrTypeDecode
	// ErrTypeValidation: arguments rejected before any request was made.
	ErrTypeValidation
)

// String returns a short name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeTransport:
		return "transport"
	case ErrTypeAPI:
		return "api"
	case ErrTypeUnauthorized:
		return "unauthorized"
	case ErrTypeStream:
		return "stream"
	case ErrTypeMalformed:
		return "malformed"
	case ErrTypeDecode:
		return "decode"
	case ErrTypeValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Sentinel errors for easy checking.
var (
	ErrUnauthorized = &ClientError{Type: ErrTypeUnauthorized, Message: "login expired, please sign in again"}
	ErrTransport    = &ClientError{Type: ErrTypeTransport, Message: "cannot reach server"}
)

func validationError(msg string) error {
	return &ClientError{Type: ErrTypeValidation, Message: msg}
}

// TypeOf returns the ErrorType of err, or ErrTypeUnknown.
func TypeOf(err error) ErrorType {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type
	}
	return ErrTypeUnknown
}

// IsUnauthorized checks if an error means the session is no longer valid.
func IsUnauthorized(err error) bool {
	return TypeOf(err) == ErrTypeUnauthorized
}

// IsTransport checks if an error is a connection-level failure.
func IsTransport(err error) bool {
	return TypeOf(err) == ErrTypeTransport
}

// IsAPI checks if an error is an application-level failure.
func IsAPI(err error) bool {
	return TypeOf(err) == ErrTypeAPI
}

// IsValidation checks if an error was raised before contacting the service.
func IsValidation(err error) bool {
	return TypeOf(err) == ErrTypeValidation
}

// Code returns the envelope code carried by an API error, or 0.
func Code(err error) int {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Code
	}
	return 0
}
