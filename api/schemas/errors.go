package schemas

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a run failure.
type ErrorCode string

const (
	ErrCodeConfiguration      ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeLoginFormNotFound  ErrorCode = "LOGIN_FORM_NOT_FOUND"
	ErrCodeCaptchaDetected    ErrorCode = "CAPTCHA_DETECTED"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeDecryption         ErrorCode = "DECRYPTION_ERROR"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeNavigation         ErrorCode = "NAVIGATION_FAILED"
	ErrCodeBrowser            ErrorCode = "BROWSER_ERROR"
	ErrCodeStore              ErrorCode = "STORE_ERROR"
)

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrConfiguration      = &Error{Code: ErrCodeConfiguration}
	ErrNotFound           = &Error{Code: ErrCodeNotFound}
	ErrLoginFormNotFound  = &Error{Code: ErrCodeLoginFormNotFound}
	ErrCaptchaDetected    = &Error{Code: ErrCodeCaptchaDetected}
	ErrInvalidCredentials = &Error{Code: ErrCodeInvalidCredentials}
	ErrDecryption         = &Error{Code: ErrCodeDecryption}
	ErrTimeout            = &Error{Code: ErrCodeTimeout}
	ErrNavigation         = &Error{Code: ErrCodeNavigation}
	ErrBrowser            = &Error{Code: ErrCodeBrowser}
	ErrStore              = &Error{Code: ErrCodeStore}
)

// Error is a classified failure. Step names the stage of the run that failed.
type Error struct {
	Code    ErrorCode
	Step    string
	Message string
	Err     error
}

// NewError builds an *Error. err may be nil.
func NewError(code ErrorCode, step, message string, err error) *Error {
	return &Error{Code: code, Step: step, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Step != "" {
		msg += " [" + e.Step + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// StepOf returns the step of the first *Error in err's chain that names one.
func StepOf(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.Step != "" {
			return e.Step
		}
		err = e.Err
	}
	return ""
}
