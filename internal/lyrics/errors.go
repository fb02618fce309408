package lyrics

import (
	"errors"
	"fmt"
)

// Kind classifies a lyrics pipeline failure.
type Kind string

const (
	KindRemoteCallFailed   Kind = "REMOTE_CALL_FAILED"  // a generation request errored
	KindValidationRejected Kind = "VALIDATION_REJECTED" // text came back but failed validation
	KindLyricsNotFound     Kind = "LYRICS_NOT_FOUND"    // every retrieval strategy failed
	KindCredentialsMissing Kind = "CREDENTIALS_MISSING" // no generator configured
	KindCacheWriteIgnored  Kind = "CACHE_WRITE_IGNORED" // local cache write failed, result still served
)

// Error is a classified lyrics pipeline error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewRemoteCallFailed wraps a generator error raised by the named step.
func NewRemoteCallFailed(step string, err error) *Error {
	return &Error{Kind: KindRemoteCallFailed, Message: step + " request failed", Err: err}
}

// NewValidationRejected reports retrieved text that failed a validation rule.
func NewValidationRejected(rule string) *Error {
	return &Error{Kind: KindValidationRejected, Message: rule}
}

// NewLyricsNotFound reports that no strategy produced valid lyrics.
func NewLyricsNotFound(queryKey string) *Error {
	return &Error{Kind: KindLyricsNotFound, Message: fmt.Sprintf("lyrics not found for %q", queryKey)}
}

// NewCredentialsMissing reports that no remote generator is available.
func NewCredentialsMissing(hint string) *Error {
	msg := "API key is missing"
	if hint != "" {
		msg += "; " + hint
	}
	return &Error{Kind: KindCredentialsMissing, Message: msg}
}

// NewCacheWriteIgnored wraps a swallowed local cache write failure.
func NewCacheWriteIgnored(err error) *Error {
	return &Error{Kind: KindCacheWriteIgnored, Message: "cache write ignored", Err: err}
}

// IsKind reports whether err, or any error it wraps, is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
